package invoice

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/models"

	"github.com/jung-kurt/gofpdf"
	"gorm.io/gorm"
)

const dateLayout = "02/01/2006"

// Service generates PDF invoices for subscription creation and renewal.
type Service struct {
	Config *config.Config
	DB     *gorm.DB
}

func NewService(cfg *config.Config, db *gorm.DB) *Service {
	return &Service{Config: cfg, DB: db}
}

// Result reports the outcome of an invoice generation. Generation is
// best-effort: a failure is carried in the result, never raised to the
// subscription transaction that triggered it.
type Result struct {
	Success       bool   `json:"success"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Filepath      string `json:"filepath,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Error         string `json:"error,omitempty"`
}

// GenerateNumber produces an invoice number from the configured prefix,
// the last 8 digits of the current unix-millisecond clock and 3 random
// digits. Collision-improbable rather than guaranteed unique; the
// database uniqueness index is the backstop.
func (s *Service) GenerateNumber() string {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}
	return fmt.Sprintf("%s-%s%03d", s.Config.InvoicePrefix, ts, rand.Intn(1000))
}

// Totals computes the tax and grand total for a subscription price.
func Totals(price, taxRate float64) (tax, total float64) {
	tax = price * taxRate / 100
	return tax, price + tax
}

// Generate renders a single-page PDF invoice, stores it under the
// invoice directory and records an Invoice row pointing at it.
// invoiceType is "new" or "renewal".
func (s *Service) Generate(client *models.Client, sub *models.Subscription, invoiceType string) *Result {
	number := s.GenerateNumber()
	invoiceDate := time.Now()

	amount := sub.Price
	taxAmount, totalAmount := Totals(amount, s.Config.TaxRate)

	if err := os.MkdirAll(s.Config.InvoiceDir, 0o755); err != nil {
		return &Result{Success: false, Error: "create invoice directory: " + err.Error()}
	}

	filename := number + ".pdf"
	path := filepath.Join(s.Config.InvoiceDir, filename)

	if err := s.renderPDF(path, number, invoiceDate, invoiceType, client, sub, amount, taxAmount, totalAmount); err != nil {
		return &Result{Success: false, Error: "render invoice: " + err.Error()}
	}

	record := models.Invoice{
		InvoiceNumber:  number,
		ClientID:       client.ID,
		SubscriptionID: sub.ID,
		InvoiceDate:    invoiceDate,
		Amount:         amount,
		TaxAmount:      taxAmount,
		TotalAmount:    totalAmount,
		PaymentStatus:  sub.PaymentStatus,
		InvoiceType:    invoiceType,
		PDFPath:        path,
	}
	if err := s.DB.Create(&record).Error; err != nil {
		return &Result{Success: false, Error: "save invoice record: " + err.Error()}
	}

	if err := s.DB.Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Update("invoice_generated", true).Error; err != nil {
		log.Printf("Error marking invoice generated for subscription %d: %v", sub.ID, err)
	}

	log.Printf("Invoice generated: %s", number)
	return &Result{Success: true, InvoiceNumber: number, Filepath: path, Filename: filename}
}

// File returns the absolute path of a stored invoice PDF, or an empty
// string when it does not exist.
func (s *Service) File(filename string) string {
	path := filepath.Join(s.Config.InvoiceDir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (s *Service) renderPDF(path, number string, invoiceDate time.Time, invoiceType string,
	client *models.Client, sub *models.Subscription, amount, taxAmount, totalAmount float64) error {

	cfg := s.Config
	currency := cfg.CurrencySymbol

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// Header: company block on the left.
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(37, 99, 235)
	pdf.Text(18, 25, cfg.CompanyName)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 116, 139)
	pdf.Text(18, 33, cfg.CompanyAddress)
	pdf.Text(18, 38, "Phone: "+cfg.CompanyPhone)
	pdf.Text(18, 43, "Email: "+cfg.CompanyEmail)
	pdf.Text(18, 48, "Web: "+cfg.CompanyWebsite)

	// Invoice title block on the right.
	typeLabel := "New Subscription"
	if invoiceType == "renewal" {
		typeLabel = "Renewal"
	}
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(30, 41, 59)
	pdf.CellFormat(0, 0, "", "", 0, "", false, 0, "")
	pdf.SetXY(110, 18)
	pdf.CellFormat(82, 10, "INVOICE", "", 0, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 116, 139)
	pdf.SetXY(110, 30)
	pdf.CellFormat(82, 5, "Invoice #: "+number, "", 2, "R", false, 0, "")
	pdf.CellFormat(82, 5, "Date: "+invoiceDate.Format(dateLayout), "", 2, "R", false, 0, "")
	pdf.CellFormat(82, 5, "Type: "+typeLabel, "", 2, "R", false, 0, "")

	// Separator.
	pdf.SetDrawColor(226, 232, 240)
	pdf.Line(18, 56, 192, 56)

	// Bill-to block.
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(30, 41, 59)
	pdf.Text(18, 66, "BILL TO:")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(71, 85, 105)
	pdf.Text(18, 73, client.Name)
	pdf.Text(18, 78, client.Email)
	pdf.Text(18, 83, client.Phone)
	pdf.Text(18, 88, client.Address)

	// Subscription details box.
	pdf.SetFillColor(248, 250, 252)
	pdf.SetDrawColor(226, 232, 240)
	pdf.Rect(112, 61, 80, 34, "FD")

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(30, 41, 59)
	pdf.Text(116, 68, "SUBSCRIPTION DETAILS")

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(71, 85, 105)
	pdf.Text(116, 75, "Username: "+sub.Username)
	pdf.Text(116, 80, fmt.Sprintf("Duration: %d month(s)", sub.PackageDuration))
	pdf.Text(116, 85, "Start: "+sub.StartDate.Format(dateLayout))
	pdf.Text(116, 90, "Expiry: "+sub.EndDate.Format(dateLayout))

	// Line-item table.
	tableTop := 108.0
	pdf.SetFillColor(37, 99, 235)
	pdf.SetDrawColor(37, 99, 235)
	pdf.Rect(18, tableTop, 174, 10, "FD")

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(255, 255, 255)
	pdf.Text(22, tableTop+6.5, "DESCRIPTION")
	pdf.Text(110, tableTop+6.5, "DURATION")
	pdf.SetXY(150, tableTop+1.5)
	pdf.CellFormat(38, 7, "AMOUNT", "", 0, "R", false, 0, "")

	rowTop := tableTop + 10
	pdf.SetFillColor(255, 255, 255)
	pdf.SetDrawColor(226, 232, 240)
	pdf.Rect(18, rowTop, 174, 14, "FD")

	description := "IPTV Subscription Package"
	if invoiceType == "renewal" {
		description = "IPTV Subscription Renewal"
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(30, 41, 59)
	pdf.Text(22, rowTop+8.5, description)
	pdf.Text(110, rowTop+8.5, fmt.Sprintf("%d month(s)", sub.PackageDuration))
	pdf.SetXY(150, rowTop+3.5)
	pdf.CellFormat(38, 7, fmt.Sprintf("%s%.2f", currency, amount), "", 0, "R", false, 0, "")

	// Summary block.
	summaryTop := rowTop + 24
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 116, 139)
	pdf.Text(132, summaryTop, "Subtotal:")
	pdf.SetXY(150, summaryTop-5)
	pdf.CellFormat(38, 7, fmt.Sprintf("%s%.2f", currency, amount), "", 0, "R", false, 0, "")

	if cfg.TaxRate > 0 {
		summaryTop += 7
		pdf.Text(132, summaryTop, fmt.Sprintf("Tax (%g%%):", cfg.TaxRate))
		pdf.SetXY(150, summaryTop-5)
		pdf.CellFormat(38, 7, fmt.Sprintf("%s%.2f", currency, taxAmount), "", 0, "R", false, 0, "")
	}

	summaryTop += 12
	pdf.SetFillColor(241, 245, 249)
	pdf.SetDrawColor(226, 232, 240)
	pdf.Rect(130, summaryTop-7, 62, 11, "FD")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(30, 41, 59)
	pdf.Text(133, summaryTop, "TOTAL:")
	pdf.SetXY(150, summaryTop-5.5)
	pdf.CellFormat(38, 7, fmt.Sprintf("%s%.2f", currency, totalAmount), "", 0, "R", false, 0, "")

	// Payment status marker.
	statusLabel := "PENDING"
	if sub.PaymentStatus == "paid" {
		statusLabel = "PAID"
		pdf.SetTextColor(16, 185, 129)
	} else {
		pdf.SetTextColor(245, 158, 11)
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Text(132, summaryTop+15, "Payment Status: "+statusLabel)

	// Footer.
	pdf.SetDrawColor(226, 232, 240)
	pdf.Line(18, 262, 192, 262)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(148, 163, 184)
	pdf.SetXY(18, 266)
	pdf.CellFormat(174, 5, "Thank you for your business!", "", 2, "C", false, 0, "")
	pdf.CellFormat(174, 5, "For support, please contact us at "+cfg.CompanyEmail, "", 0, "C", false, 0, "")

	// Watermark for unpaid invoices.
	if sub.PaymentStatus != "paid" {
		pdf.SetFont("Helvetica", "B", 60)
		pdf.SetTextColor(245, 158, 11)
		pdf.SetAlpha(0.1, "Normal")
		pdf.TransformBegin()
		pdf.TransformRotate(45, 105, 150)
		pdf.SetXY(30, 140)
		pdf.CellFormat(150, 20, "UNPAID", "", 0, "C", false, 0, "")
		pdf.TransformEnd()
		pdf.SetAlpha(1, "Normal")
	}

	return pdf.OutputFileAndClose(path)
}
