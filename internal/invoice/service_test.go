package invoice

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Client{}, &models.Subscription{}, &models.Invoice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestTotals(t *testing.T) {
	tax, total := Totals(100, 8)
	if tax != 8 || total != 108 {
		t.Errorf("Totals(100, 8) = %v, %v, want 8, 108", tax, total)
	}

	tax, total = Totals(49.99, 0)
	if tax != 0 || total != 49.99 {
		t.Errorf("Totals(49.99, 0) = %v, %v, want 0, 49.99", tax, total)
	}

	tax, total = Totals(0, 8)
	if tax != 0 || total != 0 {
		t.Errorf("Totals(0, 8) = %v, %v, want 0, 0", tax, total)
	}
}

func TestGenerateNumber(t *testing.T) {
	svc := NewService(&config.Config{InvoicePrefix: "INV"}, nil)

	re := regexp.MustCompile(`^INV-\d{11}$`)
	n1 := svc.GenerateNumber()
	if !re.MatchString(n1) {
		t.Errorf("GenerateNumber() = %q, want INV- followed by 11 digits", n1)
	}
}

func TestGenerate(t *testing.T) {
	db := testDB(t)
	cfg := &config.Config{
		InvoicePrefix:  "INV",
		InvoiceDir:     t.TempDir(),
		TaxRate:        10,
		CurrencySymbol: "$",
		CompanyName:    "Test IPTV",
		CompanyEmail:   "billing@test.example",
	}
	svc := NewService(cfg, db)

	client := models.Client{Name: "Alice", Phone: "15550001111", WhatsAppNumber: "15550001111", Email: "alice@example.com"}
	if err := db.Create(&client).Error; err != nil {
		t.Fatalf("create client: %v", err)
	}
	sub := models.Subscription{
		ClientID:        client.ID,
		PackageDuration: 3,
		Username:        "iptv000001",
		StartDate:       time.Now(),
		EndDate:         time.Now().AddDate(0, 3, 0),
		Status:          models.SubStatusActive,
		Price:           30,
		PaymentStatus:   "pending",
	}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	result := svc.Generate(&client, &sub, "new")
	if !result.Success {
		t.Fatalf("Generate failed: %s", result.Error)
	}

	info, err := os.Stat(result.Filepath)
	if err != nil {
		t.Fatalf("invoice file not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("invoice file is empty")
	}

	var record models.Invoice
	if err := db.Where("invoice_number = ?", result.InvoiceNumber).First(&record).Error; err != nil {
		t.Fatalf("invoice row not found: %v", err)
	}
	if record.Amount != 30 || record.TaxAmount != 3 || record.TotalAmount != 33 {
		t.Errorf("amounts = %v/%v/%v, want 30/3/33", record.Amount, record.TaxAmount, record.TotalAmount)
	}
	if record.InvoiceType != "new" {
		t.Errorf("invoice type = %q", record.InvoiceType)
	}

	var fresh models.Subscription
	if err := db.First(&fresh, sub.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !fresh.InvoiceGenerated {
		t.Error("invoice_generated flag not set")
	}
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(&config.Config{InvoiceDir: dir}, nil)

	if got := svc.File("missing.pdf"); got != "" {
		t.Errorf("File() = %q for missing invoice, want empty", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "INV-1.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := svc.File("INV-1.pdf"); got == "" {
		t.Error("File() empty for existing invoice")
	}
	// Path traversal attempts are reduced to the bare filename.
	if got := svc.File("../../etc/INV-1.pdf"); got == "" {
		t.Error("File() should strip directories and find the invoice")
	}
}
