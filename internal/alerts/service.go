package alerts

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/models"
	"github.com/wbhoster/wbhoster/internal/whatsapp"

	"gorm.io/gorm"
)

const dateLayout = "02/01/2006"

// Sender dispatches a single text message. Satisfied by
// *whatsapp.Client; tests substitute a stub.
type Sender interface {
	SendText(phoneNumber, body string) *whatsapp.SendResult
}

// Service evaluates which subscriptions need which notification and
// sends them exactly once per class, guarded by the persisted
// *_sent flags.
type Service struct {
	Config *config.Config
	DB     *gorm.DB
	Sender Sender
}

func NewService(cfg *config.Config, db *gorm.DB, sender Sender) *Service {
	return &Service{Config: cfg, DB: db, Sender: sender}
}

// ClassResult summarizes one evaluator pass.
type ClassResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Summary is the outcome of a full CheckAll tick.
type Summary struct {
	PreExpiry      ClassResult `json:"preExpiry"`
	ExpiryDay      ClassResult `json:"expiryDay"`
	UpdatedExpired int64       `json:"updatedExpired"`
	Timestamp      time.Time   `json:"timestamp"`
}

// alertRow is a subscription joined with its client for notification.
type alertRow struct {
	ID             uint
	ClientID       uint
	Username       string
	EndDate        time.Time
	ClientName     string
	WhatsAppNumber string `gorm:"column:whatsapp_number"`
}

// CheckAll runs the pre-expiry pass, the expiry-day pass and the
// expired sweep, in that order. Every caller (startup, ticker, cron
// endpoint, manual trigger) goes through this one code path; the flag
// guards make overlapping invocations benign.
func (s *Service) CheckAll() Summary {
	log.Println("Checking for alerts...")

	summary := Summary{
		PreExpiry:      s.checkPreExpiry(),
		ExpiryDay:      s.checkExpiryDay(),
		UpdatedExpired: s.SweepExpired(),
		Timestamp:      time.Now(),
	}

	log.Printf("Alert check completed: pre-expiry %d/%d sent, expiry-day %d/%d sent, %d swept to expired",
		summary.PreExpiry.Sent, summary.PreExpiry.Total,
		summary.ExpiryDay.Sent, summary.ExpiryDay.Total,
		summary.UpdatedExpired)
	return summary
}

// checkPreExpiry notifies active subscriptions whose end date is within
// the configured lead window. The window is inclusive (days left from 1
// up to AlertDaysBeforeExpiry) so that a day missed during downtime
// still fires later; pre_expiry_sent is the sole duplicate guard.
func (s *Service) checkPreExpiry() ClassResult {
	tmpl, err := s.activeTemplate(models.AlertTypePreExpiry)
	if err != nil {
		log.Println("Pre-expiry template not found")
		return ClassResult{}
	}

	today := startOfDay(time.Now())
	from := today.AddDate(0, 0, 1)
	to := today.AddDate(0, 0, s.Config.AlertDaysBeforeExpiry+1)

	rows, err := s.selectRows(
		"s.status = ? AND s.pre_expiry_sent = ? AND s.end_date >= ? AND s.end_date < ?",
		models.SubStatusActive, false, from, to)
	if err != nil {
		log.Printf("Error fetching pre-expiry subscriptions: %v", err)
		return ClassResult{}
	}

	result := ClassResult{Total: len(rows)}
	for _, row := range rows {
		daysLeft := daysUntil(today, startOfDay(row.EndDate))
		vars := map[string]string{
			"CLIENT_NAME": row.ClientName,
			"USERNAME":    row.Username,
			"END_DATE":    row.EndDate.Format(dateLayout),
			"DAYS_LEFT":   strconv.Itoa(daysLeft),
		}

		message := whatsapp.Render(tmpl.MessageContent, vars)
		sendRes := s.Sender.SendText(row.WhatsAppNumber, message)
		s.logAlert(row.ClientID, &row.ID, row.WhatsAppNumber, models.AlertTypePreExpiry, message, sendRes)

		if sendRes.Success {
			if err := s.DB.Model(&models.Subscription{}).Where("id = ?", row.ID).
				Update("pre_expiry_sent", true).Error; err != nil {
				log.Printf("Error marking pre-expiry sent for subscription %d: %v", row.ID, err)
			}
			result.Sent++
			log.Printf("Pre-expiry alert sent to %s", row.ClientName)
		} else {
			result.Failed++
			log.Printf("Failed to send pre-expiry alert to %s: %s", row.ClientName, sendRes.Error)
		}
	}
	return result
}

// checkExpiryDay notifies active subscriptions expiring today and moves
// them to expired together with the flag, in a single update.
func (s *Service) checkExpiryDay() ClassResult {
	tmpl, err := s.activeTemplate(models.AlertTypeExpiryDay)
	if err != nil {
		log.Println("Expiry day template not found")
		return ClassResult{}
	}

	today := startOfDay(time.Now())
	tomorrow := today.AddDate(0, 0, 1)

	rows, err := s.selectRows(
		"s.status = ? AND s.expiry_day_sent = ? AND s.end_date >= ? AND s.end_date < ?",
		models.SubStatusActive, false, today, tomorrow)
	if err != nil {
		log.Printf("Error fetching expiry-day subscriptions: %v", err)
		return ClassResult{}
	}

	result := ClassResult{Total: len(rows)}
	for _, row := range rows {
		vars := map[string]string{
			"CLIENT_NAME": row.ClientName,
			"USERNAME":    row.Username,
			"END_DATE":    row.EndDate.Format(dateLayout),
		}

		message := whatsapp.Render(tmpl.MessageContent, vars)
		sendRes := s.Sender.SendText(row.WhatsAppNumber, message)
		s.logAlert(row.ClientID, &row.ID, row.WhatsAppNumber, models.AlertTypeExpiryDay, message, sendRes)

		if sendRes.Success {
			if err := s.DB.Model(&models.Subscription{}).Where("id = ?", row.ID).
				Updates(map[string]interface{}{
					"expiry_day_sent": true,
					"status":          models.SubStatusExpired,
				}).Error; err != nil {
				log.Printf("Error marking expiry-day sent for subscription %d: %v", row.ID, err)
			}
			result.Sent++
			log.Printf("Expiry day alert sent to %s", row.ClientName)
		} else {
			result.Failed++
			log.Printf("Failed to send expiry day alert to %s: %s", row.ClientName, sendRes.Error)
		}
	}
	return result
}

// SweepExpired transitions every still-active subscription whose end
// date has passed to expired, regardless of flag state. Safety net for
// ticks missed while the process was down.
func (s *Service) SweepExpired() int64 {
	today := startOfDay(time.Now())

	res := s.DB.Model(&models.Subscription{}).
		Where("status = ? AND end_date < ?", models.SubStatusActive, today).
		Update("status", models.SubStatusExpired)
	if res.Error != nil {
		log.Printf("Error updating expired subscriptions: %v", res.Error)
		return 0
	}
	if res.RowsAffected > 0 {
		log.Printf("Updated %d expired subscriptions", res.RowsAffected)
	}
	return res.RowsAffected
}

// SendWelcome sends the welcome message for a freshly created
// subscription and marks welcome_sent on success. A missing template
// yields a failed result; the caller proceeds either way.
func (s *Service) SendWelcome(client *models.Client, sub *models.Subscription, plainPassword, hostURL string) *whatsapp.SendResult {
	result := s.sendCredentialMessage(models.AlertTypeWelcome, client, sub, plainPassword, hostURL)
	if result.Success {
		if err := s.DB.Model(&models.Subscription{}).Where("id = ?", sub.ID).
			Update("welcome_sent", true).Error; err != nil {
			log.Printf("Error marking welcome sent for subscription %d: %v", sub.ID, err)
		}
	}
	return result
}

// SendRenewal sends the renewal confirmation. No flag is set: renewal
// notifications are one-shot by construction.
func (s *Service) SendRenewal(client *models.Client, sub *models.Subscription, plainPassword, hostURL string) *whatsapp.SendResult {
	return s.sendCredentialMessage(models.AlertTypeRenewal, client, sub, plainPassword, hostURL)
}

func (s *Service) sendCredentialMessage(msgType string, client *models.Client, sub *models.Subscription, plainPassword, hostURL string) *whatsapp.SendResult {
	tmpl, err := s.activeTemplate(msgType)
	if err != nil {
		log.Printf("%s template not found", msgType)
		return &whatsapp.SendResult{Success: false, Message: "Template not found"}
	}

	if hostURL == "" {
		hostURL = "Check with admin"
	}
	vars := map[string]string{
		"CLIENT_NAME":      client.Name,
		"USERNAME":         sub.Username,
		"PASSWORD":         plainPassword,
		"HOST_URL":         hostURL,
		"START_DATE":       sub.StartDate.Format(dateLayout),
		"END_DATE":         sub.EndDate.Format(dateLayout),
		"PACKAGE_DURATION": strconv.Itoa(sub.PackageDuration),
	}

	message := whatsapp.Render(tmpl.MessageContent, vars)
	sendRes := s.Sender.SendText(client.WhatsAppNumber, message)
	s.logAlert(client.ID, &sub.ID, client.WhatsAppNumber, msgType, message, sendRes)
	return sendRes
}

func (s *Service) activeTemplate(tmplType string) (*models.Template, error) {
	var tmpl models.Template
	err := s.DB.Where("template_type = ? AND status = ?", tmplType, "active").First(&tmpl).Error
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", tmplType, err)
	}
	return &tmpl, nil
}

func (s *Service) selectRows(query string, args ...interface{}) ([]alertRow, error) {
	var rows []alertRow
	err := s.DB.Table("subscriptions s").
		Select("s.id, s.client_id, s.username, s.end_date, c.name as client_name, c.whatsapp_number").
		Joins("JOIN clients c ON s.client_id = c.id").
		Where(query, args...).
		Scan(&rows).Error
	return rows, err
}

func (s *Service) logAlert(clientID uint, subID *uint, number, msgType, content string, result *whatsapp.SendResult) {
	status := "failed"
	if result.Success {
		status = "sent"
	}
	raw, _ := json.Marshal(result)

	alert := models.WhatsAppAlert{
		ClientID:       clientID,
		SubscriptionID: subID,
		WhatsAppNumber: number,
		MessageType:    msgType,
		MessageContent: content,
		Status:         status,
		APIResponse:    string(raw),
		SentAt:         time.Now(),
	}
	if err := s.DB.Create(&alert).Error; err != nil {
		log.Printf("Error logging %s alert: %v", msgType, err)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysUntil counts calendar days between two midnights. Rounding keeps
// the count exact across DST transitions, where a span of N days can be
// an hour short or long of N*24h.
func daysUntil(from, to time.Time) int {
	return int(to.Sub(from).Round(24*time.Hour) / (24 * time.Hour))
}
