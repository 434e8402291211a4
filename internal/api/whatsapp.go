package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/wbhoster/wbhoster/internal/alerts"
	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/models"
	"github.com/wbhoster/wbhoster/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Sender matches alerts.Sender so handlers and tests share the same
// transport seam.
type Sender interface {
	SendText(phoneNumber, body string) *whatsapp.SendResult
}

type WhatsAppHandler struct {
	Config *config.Config
	DB     *gorm.DB
	Sender Sender
	Alerts *alerts.Service
}

func NewWhatsAppHandler(cfg *config.Config, db *gorm.DB, sender Sender, alertSvc *alerts.Service) *WhatsAppHandler {
	return &WhatsAppHandler{Config: cfg, DB: db, Sender: sender, Alerts: alertSvc}
}

// CronCheckExpiry is the handler behind the external cron trigger. It
// runs the exact same evaluation as the in-process scheduler.
func (h *WhatsAppHandler) CronCheckExpiry(c *gin.Context) {
	summary := h.Alerts.CheckAll()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Alert check completed",
		"results": summary,
	})
}

// CheckAlerts is the manual admin trigger for the same evaluation.
func (h *WhatsAppHandler) CheckAlerts(c *gin.Context) {
	summary := h.Alerts.CheckAll()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Alert check completed successfully",
		"results": summary,
	})
}

type SendCustomRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Message     string `json:"message" binding:"required"`
	ClientID    uint   `json:"clientId"`
}

func (h *WhatsAppHandler) SendCustom(c *gin.Context) {
	var req SendCustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number and message are required"})
		return
	}

	result := h.Sender.SendText(req.PhoneNumber, req.Message)
	if req.ClientID != 0 {
		h.logCustomAlert(req.ClientID, req.PhoneNumber, req.Message, result)
	}

	msg := "Failed to send message"
	if result.Success {
		msg = "Message sent successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": result.Success,
		"message": msg,
		"details": result,
	})
}

type BulkSendRequest struct {
	Recipients []whatsapp.BulkRecipient `json:"recipients" binding:"required"`
}

type bulkEntry struct {
	PhoneNumber string               `json:"phoneNumber"`
	Success     bool                 `json:"success"`
	Error       string               `json:"error,omitempty"`
	Details     *whatsapp.SendResult `json:"details,omitempty"`
}

// SendBulk dispatches to each recipient in order with the configured
// delay between sends; invalid or failed entries never abort the rest.
func (h *WhatsAppHandler) SendBulk(c *gin.Context) {
	var req BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Recipients) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipients array is required"})
		return
	}

	delay := time.Duration(h.Config.BulkMessageDelayMs) * time.Millisecond
	results := make([]bulkEntry, 0, len(req.Recipients))
	sent := false

	for _, recipient := range req.Recipients {
		if recipient.PhoneNumber == "" || recipient.Message == "" {
			results = append(results, bulkEntry{
				PhoneNumber: recipient.PhoneNumber,
				Success:     false,
				Error:       "Missing phone number or message",
			})
			continue
		}

		if sent && delay > 0 {
			time.Sleep(delay)
		}
		result := h.Sender.SendText(recipient.PhoneNumber, recipient.Message)
		sent = true

		if recipient.ClientID != 0 {
			h.logCustomAlert(recipient.ClientID, recipient.PhoneNumber, recipient.Message, result)
		}

		results = append(results, bulkEntry{
			PhoneNumber: recipient.PhoneNumber,
			Success:     result.Success,
			Details:     result,
		})
	}

	successCount := 0
	for _, r := range results {
		if r.Success {
			successCount++
		}
	}
	failedCount := len(results) - successCount

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Sent %d message(s), %d failed", successCount, failedCount),
		"results": results,
		"summary": gin.H{
			"total":   len(results),
			"success": successCount,
			"failed":  failedCount,
		},
	})
}

type TestConnectionRequest struct {
	TestNumber string `json:"testNumber" binding:"required"`
}

// TestConnection sends a fixed probe message so an admin can confirm
// the provider credentials before relying on the alert pipeline.
func (h *WhatsAppHandler) TestConnection(c *gin.Context) {
	var req TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Test number is required"})
		return
	}

	result := h.Sender.SendText(req.TestNumber, "WhatsApp connection test: your messaging setup is working.")

	msg := "Connection test failed"
	if result.Success {
		msg = "Connection test succeeded"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": result.Success,
		"message": msg,
		"details": result,
	})
}

type alertHistoryRow struct {
	models.WhatsAppAlert
	ClientName *string `json:"client_name"`
}

func (h *WhatsAppHandler) GetAlerts(c *gin.Context) {
	page, limit, offset := paginationParams(c)

	base := h.DB.Table("whatsapp_alerts a")
	if clientID := c.Query("client_id"); clientID != "" {
		base = base.Where("a.client_id = ?", clientID)
	}
	if msgType := c.Query("message_type"); msgType != "" {
		base = base.Where("a.message_type = ?", msgType)
	}
	if status := c.Query("status"); status != "" {
		base = base.Where("a.status = ?", status)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	var alertRows []alertHistoryRow
	err := base.
		Select("a.*, c.name as client_name").
		Joins("LEFT JOIN clients c ON a.client_id = c.id").
		Order("a.created_at DESC").
		Limit(limit).Offset(offset).
		Scan(&alertRows).Error
	if err != nil {
		log.Printf("Error fetching alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}
	if alertRows == nil {
		alertRows = []alertHistoryRow{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"alerts":     alertRows,
		"pagination": paginate(page, limit, total),
	})
}

func (h *WhatsAppHandler) GetAlertStats(c *gin.Context) {
	type alertStats struct {
		TotalAlerts    int64 `json:"total_alerts"`
		SentCount      int64 `json:"sent_count"`
		FailedCount    int64 `json:"failed_count"`
		WelcomeCount   int64 `json:"welcome_count"`
		PreExpiryCount int64 `json:"pre_expiry_count"`
		ExpiryDayCount int64 `json:"expiry_day_count"`
		RenewalCount   int64 `json:"renewal_count"`
		CustomCount    int64 `json:"custom_count"`
	}

	var stats alertStats
	err := h.DB.Model(&models.WhatsAppAlert{}).
		Select(`COUNT(*) as total_alerts,
			SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END) as sent_count,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed_count,
			SUM(CASE WHEN message_type = 'welcome' THEN 1 ELSE 0 END) as welcome_count,
			SUM(CASE WHEN message_type = 'pre_expiry' THEN 1 ELSE 0 END) as pre_expiry_count,
			SUM(CASE WHEN message_type = 'expiry_day' THEN 1 ELSE 0 END) as expiry_day_count,
			SUM(CASE WHEN message_type = 'renewal' THEN 1 ELSE 0 END) as renewal_count,
			SUM(CASE WHEN message_type = 'custom' THEN 1 ELSE 0 END) as custom_count`).
		Scan(&stats).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// ResendAlert replays a logged alert to the same number and refreshes
// its delivery status in place.
func (h *WhatsAppHandler) ResendAlert(c *gin.Context) {
	var alert models.WhatsAppAlert
	if err := h.DB.First(&alert, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	result := h.Sender.SendText(alert.WhatsAppNumber, alert.MessageContent)

	status := "failed"
	if result.Success {
		status = "sent"
	}
	raw, _ := json.Marshal(result)
	err := h.DB.Model(&alert).Updates(map[string]interface{}{
		"status":       status,
		"api_response": string(raw),
		"sent_at":      time.Now(),
	}).Error
	if err != nil {
		log.Printf("Error updating alert %d after resend: %v", alert.ID, err)
	}

	msg := "Failed to resend alert"
	if result.Success {
		msg = "Alert resent successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": result.Success,
		"message": msg,
		"details": result,
	})
}

func (h *WhatsAppHandler) logCustomAlert(clientID uint, phoneNumber, message string, result *whatsapp.SendResult) {
	status := "failed"
	if result.Success {
		status = "sent"
	}
	raw, _ := json.Marshal(result)

	alert := models.WhatsAppAlert{
		ClientID:       clientID,
		WhatsAppNumber: phoneNumber,
		MessageType:    models.AlertTypeCustom,
		MessageContent: message,
		Status:         status,
		APIResponse:    string(raw),
		SentAt:         time.Now(),
	}
	if err := h.DB.Create(&alert).Error; err != nil {
		log.Printf("Error logging custom alert: %v", err)
	}
}
