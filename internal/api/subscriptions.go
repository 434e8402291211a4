package api

import (
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wbhoster/wbhoster/internal/alerts"
	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/database"
	"github.com/wbhoster/wbhoster/internal/invoice"
	"github.com/wbhoster/wbhoster/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var validDurations = map[int]bool{1: true, 3: true, 6: true, 12: true}

var errMissingCredentials = errors.New("username and password required when auto_generate is false")

type SubscriptionHandler struct {
	Config   *config.Config
	DB       *gorm.DB
	Alerts   *alerts.Service
	Invoices *invoice.Service
}

func NewSubscriptionHandler(cfg *config.Config, db *gorm.DB, alertSvc *alerts.Service, invoiceSvc *invoice.Service) *SubscriptionHandler {
	return &SubscriptionHandler{Config: cfg, DB: db, Alerts: alertSvc, Invoices: invoiceSvc}
}

// subscriptionRow is a subscription joined with client and host data
// for listings.
type subscriptionRow struct {
	models.Subscription
	ClientName     string  `json:"client_name"`
	WhatsAppNumber string  `gorm:"column:whatsapp_number" json:"whatsapp_number"`
	HostName       *string `json:"host_name"`
	HostURL        *string `json:"host_url"`
	DaysLeft       int     `gorm:"-" json:"days_left"`
}

func daysLeft(endDate time.Time) int {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 0, 0, 0, 0, endDate.Location())
	// Round so a DST-shortened day does not understate the count.
	return int(end.Sub(today).Round(24*time.Hour) / (24 * time.Hour))
}

func (h *SubscriptionHandler) GetSubscriptions(c *gin.Context) {
	page, limit, offset := paginationParams(c)

	base := h.DB.Table("subscriptions s").
		Joins("JOIN clients c ON s.client_id = c.id").
		Joins("LEFT JOIN host_urls h ON s.host_url_id = h.id")

	if status := c.Query("status"); status != "" {
		base = base.Where("s.status = ?", status)
	}
	if clientID := c.Query("client_id"); clientID != "" {
		base = base.Where("s.client_id = ?", clientID)
	}
	if expiring := c.Query("expiring_days"); expiring != "" {
		now := time.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if days, err := strconv.Atoi(expiring); err == nil && days >= 0 {
			base = base.Where("s.status = ? AND s.end_date >= ? AND s.end_date < ?",
				models.SubStatusActive, today, today.AddDate(0, 0, days+1))
		}
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscriptions"})
		return
	}

	var subs []subscriptionRow
	err := base.
		Select("s.*, c.name as client_name, c.whatsapp_number, h.name as host_name, h.url as host_url").
		Order("s.end_date ASC").
		Limit(limit).Offset(offset).
		Scan(&subs).Error
	if err != nil {
		log.Printf("Error fetching subscriptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscriptions"})
		return
	}
	if subs == nil {
		subs = []subscriptionRow{}
	}
	for i := range subs {
		subs[i].DaysLeft = daysLeft(subs[i].EndDate)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"subscriptions": subs,
		"pagination":    paginate(page, limit, total),
	})
}

func (h *SubscriptionHandler) GetDashboardStats(c *gin.Context) {
	type dashboardStats struct {
		TotalClients         int64    `json:"total_clients"`
		TotalSubscriptions   int64    `json:"total_subscriptions"`
		ActiveSubscriptions  int64    `json:"active_subscriptions"`
		ExpiredSubscriptions int64    `json:"expired_subscriptions"`
		ExpiringSoon         int64    `json:"expiring_soon"`
		TotalRevenue         *float64 `json:"total_revenue"`
	}

	var stats dashboardStats
	h.DB.Model(&models.Client{}).Count(&stats.TotalClients)
	h.DB.Model(&models.Subscription{}).Count(&stats.TotalSubscriptions)
	h.DB.Model(&models.Subscription{}).Where("status = ?", models.SubStatusActive).Count(&stats.ActiveSubscriptions)
	h.DB.Model(&models.Subscription{}).Where("status = ?", models.SubStatusExpired).Count(&stats.ExpiredSubscriptions)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	h.DB.Model(&models.Subscription{}).
		Where("status = ? AND end_date >= ? AND end_date < ?",
			models.SubStatusActive, today, today.AddDate(0, 0, h.Config.AlertDaysBeforeExpiry+1)).
		Count(&stats.ExpiringSoon)

	h.DB.Model(&models.Subscription{}).Select("SUM(price)").Scan(&stats.TotalRevenue)

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	var sub subscriptionRow
	err := h.DB.Table("subscriptions s").
		Select("s.*, c.name as client_name, c.whatsapp_number, h.name as host_name, h.url as host_url").
		Joins("JOIN clients c ON s.client_id = c.id").
		Joins("LEFT JOIN host_urls h ON s.host_url_id = h.id").
		Where("s.id = ?", c.Param("id")).
		Scan(&sub).Error
	if err != nil || sub.ID == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}
	sub.DaysLeft = daysLeft(sub.EndDate)

	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": sub})
}

type CreateSubscriptionRequest struct {
	ClientID        uint    `json:"client_id" binding:"required"`
	HostURLID       *uint   `json:"host_url_id"`
	PackageDuration int     `json:"package_duration" binding:"required"`
	Price           float64 `json:"price"`
	PaymentStatus   string  `json:"payment_status"`
	DeviceType      string  `json:"device_type"`
	Notes           string  `json:"notes"`
	AutoGenerate    *bool   `json:"auto_generate"`
	Username        string  `json:"username"`
	Password        string  `json:"password"`
}

func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Client ID and package duration are required"})
		return
	}
	if !validDurations[req.PackageDuration] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Package duration must be 1, 3, 6, or 12 months"})
		return
	}

	var client models.Client
	if err := h.DB.First(&client, req.ClientID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	username, plainPassword, err := h.credentials(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = "paid"
	}

	now := time.Now()
	startDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endDate := startDate.AddDate(0, req.PackageDuration, 0)

	sub := models.Subscription{
		ClientID:        client.ID,
		HostURLID:       req.HostURLID,
		PackageDuration: req.PackageDuration,
		DeviceType:      req.DeviceType,
		Username:        username,
		Password:        plainPassword,
		HashedPassword:  string(hashed),
		StartDate:       startDate,
		EndDate:         endDate,
		Status:          models.SubStatusActive,
		Price:           req.Price,
		PaymentStatus:   paymentStatus,
		Notes:           req.Notes,
	}
	if err := h.DB.Create(&sub).Error; err != nil {
		log.Printf("Error creating subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	hostURL := h.hostURLFor(sub.HostURLID)

	// Best effort: neither a failed invoice nor a failed message rolls
	// back the subscription.
	invoiceResult := h.Invoices.Generate(&client, &sub, "new")
	h.Alerts.SendWelcome(&client, &sub, plainPassword, hostURL)

	h.DB.First(&sub, sub.ID)

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      "Subscription created successfully",
		"subscription": sub,
		"invoice":      invoiceResult,
	})
}

type RenewSubscriptionRequest struct {
	PackageDuration int     `json:"package_duration" binding:"required"`
	Price           float64 `json:"price"`
	PaymentStatus   string  `json:"payment_status"`
}

// RenewSubscription issues fresh credentials and dates. The new term
// starts at today or at the old end date, whichever is later, and all
// notification flags reset so the new cycle alerts again.
func (h *SubscriptionHandler) RenewSubscription(c *gin.Context) {
	var req RenewSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validDurations[req.PackageDuration] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Valid package duration (1, 3, 6, or 12) is required"})
		return
	}

	var sub models.Subscription
	if err := h.DB.First(&sub, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	var client models.Client
	if err := h.DB.First(&client, sub.ClientID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	now := time.Now()
	startDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if sub.EndDate.After(startDate) {
		startDate = time.Date(sub.EndDate.Year(), sub.EndDate.Month(), sub.EndDate.Day(), 0, 0, 0, 0, sub.EndDate.Location())
	}
	endDate := startDate.AddDate(0, req.PackageDuration, 0)

	username, err := database.GenerateUsername(h.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to renew subscription"})
		return
	}
	plainPassword, err := database.GeneratePassword(h.Config.PasswordLength)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to renew subscription"})
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to renew subscription"})
		return
	}

	price := req.Price
	if price == 0 {
		price = sub.Price
	}
	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = "paid"
	}

	updates := map[string]interface{}{
		"package_duration": req.PackageDuration,
		"username":         username,
		"password":         plainPassword,
		"hashed_password":  string(hashed),
		"start_date":       startDate,
		"end_date":         endDate,
		"price":            price,
		"payment_status":   paymentStatus,
		"status":           models.SubStatusActive,
		"welcome_sent":     false,
		"pre_expiry_sent":  false,
		"expiry_day_sent":  false,
	}
	if err := h.DB.Model(&sub).Updates(updates).Error; err != nil {
		log.Printf("Error renewing subscription %d: %v", sub.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to renew subscription"})
		return
	}

	h.DB.First(&sub, sub.ID)
	hostURL := h.hostURLFor(sub.HostURLID)

	invoiceResult := h.Invoices.Generate(&client, &sub, "renewal")
	h.Alerts.SendRenewal(&client, &sub, plainPassword, hostURL)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Subscription renewed successfully",
		"subscription": sub,
		"invoice":      invoiceResult,
	})
}

type UpdateSubscriptionRequest struct {
	HostURLID     *uint    `json:"host_url_id"`
	Status        *string  `json:"status"`
	Price         *float64 `json:"price"`
	PaymentStatus *string  `json:"payment_status"`
	DeviceType    *string  `json:"device_type"`
	Notes         *string  `json:"notes"`
}

func (h *SubscriptionHandler) UpdateSubscription(c *gin.Context) {
	var sub models.Subscription
	if err := h.DB.First(&sub, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.HostURLID != nil {
		updates["host_url_id"] = *req.HostURLID
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.PaymentStatus != nil {
		updates["payment_status"] = *req.PaymentStatus
	}
	if req.DeviceType != nil {
		updates["device_type"] = *req.DeviceType
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&sub).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscription"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Subscription updated successfully",
		"subscription": sub,
	})
}

func (h *SubscriptionHandler) DeleteSubscription(c *gin.Context) {
	if err := h.DB.Delete(&models.Subscription{}, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Subscription deleted successfully"})
}

// DownloadInvoice streams the most recent invoice PDF for a
// subscription.
func (h *SubscriptionHandler) DownloadInvoice(c *gin.Context) {
	var inv models.Invoice
	err := h.DB.Where("subscription_id = ?", c.Param("id")).
		Order("created_at DESC").First(&inv).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	path := h.Invoices.File(filepath.Base(inv.PDFPath))
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice file not found"})
		return
	}

	c.FileAttachment(path, inv.InvoiceNumber+".pdf")
}

func (h *SubscriptionHandler) credentials(req *CreateSubscriptionRequest) (username, plainPassword string, err error) {
	autoGenerate := req.AutoGenerate == nil || *req.AutoGenerate
	if !autoGenerate {
		if req.Username == "" || req.Password == "" {
			return "", "", errMissingCredentials
		}
		return req.Username, req.Password, nil
	}

	username, err = database.GenerateUsername(h.DB)
	if err != nil {
		return "", "", err
	}
	plainPassword, err = database.GeneratePassword(h.Config.PasswordLength)
	if err != nil {
		return "", "", err
	}
	return username, plainPassword, nil
}

func (h *SubscriptionHandler) hostURLFor(id *uint) string {
	if id == nil {
		return ""
	}
	var host models.HostURL
	if err := h.DB.First(&host, *id).Error; err != nil {
		return ""
	}
	return host.URL
}
