package api

import (
	"log"
	"net/http"
	"time"

	"github.com/wbhoster/wbhoster/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ClientHandler struct {
	DB *gorm.DB
}

func NewClientHandler(db *gorm.DB) *ClientHandler {
	return &ClientHandler{DB: db}
}

type clientListRow struct {
	models.Client
	SubscriptionCount   int64      `json:"subscription_count"`
	ActiveSubscriptions int64      `json:"active_subscriptions"`
	LatestExpiry        *time.Time `json:"latest_expiry"`
}

func (h *ClientHandler) GetClients(c *gin.Context) {
	page, limit, offset := paginationParams(c)

	base := h.DB.Table("clients c")
	if search := c.Query("search"); search != "" {
		pattern := "%" + search + "%"
		base = base.Where("c.name LIKE ? OR c.phone LIKE ? OR c.email LIKE ? OR c.whatsapp_number LIKE ?",
			pattern, pattern, pattern, pattern)
	}
	if status := c.Query("status"); status != "" {
		base = base.Where("c.status = ?", status)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch clients"})
		return
	}

	var clients []clientListRow
	err := base.
		Select("c.*, COUNT(s.id) as subscription_count, SUM(CASE WHEN s.status = 'active' THEN 1 ELSE 0 END) as active_subscriptions, MAX(s.end_date) as latest_expiry").
		Joins("LEFT JOIN subscriptions s ON c.id = s.client_id").
		Group("c.id").
		Order("c.created_at DESC").
		Limit(limit).Offset(offset).
		Scan(&clients).Error
	if err != nil {
		log.Printf("Error fetching clients: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch clients"})
		return
	}
	if clients == nil {
		clients = []clientListRow{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"clients":    clients,
		"pagination": paginate(page, limit, total),
	})
}

func (h *ClientHandler) GetClient(c *gin.Context) {
	var client models.Client
	if err := h.DB.First(&client, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	var subs []subscriptionRow
	err := h.DB.Table("subscriptions s").
		Select("s.*, h.name as host_name, h.url as host_url").
		Joins("LEFT JOIN host_urls h ON s.host_url_id = h.id").
		Where("s.client_id = ?", client.ID).
		Order("s.created_at DESC").
		Scan(&subs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch client"})
		return
	}
	client.Subscriptions = nil

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"client":        client,
		"subscriptions": subs,
	})
}

type ClientRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email"`
	Phone          string `json:"phone" binding:"required"`
	WhatsAppNumber string `json:"whatsapp_number" binding:"required"`
	Address        string `json:"address"`
	City           string `json:"city"`
	Country        string `json:"country"`
	Notes          string `json:"notes"`
	Status         string `json:"status"`
}

func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name, phone, and WhatsApp number are required"})
		return
	}

	client := models.Client{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		WhatsAppNumber: req.WhatsAppNumber,
		Address:        req.Address,
		City:           req.City,
		Country:        req.Country,
		Notes:          req.Notes,
		Status:         "active",
	}
	if err := h.DB.Create(&client).Error; err != nil {
		log.Printf("Error creating client: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create client"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Client created successfully",
		"client":  client,
	})
}

func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var client models.Client
	if err := h.DB.First(&client, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := req.Status
	if status == "" {
		status = "active"
	}
	updates := map[string]interface{}{
		"name":            req.Name,
		"email":           req.Email,
		"phone":           req.Phone,
		"whatsapp_number": req.WhatsAppNumber,
		"address":         req.Address,
		"city":            req.City,
		"country":         req.Country,
		"notes":           req.Notes,
		"status":          status,
	}
	if err := h.DB.Model(&client).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update client"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Client updated successfully",
		"client":  client,
	})
}

// DeleteClient removes a client and everything hanging off it:
// subscriptions, alert history and invoices.
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	id := c.Param("id")

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", id).Delete(&models.WhatsAppAlert{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.Invoice{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.Subscription{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Client{}, id).Error
	})
	if err != nil {
		log.Printf("Error deleting client %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete client"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Client deleted successfully"})
}

func (h *ClientHandler) GetClientStats(c *gin.Context) {
	type clientStats struct {
		TotalSubscriptions   int64    `json:"total_subscriptions"`
		ActiveSubscriptions  int64    `json:"active_subscriptions"`
		ExpiredSubscriptions int64    `json:"expired_subscriptions"`
		TotalRevenue         *float64 `json:"total_revenue"`
	}

	var stats clientStats
	err := h.DB.Table("subscriptions s").
		Select("COUNT(s.id) as total_subscriptions, SUM(CASE WHEN s.status = 'active' THEN 1 ELSE 0 END) as active_subscriptions, SUM(CASE WHEN s.status = 'expired' THEN 1 ELSE 0 END) as expired_subscriptions, SUM(s.price) as total_revenue").
		Where("s.client_id = ?", c.Param("id")).
		Scan(&stats).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
