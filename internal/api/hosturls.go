package api

import (
	"fmt"
	"net/http"

	"github.com/wbhoster/wbhoster/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HostURLHandler struct {
	DB *gorm.DB
}

func NewHostURLHandler(db *gorm.DB) *HostURLHandler {
	return &HostURLHandler{DB: db}
}

func (h *HostURLHandler) GetHostURLs(c *gin.Context) {
	query := h.DB.Order("name ASC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var hostURLs []models.HostURL
	if err := query.Find(&hostURLs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch host URLs"})
		return
	}
	if hostURLs == nil {
		hostURLs = []models.HostURL{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "hostUrls": hostURLs})
}

func (h *HostURLHandler) GetHostURL(c *gin.Context) {
	var hostURL models.HostURL
	if err := h.DB.First(&hostURL, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Host URL not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "hostUrl": hostURL})
}

type HostURLRequest struct {
	Name        string `json:"name" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (h *HostURLHandler) CreateHostURL(c *gin.Context) {
	var req HostURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and URL are required"})
		return
	}

	status := req.Status
	if status == "" {
		status = "active"
	}
	hostURL := models.HostURL{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Status:      status,
	}
	if err := h.DB.Create(&hostURL).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create host URL"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Host URL created successfully",
		"hostUrl": hostURL,
	})
}

func (h *HostURLHandler) UpdateHostURL(c *gin.Context) {
	var hostURL models.HostURL
	if err := h.DB.First(&hostURL, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Host URL not found"})
		return
	}

	var req HostURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{
		"name":        req.Name,
		"url":         req.URL,
		"description": req.Description,
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if err := h.DB.Model(&hostURL).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update host URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Host URL updated successfully",
		"hostUrl": hostURL,
	})
}

// DeleteHostURL refuses to remove a host that subscriptions still
// point at.
func (h *HostURLHandler) DeleteHostURL(c *gin.Context) {
	id := c.Param("id")

	var count int64
	if err := h.DB.Model(&models.Subscription{}).Where("host_url_id = ?", id).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete host URL"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             fmt.Sprintf("Cannot delete host URL. It is used by %d subscription(s)", count),
			"subscriptionCount": count,
		})
		return
	}

	if err := h.DB.Delete(&models.HostURL{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete host URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Host URL deleted successfully"})
}

func (h *HostURLHandler) GetHostURLStats(c *gin.Context) {
	type hostStats struct {
		TotalSubscriptions  int64 `json:"total_subscriptions"`
		ActiveSubscriptions int64 `json:"active_subscriptions"`
	}

	var stats hostStats
	err := h.DB.Table("subscriptions s").
		Select("COUNT(s.id) as total_subscriptions, SUM(CASE WHEN s.status = 'active' THEN 1 ELSE 0 END) as active_subscriptions").
		Where("s.host_url_id = ?", c.Param("id")).
		Scan(&stats).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
