package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wbhoster/wbhoster/internal/models"
	"github.com/wbhoster/wbhoster/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TemplateHandler struct {
	DB     *gorm.DB
	Sender Sender
}

func NewTemplateHandler(db *gorm.DB, sender Sender) *TemplateHandler {
	return &TemplateHandler{DB: db, Sender: sender}
}

// templateView unpacks the stored JSON variables array for API
// responses.
type templateView struct {
	models.Template
	ParsedVariables []string `json:"variables"`
}

func toView(tmpl models.Template) templateView {
	view := templateView{Template: tmpl}
	if tmpl.Variables != "" {
		_ = json.Unmarshal([]byte(tmpl.Variables), &view.ParsedVariables)
	}
	if view.ParsedVariables == nil {
		view.ParsedVariables = []string{}
	}
	return view
}

func (h *TemplateHandler) GetTemplates(c *gin.Context) {
	query := h.DB.Order("template_type ASC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var templates []models.Template
	if err := query.Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates"})
		return
	}

	views := make([]templateView, 0, len(templates))
	for _, tmpl := range templates {
		views = append(views, toView(tmpl))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "templates": views})
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	var tmpl models.Template
	if err := h.DB.First(&tmpl, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": toView(tmpl)})
}

func (h *TemplateHandler) GetTemplateByType(c *gin.Context) {
	var tmpl models.Template
	if err := h.DB.Where("template_type = ?", c.Param("type")).First(&tmpl).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": toView(tmpl)})
}

type UpdateTemplateRequest struct {
	TemplateName   string   `json:"template_name"`
	MessageContent string   `json:"message_content"`
	Description    string   `json:"description"`
	Variables      []string `json:"variables"`
	Status         string   `json:"status"`
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var tmpl models.Template
	if err := h.DB.First(&tmpl, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}

	var req UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	variablesJSON := "[]"
	if req.Variables != nil {
		raw, err := json.Marshal(req.Variables)
		if err == nil {
			variablesJSON = string(raw)
		}
	}

	updates := map[string]interface{}{
		"template_name":   req.TemplateName,
		"message_content": req.MessageContent,
		"description":     req.Description,
		"variables":       variablesJSON,
		"status":          req.Status,
	}
	if err := h.DB.Model(&tmpl).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update template"})
		return
	}

	h.DB.First(&tmpl, tmpl.ID)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Template updated successfully",
		"template": toView(tmpl),
	})
}

type PreviewRequest struct {
	SampleData map[string]interface{} `json:"sampleData"`
}

// PreviewTemplate renders the template with sample values; absent
// placeholders show a [Missing] sentinel so the admin can spot gaps.
func (h *TemplateHandler) PreviewTemplate(c *gin.Context) {
	var tmpl models.Template
	if err := h.DB.First(&tmpl, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preview := whatsapp.RenderPreview(tmpl.MessageContent, stringValues(req.SampleData))

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"preview":          preview,
		"originalTemplate": tmpl.MessageContent,
	})
}

type TestSendRequest struct {
	PhoneNumber string                 `json:"phoneNumber" binding:"required"`
	TestData    map[string]interface{} `json:"testData"`
}

func (h *TemplateHandler) TestSendTemplate(c *gin.Context) {
	var tmpl models.Template
	if err := h.DB.First(&tmpl, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}

	var req TestSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number is required"})
		return
	}

	message := whatsapp.Render(tmpl.MessageContent, stringValues(req.TestData))
	result := h.Sender.SendText(req.PhoneNumber, message)

	msg := "Failed to send test message"
	if result.Success {
		msg = "Test message sent successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": result.Success,
		"message": msg,
		"details": result,
	})
}

func stringValues(data map[string]interface{}) map[string]string {
	vars := make(map[string]string, len(data))
	for key, value := range data {
		if value == nil {
			continue
		}
		vars[key] = fmt.Sprint(value)
	}
	return vars
}
