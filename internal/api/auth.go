package api

import (
	"log"
	"net/http"
	"time"

	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	Config *config.Config
	DB     *gorm.DB
}

func NewAuthHandler(cfg *config.Config, db *gorm.DB) *AuthHandler {
	return &AuthHandler{Config: cfg, DB: db}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	var admin models.Admin
	err := h.DB.Where("username = ? AND status = ?", req.Username, "active").First(&admin).Error
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	expires := time.Duration(h.Config.JWTExpiresHrs) * time.Hour
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       admin.ID,
		"username": admin.Username,
		"email":    admin.Email,
		"exp":      time.Now().Add(expires).Unix(),
	})

	signed, err := token.SignedString([]byte(h.Config.JWTSecret))
	if err != nil {
		log.Printf("Error signing token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"token":   signed,
		"admin": gin.H{
			"id":        admin.ID,
			"username":  admin.Username,
			"email":     admin.Email,
			"full_name": admin.FullName,
		},
	})
}

func (h *AuthHandler) Verify(c *gin.Context) {
	tokenStr := bearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "No token provided"})
		return
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.Config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "Invalid token"})
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "Invalid token"})
		return
	}
	id, _ := claims["id"].(float64)

	var admin models.Admin
	if err := h.DB.Where("id = ? AND status = ?", uint(id), "active").First(&admin).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "Admin not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"admin": gin.H{
			"id":        admin.ID,
			"username":  admin.Username,
			"email":     admin.Email,
			"full_name": admin.FullName,
		},
	})
}
