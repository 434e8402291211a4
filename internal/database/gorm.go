package database

import (
	"fmt"
	"log"

	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and runs migrations.
// DB_DRIVER selects postgres for production or sqlite for small
// single-host deployments.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.DBDriver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Printf("Connected to %s database", cfg.DBDriver)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Admin{},
		&models.Client{},
		&models.HostURL{},
		&models.Subscription{},
		&models.WhatsAppAlert{},
		&models.Template{},
		&models.Invoice{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}

// Seed creates the default admin account and the stock message
// templates when they are missing. Safe to call on every startup.
func Seed(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.Admin{}).Where("username = ?", cfg.AdminUsername).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin := models.Admin{
			Username: cfg.AdminUsername,
			Password: string(hash),
			Status:   "active",
		}
		if err := db.Create(&admin).Error; err != nil {
			return err
		}
		log.Printf("Default admin created: %s", cfg.AdminUsername)
	}

	return seedTemplates(db)
}

func seedTemplates(db *gorm.DB) error {
	defaults := []models.Template{
		{
			TemplateType:   models.AlertTypeWelcome,
			TemplateName:   "Welcome Message",
			MessageContent: "Hello {CLIENT_NAME}! Your IPTV subscription is active.\nUsername: {USERNAME}\nPassword: {PASSWORD}\nHost: {HOST_URL}\nValid: {START_DATE} to {END_DATE} ({PACKAGE_DURATION} month(s))",
			Description:    "Sent when a new subscription is created",
			Variables:      `["CLIENT_NAME","USERNAME","PASSWORD","HOST_URL","START_DATE","END_DATE","PACKAGE_DURATION"]`,
			Status:         "active",
		},
		{
			TemplateType:   models.AlertTypePreExpiry,
			TemplateName:   "Pre-Expiry Reminder",
			MessageContent: "Hello {CLIENT_NAME}, your subscription ({USERNAME}) expires on {END_DATE} - {DAYS_LEFT} day(s) left. Renew now to avoid interruption.",
			Description:    "Sent a few days before the subscription expires",
			Variables:      `["CLIENT_NAME","USERNAME","END_DATE","DAYS_LEFT"]`,
			Status:         "active",
		},
		{
			TemplateType:   models.AlertTypeExpiryDay,
			TemplateName:   "Expiry Day Notice",
			MessageContent: "Hello {CLIENT_NAME}, your subscription ({USERNAME}) expires today, {END_DATE}. Contact us to renew.",
			Description:    "Sent on the day the subscription expires",
			Variables:      `["CLIENT_NAME","USERNAME","END_DATE"]`,
			Status:         "active",
		},
		{
			TemplateType:   models.AlertTypeRenewal,
			TemplateName:   "Renewal Confirmation",
			MessageContent: "Hello {CLIENT_NAME}! Your subscription has been renewed.\nUsername: {USERNAME}\nPassword: {PASSWORD}\nHost: {HOST_URL}\nValid: {START_DATE} to {END_DATE} ({PACKAGE_DURATION} month(s))",
			Description:    "Sent when a subscription is renewed",
			Variables:      `["CLIENT_NAME","USERNAME","PASSWORD","HOST_URL","START_DATE","END_DATE","PACKAGE_DURATION"]`,
			Status:         "active",
		},
	}

	for _, tmpl := range defaults {
		var count int64
		if err := db.Model(&models.Template{}).Where("template_type = ?", tmpl.TemplateType).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := db.Create(&tmpl).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
