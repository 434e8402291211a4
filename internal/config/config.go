package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Database
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Auth
	JWTSecret     string
	JWTExpiresHrs int
	CronSecret    string
	AdminUsername string
	AdminPassword string

	// WhatsApp API
	WhatsAppAPIURL string
	WhatsAppToken  string
	PhoneNumberID  string

	// Alerts
	AlertDaysBeforeExpiry int
	AlertIntervalMinutes  int
	BulkMessageDelayMs    int
	PasswordLength        int

	// Invoices
	CompanyName    string
	CompanyAddress string
	CompanyPhone   string
	CompanyEmail   string
	CompanyWebsite string
	CurrencySymbol string
	TaxRate        float64
	InvoicePrefix  string
	InvoiceDir     string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "iptv_admin"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "./iptv_admin.db"),

		JWTSecret:     getEnv("JWT_SECRET", "change-this-secret"),
		JWTExpiresHrs: getEnvInt("JWT_EXPIRES_HOURS", 168),
		CronSecret:    getEnv("CRON_SECRET", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),

		WhatsAppAPIURL: getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppToken:  getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		PhoneNumberID:  getEnv("PHONE_NUMBER_ID", ""),

		AlertDaysBeforeExpiry: getEnvInt("ALERT_DAYS_BEFORE_EXPIRY", 7),
		AlertIntervalMinutes:  getEnvInt("ALERT_CHECK_INTERVAL_MINUTES", 60),
		BulkMessageDelayMs:    getEnvInt("BULK_MESSAGE_DELAY_MS", 2000),
		PasswordLength:        getEnvInt("PASSWORD_LENGTH", 10),

		CompanyName:    getEnv("COMPANY_NAME", "IPTV Solutions"),
		CompanyAddress: getEnv("COMPANY_ADDRESS", "Business Address"),
		CompanyPhone:   getEnv("COMPANY_PHONE", "+1234567890"),
		CompanyEmail:   getEnv("COMPANY_EMAIL", "info@example.com"),
		CompanyWebsite: getEnv("COMPANY_WEBSITE", "www.example.com"),
		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "$"),
		TaxRate:        getEnvFloat("TAX_RATE", 0),
		InvoicePrefix:  getEnv("INVOICE_PREFIX", "INV"),
		InvoiceDir:     getEnv("INVOICE_DIR", "./invoices"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid integer for %s: %q", key, value)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid number for %s: %q", key, value)
	}
	return fallback
}
