package models

import (
	"time"
)

// Admin is a portal user able to log in to the management API.
type Admin struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	FullName  string    `gorm:"type:varchar(255)" json:"full_name"`
	Status    string    `gorm:"type:varchar(20);default:'active'" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Admin) TableName() string {
	return "admins"
}

// Client is an IPTV customer.
type Client struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Email          string         `gorm:"type:varchar(255)" json:"email"`
	Phone          string         `gorm:"type:varchar(50);not null" json:"phone"`
	WhatsAppNumber string         `gorm:"column:whatsapp_number;type:varchar(50);not null" json:"whatsapp_number"`
	Address        string         `gorm:"type:text" json:"address"`
	City           string         `gorm:"type:varchar(100)" json:"city"`
	Country        string         `gorm:"type:varchar(100)" json:"country"`
	Notes          string         `gorm:"type:text" json:"notes"`
	Status         string         `gorm:"type:varchar(20);default:'active'" json:"status"`
	Subscriptions  []Subscription `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE;" json:"subscriptions,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

// HostURL is an IPTV server endpoint assigned to subscriptions.
type HostURL struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	URL         string    `gorm:"type:text;not null" json:"url"`
	Description string    `gorm:"type:text" json:"description"`
	Status      string    `gorm:"type:varchar(20);default:'active'" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (HostURL) TableName() string {
	return "host_urls"
}

// Subscription ties a client to an IPTV package with generated credentials.
// The three *_sent flags guard each notification class against duplicate
// sends; all of them are reset on renewal.
type Subscription struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ClientID        uint      `gorm:"index;not null" json:"client_id"`
	HostURLID       *uint     `gorm:"index" json:"host_url_id"`
	PackageDuration int       `gorm:"not null" json:"package_duration"` // months: 1, 3, 6 or 12
	DeviceType      string    `gorm:"type:varchar(100)" json:"device_type"`
	Username        string    `gorm:"type:varchar(100)" json:"username"`
	Password        string    `gorm:"type:varchar(100)" json:"password"` // plaintext, shown to the client
	HashedPassword  string    `gorm:"type:varchar(255)" json:"-"`
	StartDate       time.Time `gorm:"not null" json:"start_date"`
	EndDate         time.Time `gorm:"index;not null" json:"end_date"`
	Status          string    `gorm:"type:varchar(20);default:'active';index" json:"status"`
	Price           float64   `json:"price"`
	PaymentStatus   string    `gorm:"type:varchar(20);default:'paid'" json:"payment_status"`
	Notes           string    `gorm:"type:text" json:"notes"`

	WelcomeSent      bool `gorm:"default:false" json:"welcome_sent"`
	PreExpirySent    bool `gorm:"default:false" json:"pre_expiry_sent"`
	ExpiryDaySent    bool `gorm:"default:false" json:"expiry_day_sent"`
	InvoiceGenerated bool `gorm:"default:false" json:"invoice_generated"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Subscription status values.
const (
	SubStatusActive    = "active"
	SubStatusExpired   = "expired"
	SubStatusCancelled = "cancelled"
)

// WhatsAppAlert is the audit log of every outbound notification.
// Rows are written once; only the manual resend operation touches
// status, api_response and sent_at afterwards.
type WhatsAppAlert struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ClientID       uint      `gorm:"index;not null" json:"client_id"`
	SubscriptionID *uint     `gorm:"index" json:"subscription_id"`
	WhatsAppNumber string    `gorm:"column:whatsapp_number;type:varchar(50);not null" json:"whatsapp_number"`
	MessageType    string    `gorm:"type:varchar(30);index" json:"message_type"` // welcome, pre_expiry, expiry_day, renewal, custom
	MessageContent string    `gorm:"type:text" json:"message_content"`
	Status         string    `gorm:"type:varchar(20)" json:"status"` // sent or failed
	APIResponse    string    `gorm:"type:text" json:"api_response"`
	SentAt         time.Time `json:"sent_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (WhatsAppAlert) TableName() string {
	return "whatsapp_alerts"
}

// Alert message types.
const (
	AlertTypeWelcome   = "welcome"
	AlertTypePreExpiry = "pre_expiry"
	AlertTypeExpiryDay = "expiry_day"
	AlertTypeRenewal   = "renewal"
	AlertTypeCustom    = "custom"
)

// Template is an editable WhatsApp message template with {PLACEHOLDER}
// tokens. Variables holds the declared placeholder names as a JSON array.
type Template struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TemplateType   string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"template_type"`
	TemplateName   string    `gorm:"type:varchar(255)" json:"template_name"`
	MessageContent string    `gorm:"type:text;not null" json:"message_content"`
	Description    string    `gorm:"type:text" json:"description"`
	Variables      string    `gorm:"type:text" json:"variables"`
	Status         string    `gorm:"type:varchar(20);default:'active'" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "whatsapp_templates"
}

// Invoice records a generated PDF for a subscription create or renewal.
type Invoice struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	InvoiceNumber  string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"invoice_number"`
	ClientID       uint      `gorm:"index;not null" json:"client_id"`
	SubscriptionID uint      `gorm:"index;not null" json:"subscription_id"`
	InvoiceDate    time.Time `json:"invoice_date"`
	Amount         float64   `json:"amount"`
	TaxAmount      float64   `json:"tax_amount"`
	TotalAmount    float64   `json:"total_amount"`
	PaymentStatus  string    `gorm:"type:varchar(20)" json:"payment_status"`
	InvoiceType    string    `gorm:"type:varchar(20)" json:"invoice_type"` // new or renewal
	PDFPath        string    `gorm:"type:text" json:"pdf_path"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}
