package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/wbhoster/wbhoster/internal/alerts"
	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/database"
	"github.com/wbhoster/wbhoster/internal/invoice"
	"github.com/wbhoster/wbhoster/internal/models"
	"github.com/wbhoster/wbhoster/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// stubSender satisfies both the handler and the alert service seams.
type stubSender struct {
	calls []string
	bodys []string
	fail  bool
}

func (s *stubSender) SendText(phoneNumber, body string) *whatsapp.SendResult {
	s.calls = append(s.calls, phoneNumber)
	s.bodys = append(s.bodys, body)
	if s.fail {
		return &whatsapp.SendResult{Success: false, Message: "Failed to send message", Error: "stub failure", PhoneNumber: phoneNumber}
	}
	return &whatsapp.SendResult{Success: true, Message: "Message sent successfully", MessageID: "wamid.STUB", PhoneNumber: phoneNumber}
}

type testEnv struct {
	cfg    *config.Config
	db     *gorm.DB
	sender *stubSender
	router *gin.Engine
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		DBDriver:              "sqlite",
		SQLitePath:            filepath.Join(t.TempDir(), "test.db"),
		JWTSecret:             "test-secret",
		JWTExpiresHrs:         1,
		CronSecret:            "cron-secret",
		AdminUsername:         "admin",
		AdminPassword:         "admin123",
		AlertDaysBeforeExpiry: 7,
		PasswordLength:        10,
		CurrencySymbol:        "$",
		TaxRate:               10,
		InvoicePrefix:         "INV",
		InvoiceDir:            t.TempDir(),
		CompanyName:           "Test IPTV",
		CompanyEmail:          "billing@test.example",
	}

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Seed(db, cfg); err != nil {
		t.Fatalf("seed db: %v", err)
	}

	sender := &stubSender{}
	invoiceService := invoice.NewService(cfg, db)
	alertService := alerts.NewService(cfg, db, sender)

	authHandler := NewAuthHandler(cfg, db)
	clientHandler := NewClientHandler(db)
	subscriptionHandler := NewSubscriptionHandler(cfg, db, alertService, invoiceService)
	hostURLHandler := NewHostURLHandler(db)
	templateHandler := NewTemplateHandler(db, sender)
	whatsappHandler := NewWhatsAppHandler(cfg, db, sender, alertService)

	r := gin.New()
	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/whatsapp/cron/check-expiry", CronSecretRequired(cfg), whatsappHandler.CronCheckExpiry)

	apiGroup := r.Group("/api")
	apiGroup.Use(AuthRequired(cfg))
	{
		apiGroup.GET("/auth/verify", authHandler.Verify)
		apiGroup.GET("/clients", clientHandler.GetClients)
		apiGroup.POST("/clients", clientHandler.CreateClient)
		apiGroup.DELETE("/clients/:id", clientHandler.DeleteClient)
		apiGroup.GET("/subscriptions", subscriptionHandler.GetSubscriptions)
		apiGroup.POST("/subscriptions", subscriptionHandler.CreateSubscription)
		apiGroup.POST("/subscriptions/:id/renew", subscriptionHandler.RenewSubscription)
		apiGroup.POST("/host-urls", hostURLHandler.CreateHostURL)
		apiGroup.DELETE("/host-urls/:id", hostURLHandler.DeleteHostURL)
		apiGroup.POST("/templates/:id/preview", templateHandler.PreviewTemplate)
		apiGroup.POST("/whatsapp/send-bulk", whatsappHandler.SendBulk)
		apiGroup.GET("/whatsapp/alerts", whatsappHandler.GetAlerts)
	}

	env := &testEnv{cfg: cfg, db: db, sender: sender, router: r}
	env.token = env.login(t, "admin", "admin123")
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/auth/login",
		gin.H{"username": username, "password": password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createClient(t *testing.T) uint {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/clients", gin.H{
		"name":            "Alice",
		"phone":           "15550001111",
		"whatsapp_number": "15550001111",
		"email":           "alice@example.com",
	}, e.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create client status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Client models.Client `json:"client"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Client.ID
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodPost, "/api/auth/login",
		gin.H{"username": "admin", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/clients", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/clients", nil, "not-a-jwt")
	if w.Code != http.StatusForbidden {
		t.Errorf("garbage token: status = %d, want 403", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/clients", nil, env.token)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestCreateSubscriptionFlow(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	w := env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 3,
		"price":            30,
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Subscription models.Subscription `json:"subscription"`
		Invoice      invoice.Result      `json:"invoice"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	sub := resp.Subscription

	if sub.Username == "" || sub.Password == "" {
		t.Error("credentials not generated")
	}
	if got := sub.EndDate.Sub(sub.StartDate); got < 85*24*time.Hour || got > 95*24*time.Hour {
		t.Errorf("term length = %v, want about 3 months", got)
	}
	if !sub.WelcomeSent {
		t.Error("welcome_sent not set after successful send")
	}
	if !resp.Invoice.Success {
		t.Errorf("invoice generation failed: %s", resp.Invoice.Error)
	}

	// The welcome message carries the actual credentials.
	if len(env.sender.bodys) != 1 {
		t.Fatalf("sends = %d, want 1", len(env.sender.bodys))
	}

	var alert models.WhatsAppAlert
	if err := env.db.Where("subscription_id = ?", sub.ID).First(&alert).Error; err != nil {
		t.Fatalf("welcome alert not logged: %v", err)
	}
	if alert.MessageType != models.AlertTypeWelcome || alert.Status != "sent" {
		t.Errorf("alert = %s/%s, want welcome/sent", alert.MessageType, alert.Status)
	}

	var inv models.Invoice
	if err := env.db.Where("subscription_id = ?", sub.ID).First(&inv).Error; err != nil {
		t.Fatalf("invoice row not created: %v", err)
	}
	if inv.InvoiceType != "new" {
		t.Errorf("invoice type = %q, want new", inv.InvoiceType)
	}
	if inv.TotalAmount != 33 {
		t.Errorf("total = %v, want 33 with 10%% tax", inv.TotalAmount)
	}
}

func TestCreateSubscriptionBadDuration(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	w := env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 5,
	}, env.token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateSubscriptionManualCredentials(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	auto := false
	w := env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 1,
		"auto_generate":    auto,
	}, env.token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing manual credentials: status = %d, want 400", w.Code)
	}

	w = env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 1,
		"auto_generate":    auto,
		"username":         "myuser",
		"password":         "mypassword",
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Subscription models.Subscription `json:"subscription"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Subscription.Username != "myuser" {
		t.Errorf("username = %q, want myuser", resp.Subscription.Username)
	}
}

func TestRenewSubscriptionResetsFlags(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	w := env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 1,
		"price":            10,
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var created struct {
		Subscription models.Subscription `json:"subscription"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	subID := created.Subscription.ID
	oldUsername := created.Subscription.Username

	// Simulate an elapsed cycle with its alerts already fired.
	env.db.Model(&models.Subscription{}).Where("id = ?", subID).Updates(map[string]interface{}{
		"pre_expiry_sent": true,
		"expiry_day_sent": true,
		"status":          models.SubStatusExpired,
	})

	w = env.request(t, http.MethodPost,
		"/api/subscriptions/"+itoa(subID)+"/renew",
		gin.H{"package_duration": 3}, env.token)
	if w.Code != http.StatusOK {
		t.Fatalf("renew status = %d: %s", w.Code, w.Body.String())
	}

	var fresh models.Subscription
	if err := env.db.First(&fresh, subID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.Status != models.SubStatusActive {
		t.Errorf("status = %q, want active", fresh.Status)
	}
	if fresh.WelcomeSent || fresh.PreExpirySent || fresh.ExpiryDaySent {
		t.Error("notification flags not reset on renewal")
	}
	if fresh.Username == oldUsername {
		t.Error("renewal did not rotate credentials")
	}
	if fresh.PackageDuration != 3 {
		t.Errorf("duration = %d, want 3", fresh.PackageDuration)
	}

	var invoiceCount int64
	env.db.Model(&models.Invoice{}).Where("subscription_id = ? AND invoice_type = ?", subID, "renewal").Count(&invoiceCount)
	if invoiceCount != 1 {
		t.Errorf("renewal invoices = %d, want 1", invoiceCount)
	}

	var renewalAlert models.WhatsAppAlert
	err := env.db.Where("subscription_id = ? AND message_type = ?", subID, models.AlertTypeRenewal).
		First(&renewalAlert).Error
	if err != nil {
		t.Error("renewal alert not logged")
	}
}

func TestRenewSubscriptionStartDatePivot(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	w := env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 1,
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var created struct {
		Subscription models.Subscription `json:"subscription"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	subID := created.Subscription.ID
	oldEnd := created.Subscription.EndDate

	// Old term still running: the new term starts where the old one ends.
	w = env.request(t, http.MethodPost,
		"/api/subscriptions/"+itoa(subID)+"/renew",
		gin.H{"package_duration": 3}, env.token)
	if w.Code != http.StatusOK {
		t.Fatalf("renew status = %d: %s", w.Code, w.Body.String())
	}

	var fresh models.Subscription
	if err := env.db.First(&fresh, subID).Error; err != nil {
		t.Fatal(err)
	}
	if !fresh.StartDate.Equal(oldEnd) {
		t.Errorf("start = %v, want old end %v", fresh.StartDate, oldEnd)
	}
	if want := fresh.StartDate.AddDate(0, 3, 0); !fresh.EndDate.Equal(want) {
		t.Errorf("end = %v, want start+3 months %v", fresh.EndDate, want)
	}

	// Lapsed term: the new term starts today instead.
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err := env.db.Model(&models.Subscription{}).Where("id = ?", subID).
		Updates(map[string]interface{}{
			"end_date": today.AddDate(0, 0, -10),
			"status":   models.SubStatusExpired,
		}).Error
	if err != nil {
		t.Fatal(err)
	}

	w = env.request(t, http.MethodPost,
		"/api/subscriptions/"+itoa(subID)+"/renew",
		gin.H{"package_duration": 1}, env.token)
	if w.Code != http.StatusOK {
		t.Fatalf("renew status = %d: %s", w.Code, w.Body.String())
	}

	if err := env.db.First(&fresh, subID).Error; err != nil {
		t.Fatal(err)
	}
	if !fresh.StartDate.Equal(today) {
		t.Errorf("start = %v, want today %v for a lapsed term", fresh.StartDate, today)
	}
	if want := today.AddDate(0, 1, 0); !fresh.EndDate.Equal(want) {
		t.Errorf("end = %v, want today+1 month %v", fresh.EndDate, want)
	}
}

func TestCronEndpointAuthorization(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/whatsapp/cron/check-expiry", nil, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("no secret: status = %d, want 403", w.Code)
	}

	w = env.request(t, http.MethodPost, "/api/whatsapp/cron/check-expiry", nil, "wrong")
	if w.Code != http.StatusForbidden {
		t.Errorf("wrong secret: status = %d, want 403", w.Code)
	}

	w = env.request(t, http.MethodPost, "/api/whatsapp/cron/check-expiry", nil, "cron-secret")
	if w.Code != http.StatusOK {
		t.Errorf("valid secret: status = %d, want 200", w.Code)
	}
}

func TestCronEndpointUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.CronSecret = ""

	w := env.request(t, http.MethodPost, "/api/whatsapp/cron/check-expiry", nil, "anything")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 when no secret is configured", w.Code)
	}
}

func TestDeleteHostURLGuard(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	w := env.request(t, http.MethodPost, "/api/host-urls", gin.H{
		"name": "EU Server",
		"url":  "http://eu.example:8080",
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create host status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		HostURL models.HostURL `json:"hostUrl"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	hostID := created.HostURL.ID

	w = env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"host_url_id":      hostID,
		"package_duration": 1,
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create subscription status = %d", w.Code)
	}

	w = env.request(t, http.MethodDelete, "/api/host-urls/"+itoa(hostID), nil, env.token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("delete in-use host: status = %d, want 400", w.Code)
	}

	var count int64
	env.db.Model(&models.HostURL{}).Count(&count)
	if count != 1 {
		t.Errorf("host urls = %d, want 1 still present", count)
	}
}

func TestDeleteClientCascades(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	w := env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 1,
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatal("create subscription failed")
	}

	w = env.request(t, http.MethodDelete, "/api/clients/"+itoa(clientID), nil, env.token)
	if w.Code != http.StatusOK {
		t.Fatalf("delete client status = %d: %s", w.Code, w.Body.String())
	}

	var subs, alertRows, invoices int64
	env.db.Model(&models.Subscription{}).Where("client_id = ?", clientID).Count(&subs)
	env.db.Model(&models.WhatsAppAlert{}).Where("client_id = ?", clientID).Count(&alertRows)
	env.db.Model(&models.Invoice{}).Where("client_id = ?", clientID).Count(&invoices)
	if subs != 0 || alertRows != 0 || invoices != 0 {
		t.Errorf("orphans left: subs=%d alerts=%d invoices=%d", subs, alertRows, invoices)
	}
}

func TestSendBulk(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)
	env.sender.calls = nil
	env.sender.bodys = nil

	w := env.request(t, http.MethodPost, "/api/whatsapp/send-bulk", gin.H{
		"recipients": []gin.H{
			{"clientId": clientID, "phoneNumber": "15550001111", "message": "hello"},
			{"phoneNumber": "", "message": "no number"},
			{"phoneNumber": "15550002222", "message": "hi"},
		},
	}, env.token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Summary struct {
			Total   int `json:"total"`
			Success int `json:"success"`
			Failed  int `json:"failed"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Summary.Total != 3 || resp.Summary.Success != 2 || resp.Summary.Failed != 1 {
		t.Errorf("summary = %+v, want 3/2/1", resp.Summary)
	}
	if len(env.sender.calls) != 2 {
		t.Errorf("sends = %d, want 2 (invalid entry skipped)", len(env.sender.calls))
	}

	// The entry with a client id is logged as a custom alert.
	var logged models.WhatsAppAlert
	err := env.db.Where("client_id = ? AND message_type = ?", clientID, models.AlertTypeCustom).
		First(&logged).Error
	if err != nil {
		t.Error("bulk send did not log a custom alert for the known client")
	}
}

func TestGetAlertsFilter(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.createClient(t)

	// One welcome alert from the subscription flow.
	w := env.request(t, http.MethodPost, "/api/subscriptions", gin.H{
		"client_id":        clientID,
		"package_duration": 1,
	}, env.token)
	if w.Code != http.StatusCreated {
		t.Fatal("create subscription failed")
	}

	w = env.request(t, http.MethodGet, "/api/whatsapp/alerts?message_type=welcome", nil, env.token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Alerts []struct {
			MessageType string  `json:"message_type"`
			ClientName  *string `json:"client_name"`
		} `json:"alerts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(resp.Alerts))
	}
	if resp.Alerts[0].ClientName == nil || *resp.Alerts[0].ClientName != "Alice" {
		t.Error("client name not joined onto the alert row")
	}

	w = env.request(t, http.MethodGet, "/api/whatsapp/alerts?message_type=renewal", nil, env.token)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Alerts) != 0 {
		t.Errorf("renewal alerts = %d, want 0", len(resp.Alerts))
	}
}

func itoa(n uint) string {
	return strconv.Itoa(int(n))
}
