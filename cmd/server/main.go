package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/wbhoster/wbhoster/internal/alerts"
	"github.com/wbhoster/wbhoster/internal/api"
	"github.com/wbhoster/wbhoster/internal/config"
	"github.com/wbhoster/wbhoster/internal/database"
	"github.com/wbhoster/wbhoster/internal/invoice"
	"github.com/wbhoster/wbhoster/internal/whatsapp"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Seed(db, cfg); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	whatsappClient := whatsapp.NewClient(cfg)
	invoiceService := invoice.NewService(cfg, db)
	alertService := alerts.NewService(cfg, db, whatsappClient)

	authHandler := api.NewAuthHandler(cfg, db)
	clientHandler := api.NewClientHandler(db)
	subscriptionHandler := api.NewSubscriptionHandler(cfg, db, alertService, invoiceService)
	hostURLHandler := api.NewHostURLHandler(db)
	templateHandler := api.NewTemplateHandler(db, whatsappClient)
	whatsappHandler := api.NewWhatsAppHandler(cfg, db, whatsappClient, alertService)

	r := gin.Default()
	r.Use(api.CORS())

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	// Auth Routes
	r.POST("/api/auth/login", authHandler.Login)
	r.GET("/api/auth/verify", authHandler.Verify)

	// Cron trigger (shared-secret, no JWT)
	r.POST("/api/whatsapp/cron/check-expiry", api.CronSecretRequired(cfg), whatsappHandler.CronCheckExpiry)

	// Generated invoices are served as static files
	r.Static("/invoices", cfg.InvoiceDir)

	apiGroup := r.Group("/api")
	apiGroup.Use(api.AuthRequired(cfg))
	{
		// Client Routes
		apiGroup.GET("/clients", clientHandler.GetClients)
		apiGroup.GET("/clients/:id", clientHandler.GetClient)
		apiGroup.GET("/clients/:id/stats", clientHandler.GetClientStats)
		apiGroup.POST("/clients", clientHandler.CreateClient)
		apiGroup.PUT("/clients/:id", clientHandler.UpdateClient)
		apiGroup.DELETE("/clients/:id", clientHandler.DeleteClient)

		// Subscription Routes
		apiGroup.GET("/subscriptions", subscriptionHandler.GetSubscriptions)
		apiGroup.GET("/subscriptions/stats/dashboard", subscriptionHandler.GetDashboardStats)
		apiGroup.GET("/subscriptions/:id", subscriptionHandler.GetSubscription)
		apiGroup.POST("/subscriptions", subscriptionHandler.CreateSubscription)
		apiGroup.POST("/subscriptions/:id/renew", subscriptionHandler.RenewSubscription)
		apiGroup.PUT("/subscriptions/:id", subscriptionHandler.UpdateSubscription)
		apiGroup.DELETE("/subscriptions/:id", subscriptionHandler.DeleteSubscription)
		apiGroup.GET("/subscriptions/:id/invoice", subscriptionHandler.DownloadInvoice)

		// Host URL Routes
		apiGroup.GET("/host-urls", hostURLHandler.GetHostURLs)
		apiGroup.GET("/host-urls/:id", hostURLHandler.GetHostURL)
		apiGroup.GET("/host-urls/:id/stats", hostURLHandler.GetHostURLStats)
		apiGroup.POST("/host-urls", hostURLHandler.CreateHostURL)
		apiGroup.PUT("/host-urls/:id", hostURLHandler.UpdateHostURL)
		apiGroup.DELETE("/host-urls/:id", hostURLHandler.DeleteHostURL)

		// Template Routes
		apiGroup.GET("/templates", templateHandler.GetTemplates)
		apiGroup.GET("/templates/:id", templateHandler.GetTemplate)
		apiGroup.GET("/templates/type/:type", templateHandler.GetTemplateByType)
		apiGroup.PUT("/templates/:id", templateHandler.UpdateTemplate)
		apiGroup.POST("/templates/:id/preview", templateHandler.PreviewTemplate)
		apiGroup.POST("/templates/:id/test", templateHandler.TestSendTemplate)

		// WhatsApp Routes
		whatsappGroup := apiGroup.Group("/whatsapp")
		{
			whatsappGroup.POST("/check-alerts", whatsappHandler.CheckAlerts)
			whatsappGroup.POST("/test-connection", whatsappHandler.TestConnection)
			whatsappGroup.POST("/send-custom", whatsappHandler.SendCustom)
			whatsappGroup.POST("/send-bulk", whatsappHandler.SendBulk)
			whatsappGroup.GET("/alerts", whatsappHandler.GetAlerts)
			whatsappGroup.GET("/alerts/stats", whatsappHandler.GetAlertStats)
			whatsappGroup.POST("/alerts/:id/resend", whatsappHandler.ResendAlert)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	alertService.StartScheduler(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
