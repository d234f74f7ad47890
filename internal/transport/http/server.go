package http

import (
	"github.com/gin-gonic/gin"

	"whatsapp-pdf-assistant/internal/bootstrap"
	"whatsapp-pdf-assistant/internal/transport/http/handler"
	"whatsapp-pdf-assistant/internal/transport/http/middleware"
)

// NewRouter wires every route. The returned webhook handler owns background
// replies and must be drained on shutdown.
func NewRouter(app *bootstrap.App) (*gin.Engine, *handler.WebhookHandler) {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	webhookHandler := handler.NewWebhookHandler(app.Assistant, webhookOptions(app), app.Logger.With("component", "webhook"))
	router.GET("/webhook", webhookHandler.Verify)
	router.POST("/webhook", webhookHandler.WhatsApp)
	router.POST("/webhook/twilio", webhookHandler.Twilio)

	adminHandler := handler.NewAdminHandler(app.Admin)
	adminGroup := router.Group("/admin")
	adminGroup.POST("/token", adminHandler.IssueToken)

	protected := adminGroup.Group("")
	protected.Use(middleware.AdminAuth(app.Admin))
	protected.GET("/feedback", adminHandler.ListFeedback)
	protected.GET("/reports", adminHandler.ListReports)
	protected.PUT("/reports/:id/status", adminHandler.UpdateReportStatus)

	return router, webhookHandler
}

func webhookOptions(app *bootstrap.App) handler.WebhookOptions {
	opts := handler.WebhookOptions{
		VerifyToken: app.Config.WhatsApp.VerifyToken,
		Timeout:     app.Config.Timeouts.Webhook(),
	}
	// Assign only non-nil clients so disabled channels stay nil interfaces.
	if app.WhatsApp != nil {
		opts.WhatsApp = app.WhatsApp
	}
	if app.Twilio != nil {
		opts.Twilio = app.Twilio
	}
	if app.Deduper != nil {
		opts.Dedup = append(opts.Dedup, app.Deduper.FirstSeen)
	}
	if app.ProcessedMessages != nil {
		opts.Dedup = append(opts.Dedup, app.ProcessedMessages.MarkProcessed)
	}
	return opts
}
