// Package api wires the dashboard REST endpoints, the WhatsApp webhook and
// the live event socket onto a gin engine.
package api

import (
	"log/slog"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/crm"
	"whatsapp-crm/internal/webhook"
	"whatsapp-crm/internal/ws"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Config    *config.Config
	Auth      *auth.Service
	CRM       *crm.Service
	Directory webhook.Directory
	Webhook   *webhook.Handler
	Hub       *ws.Hub
	Logger    *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Logger(), recovery(logger))
	r.Use(corsMiddleware(d.Config.CORSOrigins))
	r.Use(requestSizeLimiter(maxBodyBytes))
	r.Use(d.Auth.AttachSession())

	throttle := newIPLimiter(d.Config.RateLimitPerMinute).middleware()
	requireAuth := auth.RequireAuth()

	dashboardHandler := NewDashboardHandler(d.CRM, d.Config.Env)
	authHandler := NewAuthHandler(d.Auth, d.Config.IsProduction())
	conversationHandler := NewConversationHandler(d.CRM)
	templateHandler := NewTemplateHandler(d.CRM)
	automationHandler := NewAutomationHandler(d.CRM)
	integrationHandler := NewIntegrationHandler(d.CRM, d.Directory)

	// Webhook Routes
	r.GET("/webhook", throttle, d.Webhook.VerifyWebhook)
	r.POST("/webhook", d.Webhook.HandleMessage)

	r.GET("/ws", requireAuth, func(c *gin.Context) {
		d.Hub.ServeWs(c.Writer, c.Request, auth.UserID(c))
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", dashboardHandler.Health)

		authGroup := apiGroup.Group("/auth")
		{
			authGroup.GET("/bootstrap", throttle, authHandler.Bootstrap)
			authGroup.GET("/me", authHandler.Me)
			authGroup.POST("/register", throttle, authHandler.Register)
			authGroup.POST("/login", throttle, authHandler.Login)
			authGroup.POST("/logout", authHandler.Logout)
		}

		conversations := apiGroup.Group("/conversations", requireAuth)
		{
			conversations.GET("", conversationHandler.List)
			conversations.GET("/follow-ups/pending", conversationHandler.PendingFollowUps)
			conversations.GET("/export", conversationHandler.Export)
			conversations.POST("/ingest/inbound", conversationHandler.IngestInbound)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.PATCH("/:id", conversationHandler.Update)
			conversations.POST("/:id/notes", conversationHandler.AddNote)
			conversations.POST("/:id/messages", conversationHandler.SendMessage)
		}

		templates := apiGroup.Group("/templates", requireAuth)
		{
			templates.GET("", templateHandler.List)
			templates.POST("", templateHandler.Create)
			templates.PATCH("/:id", templateHandler.Update)
		}

		automation := apiGroup.Group("/automation", requireAuth)
		{
			automation.GET("", automationHandler.GetConfig)
			automation.GET("/safety", automationHandler.Safety)
			automation.PATCH("", automationHandler.UpdateConfig)
		}

		apiGroup.GET("/analytics/today", requireAuth, dashboardHandler.AnalyticsToday)

		integrations := apiGroup.Group("/integrations")
		{
			// website forms post without a session, see IntegrationHandler.leadOwner
			integrations.POST("/wordpress/lead", throttle, integrationHandler.WordPressLead)

			integrations.GET("/whatsapp/webhook", throttle, d.Webhook.VerifyWebhook)
			integrations.POST("/whatsapp/webhook", d.Webhook.HandleMessage)

			integrations.GET("/whatsapp/config", requireAuth, integrationHandler.GetWhatsAppConfig)
			integrations.PUT("/whatsapp/config", requireAuth, integrationHandler.UpdateWhatsAppConfig)
			integrations.POST("/whatsapp/test", requireAuth, integrationHandler.SendTest)
			integrations.GET("/whatsapp/qr", requireAuth, integrationHandler.QRCode)
		}
	}

	r.NoRoute(spaFallback(d.Config.FrontendDist))
	return r
}
