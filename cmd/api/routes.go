package main

import (
	"database/sql"
	"time"

	"dialer-platform/internal/agentauth"
	"dialer-platform/internal/event"
	"dialer-platform/internal/httpapi"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, db *sql.DB, h httpapi.Handlers, webhooks event.Handler, authManager *agentauth.Manager) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Call-scenario platform webhooks (public, HMAC-verified inside).
	r.POST("/webhooks/call-events", webhooks.HandleCallEvent)

	// Agent console login issues the bearer token the protected group needs.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(agentauth.RequireAgent(authManager))
	{
		transfers := v1.Group("/transfers")
		{
			transfers.GET("/pending", h.PendingTransfers)
			transfers.POST("/:id/accept", h.AcceptTransfer)
			transfers.POST("/:id/reject", h.RejectTransfer)
			transfers.POST("/:id/complete", h.CompleteTransfer)
		}

		agents := v1.Group("/agents")
		{
			agents.POST("/presence", h.SetPresence)
			agents.POST("/heartbeat", h.Heartbeat)
		}
	}
}
