package main

import (
	"context"
	"net/http"

	"coldcall-platform/internal/httpapi"
	"coldcall-platform/internal/metrics"
	"coldcall-platform/internal/telephony"
	"coldcall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	authMW  gin.HandlerFunc
	metrics *metrics.Metrics
	health  func(ctx context.Context) error
	webhook telephony.StatusWebhookHandler
	api     httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.health != nil {
			if err := d.health(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("health check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	// Provider webhooks (public, signature-checked when a token is configured).
	r.POST("/webhooks/twilio/status", d.webhook.Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	d.api.Register(v1)
}
