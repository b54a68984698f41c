// Package routes provides HTTP route configurations.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/entitlementsync/internal/interfaces/http/handlers"
)

// EntitlementRouteConfig contains dependencies for entitlement routes.
type EntitlementRouteConfig struct {
	EntitlementHandler *handlers.EntitlementHandler
	EventStreamHandler *handlers.EventStreamHandler
}

// SetupEntitlementRoutes configures the entitlement API.
// Routes: /v1/entitlements, /v1/products, /v1/subscription, /v1/purchases, /v1/events
func SetupEntitlementRoutes(engine *gin.Engine, cfg *EntitlementRouteConfig) {
	engine.GET("/healthz", cfg.EntitlementHandler.Health)

	v1 := engine.Group("/v1")
	{
		v1.GET("/entitlements", cfg.EntitlementHandler.ListEntitlements)
		v1.GET("/products", cfg.EntitlementHandler.ListProducts)

		subscription := v1.Group("/subscription")
		{
			subscription.GET("", cfg.EntitlementHandler.GetSubscription)
			subscription.POST("/refresh", cfg.EntitlementHandler.RefreshSubscription)
		}

		v1.POST("/purchases", cfg.EntitlementHandler.Purchase)
		v1.GET("/events", cfg.EventStreamHandler.Stream)
	}
}
