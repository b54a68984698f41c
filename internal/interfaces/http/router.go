package http

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	appentitlement "github.com/orris-inc/entitlementsync/internal/application/entitlement"
	"github.com/orris-inc/entitlementsync/internal/interfaces/http/handlers"
	"github.com/orris-inc/entitlementsync/internal/interfaces/http/middleware"
	"github.com/orris-inc/entitlementsync/internal/interfaces/http/routes"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// Router represents the HTTP router configuration
type Router struct {
	engine             *gin.Engine
	entitlementHandler *handlers.EntitlementHandler
	eventStreamHandler *handlers.EventStreamHandler
	logger             logger.Interface
}

// NewRouter builds the gin engine serving the subscription engine.
func NewRouter(engine *appentitlement.SubscriptionEngine, namespace string, log logger.Interface) (*Router, error) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := handlers.RegisterValidators(v); err != nil {
			return nil, fmt.Errorf("failed to register validators: %w", err)
		}
	}

	ginEngine := gin.New()
	ginEngine.Use(
		middleware.RequestID(),
		middleware.Logger(log.Named("http")),
		middleware.Recovery(log.Named("http")),
	)

	return &Router{
		engine:             ginEngine,
		entitlementHandler: handlers.NewEntitlementHandler(engine, namespace, log.Named("entitlement-handler")),
		eventStreamHandler: handlers.NewEventStreamHandler(engine, log.Named("event-stream")),
		logger:             log,
	}, nil
}

// SetupRoutes registers every route.
func (r *Router) SetupRoutes() {
	routes.SetupEntitlementRoutes(r.engine, &routes.EntitlementRouteConfig{
		EntitlementHandler: r.entitlementHandler,
		EventStreamHandler: r.eventStreamHandler,
	})
}

// GetEngine returns the gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
