package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/dto"
	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
	"github.com/orris-inc/entitlementsync/internal/shared/utils"
	"github.com/orris-inc/entitlementsync/internal/shared/version"
)

// EntitlementHandler exposes the subscription engine over HTTP.
type EntitlementHandler struct {
	engine    entitlementEngine
	namespace string
	logger    logger.Interface
}

// NewEntitlementHandler creates a new EntitlementHandler
func NewEntitlementHandler(engine entitlementEngine, namespace string, logger logger.Interface) *EntitlementHandler {
	return &EntitlementHandler{
		engine:    engine,
		namespace: namespace,
		logger:    logger,
	}
}

// PurchaseRequest represents the request to buy a subscription tier
type PurchaseRequest struct {
	Tier      string `json:"tier" binding:"required,tier"`
	Interval  string `json:"interval" binding:"required,oneof=monthly annual yearly month year"`
	UserEmail string `json:"user_email" binding:"omitempty,email"`
}

// HealthResponse reports liveness and build metadata
type HealthResponse struct {
	Status        string       `json:"status"`
	CatalogLoaded bool         `json:"catalog_loaded"`
	Build         version.Info `json:"build"`
}

// ListEntitlements handles GET /v1/entitlements
func (h *EntitlementHandler) ListEntitlements(c *gin.Context) {
	products, err := h.engine.CurrentEntitlements()
	if err != nil {
		utils.ErrorResponseWithError(c, toAppError(err))
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", &dto.EntitlementsDTO{
		Products:      dto.ToProductDTOs(products),
		CatalogLoaded: h.engine.CatalogLoaded(),
	})
}

// ListProducts handles GET /v1/products
func (h *EntitlementHandler) ListProducts(c *gin.Context) {
	if !h.engine.CatalogLoaded() {
		utils.ErrorResponseWithError(c, toAppError(entitlement.ErrCatalogUnavailable))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", dto.ToProductDTOs(h.engine.Products()))
}

// GetSubscription handles GET /v1/subscription
func (h *EntitlementHandler) GetSubscription(c *gin.Context) {
	info, err := h.engine.Status(c.Request.Context())
	if err != nil {
		utils.ErrorResponseWithError(c, toAppError(err))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", dto.ToSubscriptionInfoDTO(info, h.namespace))
}

// RefreshSubscription handles POST /v1/subscription/refresh
func (h *EntitlementHandler) RefreshSubscription(c *gin.Context) {
	info, err := h.engine.ForceCheck(c.Request.Context())
	if err != nil {
		h.logger.Warnw("subscription refresh failed", "error", err)
		utils.ErrorResponseWithError(c, toAppError(err))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "subscription refreshed", dto.ToSubscriptionInfoDTO(info, h.namespace))
}

// Purchase handles POST /v1/purchases
func (h *EntitlementHandler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for purchase", "error", err)
		utils.ErrorResponseWithError(c, utils.ValidationErrorFrom(err))
		return
	}

	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		utils.ErrorResponseWithError(c, toAppError(err))
		return
	}
	interval, err := entitlement.ParseBillingInterval(req.Interval)
	if err != nil {
		utils.ErrorResponseWithError(c, toAppError(err))
		return
	}

	info, err := h.engine.Purchase(c.Request.Context(), tier, interval, req.UserEmail)
	if err != nil {
		h.logger.Warnw("purchase failed",
			"tier", tier,
			"interval", interval,
			"error", err,
		)
		utils.ErrorResponseWithError(c, toAppError(err))
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "purchase completed", dto.ToSubscriptionInfoDTO(info, h.namespace))
}

// Health handles GET /healthz
func (h *EntitlementHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:        "ok",
		CatalogLoaded: h.engine.CatalogLoaded(),
		Build:         version.Get(),
	}
	if h.engine.Closed() {
		resp.Status = "closed"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
