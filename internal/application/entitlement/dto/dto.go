// Package dto holds the transport shapes of entitlement data.
package dto

import (
	"time"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
)

// ProductDTO represents a catalog product.
type ProductDTO struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description,omitempty"`
	DisplayPrice string `json:"display_price,omitempty"`
	Tier         string `json:"tier"`
	TierName     string `json:"tier_name"`
	IsTeam       bool   `json:"is_team"`
}

// SubscriptionInfoDTO represents the ledger's authoritative record.
type SubscriptionInfoDTO struct {
	ProductID     string     `json:"product_id,omitempty"`
	Tier          string     `json:"tier"`
	Status        string     `json:"status"`
	Active        bool       `json:"active"`
	PlanName      string     `json:"plan_name,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	WillRenew     bool       `json:"will_renew"`
	SeatCount     int        `json:"seat_count,omitempty"`
	CanCreateTeam bool       `json:"can_create_team"`
}

// EntitlementsDTO lists the products currently granting access.
type EntitlementsDTO struct {
	Products      []*ProductDTO `json:"products"`
	CatalogLoaded bool          `json:"catalog_loaded"`
}

// ToProductDTO converts a domain product.
func ToProductDTO(p entitlement.Product) *ProductDTO {
	return &ProductDTO{
		ID:           p.ID,
		DisplayName:  p.DisplayName,
		Description:  p.Description,
		DisplayPrice: p.DisplayPrice,
		Tier:         p.Tier.String(),
		TierName:     p.Tier.Name(),
		IsTeam:       p.Tier.IsTeam(),
	}
}

// ToProductDTOs converts a product list, never returning nil.
func ToProductDTOs(products []entitlement.Product) []*ProductDTO {
	out := make([]*ProductDTO, 0, len(products))
	for _, p := range products {
		out = append(out, ToProductDTO(p))
	}
	return out
}

// ToSubscriptionInfoDTO converts a ledger record. The tier is derived from
// the product identifier within namespace.
func ToSubscriptionInfoDTO(info *entitlement.BackendSubscriptionInfo, namespace string) *SubscriptionInfoDTO {
	if info == nil {
		info = entitlement.NoSubscription()
	}

	dto := &SubscriptionInfoDTO{
		ProductID:     info.ProductID,
		Tier:          entitlement.TierForProductID(namespace, info.ProductID).String(),
		Status:        info.Status,
		Active:        info.IsActive(),
		PlanName:      info.PlanName,
		WillRenew:     info.WillRenew,
		SeatCount:     info.SeatCount,
		CanCreateTeam: info.CanCreateTeam,
	}
	if info.ExpiresAt != nil {
		expiresAt := info.ExpiresAt.UTC()
		dto.ExpiresAt = &expiresAt
	}
	return dto
}
