package handlers

import (
	"github.com/go-playground/validator/v10"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/utils"
)

// RegisterValidators installs the custom binding rules used by request DTOs.
func RegisterValidators(v *validator.Validate) error {
	utils.RegisterJSONTagNames(v)
	return v.RegisterValidation("tier", validateTier)
}

// validateTier accepts purchasable tier names.
func validateTier(fl validator.FieldLevel) bool {
	tier, err := entitlement.ParseTier(fl.Field().String())
	return err == nil && tier.Purchasable()
}
