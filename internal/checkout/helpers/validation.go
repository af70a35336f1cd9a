package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// ResolveShippingAddress prefers the request override over the address saved on the cart.
func ResolveShippingAddress(override *types.Address, cart *models.Cart) (types.Address, error) {
	var addr *types.Address
	switch {
	case override != nil:
		addr = override
	case cart != nil && cart.ShippingAddress != nil:
		addr = cart.ShippingAddress
	default:
		return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if err := addr.Validate(); err != nil {
		return types.Address{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	return *addr, nil
}

// ValidatePaymentMethod accepts ONLINE and COD.
func ValidatePaymentMethod(method enums.PaymentMethod) error {
	if !method.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", method)
	}
	return nil
}

// ValidateCartItems checks quantities and that each item still points at its product.
func ValidateCartItems(items []models.CartItem, variants map[uuid.UUID]catalog.Variant) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item quantity must be positive").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
		if item.UnitPricePaise < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item price must not be negative").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
		variant, ok := variants[item.VariantID]
		if !ok || variant.ProductID != item.ProductID {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item references an unknown product").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
	}
	return nil
}
