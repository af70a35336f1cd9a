package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/coupons"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// CheckoutService converts the buyer's cart into an aggregate order.
type CheckoutService interface {
	Checkout(ctx context.Context, actor auth.Actor, in checkout.Input) (*models.AggregateOrder, error)
	QuoteCoupon(ctx context.Context, actor auth.Actor, code string) (*coupons.Quote, error)
}

type checkoutRequest struct {
	ShippingAddress *types.Address `json:"shipping_address,omitempty"`
	CouponCode      string         `json:"coupon_code,omitempty" validate:"max=64"`
	PaymentMethod   string         `json:"payment_method,omitempty"`
}

type couponQuoteRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// Checkout places an order from the active cart. Payment method defaults to ONLINE.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Checkout(r.Context(), actor, checkout.Input{
			ShippingAddress: payload.ShippingAddress,
			CouponCode:      validators.SanitizeString(payload.CouponCode, 64),
			PaymentMethod:   enums.PaymentMethod(strings.ToUpper(strings.TrimSpace(payload.PaymentMethod))),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orders.NewOrderResponse(order))
	}
}

func CouponQuote(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload couponQuoteRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.QuoteCoupon(r.Context(), actor, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
