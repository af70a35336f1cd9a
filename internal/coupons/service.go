package coupons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Quote is the outcome of validating a code against a subtotal.
type Quote struct {
	PromotionID   uuid.UUID `json:"promotion_id"`
	Code          string    `json:"code"`
	DiscountPaise int64     `json:"discount_paise"`
}

// RedeemInput binds a coupon to the order being created.
type RedeemInput struct {
	BuyerID       uuid.UUID
	OrderID       uuid.UUID
	Code          string
	SubtotalPaise int64
}

// Service validates coupons and tracks their usage.
type Service struct {
	repo *Repository
	now  func() time.Time
}

func NewService(repo *Repository, now func() time.Time) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}, nil
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Quote validates the code for the buyer without changing usage.
func (s *Service) Quote(ctx context.Context, buyerID uuid.UUID, code string, subtotal int64) (*Quote, error) {
	return s.quote(ctx, s.repo, buyerID, code, subtotal)
}

// Redeem validates the code, claims one usage atomically and records the
// redemption. It must run inside the checkout transaction.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, in RedeemInput) (*Quote, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if in.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	repo := s.repo.WithTx(tx)
	quote, err := s.quote(ctx, repo, in.BuyerID, in.Code, in.SubtotalPaise)
	if err != nil {
		return nil, err
	}

	// The increment locks the promotion row, so the redemption count read
	// after it sees every committed redemption by this buyer.
	claimed, err := repo.IncrementUsage(ctx, quote.PromotionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment coupon usage")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
	}
	promo, err := repo.FindByCode(ctx, quote.Code)
	if err := reloadError(promo, err, quote.Code); err != nil {
		return nil, err
	}
	if err := s.checkPerCustomer(ctx, repo, promo, in.BuyerID); err != nil {
		return nil, err
	}
	if err := repo.InsertRedemption(ctx, &models.CouponRedemption{
		PromotionID:   quote.PromotionID,
		BuyerID:       in.BuyerID,
		OrderID:       in.OrderID,
		DiscountPaise: quote.DiscountPaise,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record coupon redemption")
	}
	return quote, nil
}

// Release undoes Redeem for an order (cancellation, failed payment). It is a
// no-op when the order carried no coupon or was already released.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	row, err := repo.DeleteRedemptionByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete coupon redemption")
	}
	if row == nil {
		return nil
	}
	if err := repo.DecrementUsage(ctx, row.PromotionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement coupon usage")
	}
	return nil
}

func (s *Service) quote(ctx context.Context, repo *Repository, buyerID uuid.UUID, code string, subtotal int64) (*Quote, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}
	if subtotal < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must not be negative")
	}
	promo, err := repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promotion")
	}
	if promo == nil || !promo.Active {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "coupon %s is not valid", code)
	}
	now := s.now().UTC()
	if now.Before(promo.StartsAt) || now.After(promo.EndsAt) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "coupon %s is not active at this time", code)
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
	}
	if err := s.checkPerCustomer(ctx, repo, promo, buyerID); err != nil {
		return nil, err
	}
	if subtotal < promo.MinOrderValuePaise {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "coupon %s requires a minimum order of %d paise", code, promo.MinOrderValuePaise).
			WithDetails(map[string]any{"min_order_value_paise": promo.MinOrderValuePaise})
	}
	return &Quote{
		PromotionID:   promo.ID,
		Code:          promo.Code,
		DiscountPaise: Discount(promo, subtotal),
	}, nil
}

func (s *Service) checkPerCustomer(ctx context.Context, repo *Repository, promo *models.Promotion, buyerID uuid.UUID) error {
	if promo.PerCustomerLimit == nil {
		return nil
	}
	used, err := repo.CountRedemptions(ctx, promo.ID, buyerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count coupon redemptions")
	}
	if used >= int64(*promo.PerCustomerLimit) {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon already used the maximum number of times")
	}
	return nil
}

// Discount computes the promotion's discount for subtotal. Percentages round
// half away from zero and respect the cap; fixed amounts never exceed the subtotal.
func Discount(promo *models.Promotion, subtotal int64) int64 {
	if promo == nil || subtotal <= 0 {
		return 0
	}
	var discount int64
	switch promo.DiscountType {
	case enums.DiscountTypePercentage:
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(promo.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		if promo.MaxDiscountPaise != nil && discount > *promo.MaxDiscountPaise {
			discount = *promo.MaxDiscountPaise
		}
	case enums.DiscountTypeFixed:
		discount = promo.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// reloadError classifies a failed promotion reload after its usage was claimed.
func reloadError(promo *models.Promotion, err error, code string) error {
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload promotion")
	}
	if promo == nil {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "coupon %s was removed during checkout", code)
	}
	return nil
}
