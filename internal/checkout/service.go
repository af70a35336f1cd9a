package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/checkout/helpers"
	"github.com/angelmondragon/bazaar-backend/internal/coupons"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/pricing"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type couponRedeemer interface {
	Quote(ctx context.Context, buyerID uuid.UUID, code string, subtotal int64) (*coupons.Quote, error)
	Redeem(ctx context.Context, tx *gorm.DB, in coupons.RedeemInput) (*coupons.Quote, error)
}

// Input carries the optional checkout overrides.
type Input struct {
	ShippingAddress *types.Address
	CouponCode      string
	PaymentMethod   enums.PaymentMethod
}

type ServiceParams struct {
	DB        txRunner
	Carts     *cart.Repository
	Catalog   *catalog.Repository
	Inventory *inventory.Repository
	Coupons   couponRedeemer
	Pricing   *pricing.Calculator
	Orders    *fulfillment.Repository
	Outbox    outboxPublisher
	Logger    *logger.Logger
	Metrics   *metrics.FulfillmentMetrics
	Now       func() time.Time
	Currency  string
}

// Service turns a buyer's active cart into an aggregate order with one
// fulfillment unit per seller.
type Service struct {
	db        txRunner
	carts     *cart.Repository
	catalog   *catalog.Repository
	inventory *inventory.Repository
	coupons   couponRedeemer
	pricing   *pricing.Calculator
	orders    *fulfillment.Repository
	outbox    outboxPublisher
	logg      *logger.Logger
	metrics   *metrics.FulfillmentMetrics
	now       func() time.Time
	currency  string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory repository required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon redeemer required")
	case params.Pricing == nil:
		return nil, fmt.Errorf("pricing calculator required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Currency == "" {
		params.Currency = "INR"
	}
	return &Service{
		db:        params.DB,
		carts:     params.Carts,
		catalog:   params.Catalog,
		inventory: params.Inventory,
		coupons:   params.Coupons,
		pricing:   params.Pricing,
		orders:    params.Orders,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       params.Now,
		currency:  params.Currency,
	}, nil
}

// Checkout reserves stock, redeems the coupon, prices every seller group and
// persists the order in one transaction. Any failure leaves no trace.
func (s *Service) Checkout(ctx context.Context, actor auth.Actor, in Input) (*models.AggregateOrder, error) {
	order, err := s.checkout(ctx, actor, in)
	if err != nil {
		s.metrics.IncCheckout("failure")
		return nil, err
	}
	s.metrics.IncCheckout("success")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"units":        len(order.Units),
	})
	s.logg.Info(logCtx, "checkout completed")
	return order, nil
}

// QuoteCoupon previews the discount a code gives the buyer's active cart
// without claiming a usage.
func (s *Service) QuoteCoupon(ctx context.Context, actor auth.Actor, code string) (*coupons.Quote, error) {
	if !actor.IsBuyer() || actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can quote coupons")
	}
	if coupons.NormalizeCode(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	activeCart, err := s.carts.GetActiveCart(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(activeCart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	var subtotal int64
	for _, item := range activeCart.Items {
		subtotal += item.UnitPricePaise * int64(item.Quantity)
	}
	return s.coupons.Quote(ctx, actor.ID, code, subtotal)
}

func (s *Service) checkout(ctx context.Context, actor auth.Actor, in Input) (*models.AggregateOrder, error) {
	if !actor.IsBuyer() || actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can check out")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = enums.PaymentMethodOnline
	}
	if err := helpers.ValidatePaymentMethod(in.PaymentMethod); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	orderNumber, err := NewOrderNumber(now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	var orderID uuid.UUID
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		activeCart, err := s.carts.WithTx(tx).GetActiveCart(ctx, actor.ID)
		if err != nil {
			return err
		}
		if len(activeCart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		address, err := helpers.ResolveShippingAddress(in.ShippingAddress, activeCart)
		if err != nil {
			return err
		}

		catalogRepo := s.catalog.WithTx(tx)
		variants, err := catalogRepo.Variants(ctx, variantIDs(activeCart.Items))
		if err != nil {
			return err
		}
		if err := helpers.ValidateCartItems(activeCart.Items, variants); err != nil {
			return err
		}
		groups := helpers.GroupCartItemsBySeller(activeCart.Items, variants)
		sellers, err := catalogRepo.Sellers(ctx, helpers.SellerIDs(groups))
		if err != nil {
			return err
		}

		if err := s.inventory.WithTx(tx).DecrementAll(ctx, stockRequests(activeCart.Items, variants)); err != nil {
			return err
		}

		order := &models.AggregateOrder{
			ID:              uuid.New(),
			OrderNumber:     orderNumber,
			BuyerID:         actor.ID,
			CartID:          activeCart.ID,
			Currency:        s.currency,
			PaymentMethod:   in.PaymentMethod,
			PaymentStatus:   enums.PaymentStatusPending,
			Status:          enums.AggregateOrderStatusPending,
			ShippingAddress: address,
		}
		var subtotal int64
		for _, group := range groups {
			subtotal += group.Subtotal()
		}

		var discount int64
		if in.CouponCode != "" {
			quote, err := s.coupons.Redeem(ctx, tx, coupons.RedeemInput{
				BuyerID:       actor.ID,
				OrderID:       order.ID,
				Code:          in.CouponCode,
				SubtotalPaise: subtotal,
			})
			if err != nil {
				return err
			}
			discount = quote.DiscountPaise
			order.PromotionID = &quote.PromotionID
			code := quote.Code
			order.CouponCode = &code
		}

		shares, err := pricing.AllocateDiscount(discount, helpers.LineSubtotals(groups))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate coupon discount")
		}

		offset := 0
		for i, group := range groups {
			seller := sellers[group.SellerID]
			unit, err := s.buildUnit(order, group, seller, i+1, shares[offset:offset+len(group.Lines)])
			if err != nil {
				return err
			}
			offset += len(group.Lines)

			order.Units = append(order.Units, unit)
			order.TotalAmountPaise += unit.SubtotalPaise
			order.TaxAmountPaise += unit.TaxPaise
			order.ShippingAmountPaise += unit.ShippingFeePaise
		}
		order.DiscountAmountPaise = discount
		order.FinalAmountPaise = order.TotalAmountPaise + order.TaxAmountPaise + order.ShippingAmountPaise - discount

		ordersRepo := s.orders.WithTx(tx)
		if err := ordersRepo.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.carts.WithTx(tx).ConsumeCart(ctx, activeCart.ID, now); err != nil {
			return err
		}
		if err := s.emitOrderCreated(ctx, tx, actor, order); err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.orders.FindOrder(ctx, orderID)
}

func (s *Service) buildUnit(order *models.AggregateOrder, group helpers.SellerGroup, seller models.Seller, sequence int, shares []int64) (models.FulfillmentUnit, error) {
	lines := make([]pricing.Line, 0, len(group.Lines))
	for _, line := range group.Lines {
		lines = append(lines, pricing.Line{
			Category:       line.Variant.Category,
			UnitPricePaise: line.Item.UnitPricePaise,
			Quantity:       line.Item.Quantity,
		})
	}
	breakdown, err := s.pricing.PriceUnit(pricing.UnitInput{
		SellerCommission: seller.CommissionRate,
		Lines:            lines,
		Discounts:        shares,
	})
	if err != nil {
		return models.FulfillmentUnit{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price seller unit")
	}

	unit := models.FulfillmentUnit{
		ID:                uuid.New(),
		OrderID:           order.ID,
		SellerID:          group.SellerID,
		UnitNumber:        UnitNumber(order.OrderNumber, sequence),
		Sequence:          sequence,
		SubtotalPaise:     breakdown.SubtotalPaise,
		DiscountPaise:     breakdown.DiscountPaise,
		ShippingFeePaise:  breakdown.ShippingFeePaise,
		TaxPaise:          breakdown.TaxPaise,
		CommissionRate:    breakdown.CommissionRate.String(),
		PlatformFeePaise:  breakdown.PlatformFeePaise,
		SellerPayoutPaise: breakdown.SellerPayoutPaise,
		Status:            enums.FulfillmentStatusPending,
	}
	for i, line := range group.Lines {
		priced := breakdown.Lines[i]
		unit.Items = append(unit.Items, models.FulfillmentItem{
			ID:             uuid.New(),
			UnitID:         unit.ID,
			ProductID:      line.Variant.ProductID,
			VariantID:      line.Variant.VariantID,
			ProductName:    line.Variant.ProductName,
			Category:       line.Variant.Category,
			Quantity:       line.Item.Quantity,
			UnitPricePaise: line.Item.UnitPricePaise,
			SubtotalPaise:  priced.SubtotalPaise,
			DiscountPaise:  priced.DiscountPaise,
			TaxRate:        priced.TaxRate.String(),
			TaxPaise:       priced.TaxPaise,
			LineTotalPaise: priced.LineTotalPaise,
		})
	}
	return unit, nil
}

func (s *Service) emitOrderCreated(ctx context.Context, tx *gorm.DB, actor auth.Actor, order *models.AggregateOrder) error {
	unitIDs := make([]uuid.UUID, 0, len(order.Units))
	for _, unit := range order.Units {
		unitIDs = append(unitIDs, unit.ID)
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{ID: actor.ID, Kind: string(actor.Kind)},
		OccurredAt:    s.now().UTC(),
		Data: payloads.OrderCreatedEvent{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			BuyerID:          order.BuyerID,
			UnitIDs:          unitIDs,
			PaymentMethod:    order.PaymentMethod,
			FinalAmountPaise: order.FinalAmountPaise,
			CouponCode:       order.CouponCode,
		},
		Version: 1,
	})
}

func variantIDs(items []models.CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.VariantID]; ok {
			continue
		}
		seen[item.VariantID] = struct{}{}
		ids = append(ids, item.VariantID)
	}
	return ids
}

func stockRequests(items []models.CartItem, variants map[uuid.UUID]catalog.Variant) []inventory.Request {
	requests := make([]inventory.Request, 0, len(items))
	for _, item := range items {
		requests = append(requests, inventory.Request{
			VariantID:   item.VariantID,
			ProductName: variants[item.VariantID].ProductName,
			Qty:         item.Quantity,
		})
	}
	return requests
}
