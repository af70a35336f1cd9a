package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Amounts are paise throughout.

type OrderListResponse struct {
	Orders     []OrderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type UnitListResponse struct {
	Units      []UnitResponse `json:"units"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type OrderResponse struct {
	ID              uuid.UUID      `json:"id"`
	OrderNumber     string         `json:"order_number"`
	Status          string         `json:"status"`
	PaymentMethod   string         `json:"payment_method"`
	PaymentStatus   string         `json:"payment_status"`
	Currency        string         `json:"currency"`
	TotalAmount     int64          `json:"total_amount"`
	DiscountAmount  int64          `json:"discount_amount"`
	ShippingAmount  int64          `json:"shipping_amount"`
	TaxAmount       int64          `json:"tax_amount"`
	FinalAmount     int64          `json:"final_amount"`
	CouponCode      *string        `json:"coupon_code,omitempty"`
	ShippingAddress types.Address  `json:"shipping_address"`
	Units           []UnitResponse `json:"units"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

type UnitResponse struct {
	ID            uuid.UUID      `json:"id"`
	OrderID       uuid.UUID      `json:"order_id"`
	SellerID      uuid.UUID      `json:"seller_id"`
	UnitNumber    string         `json:"unit_number"`
	Status        string         `json:"status"`
	Subtotal      int64          `json:"subtotal"`
	Discount      int64          `json:"discount"`
	ShippingFee   int64          `json:"shipping_fee"`
	Tax           int64          `json:"tax"`
	PlatformFee   int64          `json:"platform_fee"`
	SellerPayout  int64          `json:"seller_payout"`
	AWBNumber     *string        `json:"awb_number,omitempty"`
	CourierName   *string        `json:"courier_name,omitempty"`
	TrackingURL   *string        `json:"tracking_url,omitempty"`
	ShipmentError *string        `json:"shipment_error,omitempty"`
	ConfirmedAt   *time.Time     `json:"confirmed_at,omitempty"`
	ShippedAt     *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time     `json:"cancelled_at,omitempty"`
	ReturnedAt    *time.Time     `json:"returned_at,omitempty"`
	Items         []ItemResponse `json:"items"`
}

type ItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	VariantID   uuid.UUID `json:"variant_id"`
	ProductName string    `json:"product_name"`
	Category    string    `json:"category"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	Subtotal    int64     `json:"subtotal"`
	Discount    int64     `json:"discount"`
	TaxRate     string    `json:"tax_rate"`
	Tax         int64     `json:"tax"`
	LineTotal   int64     `json:"line_total"`
}

type TrackingEventResponse struct {
	AWBNumber  string    `json:"awb_number"`
	Status     string    `json:"status"`
	Location   string    `json:"location,omitempty"`
	Remarks    string    `json:"remarks,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewOrderResponse(order *models.AggregateOrder) OrderResponse {
	if order == nil {
		return OrderResponse{}
	}
	units := make([]UnitResponse, 0, len(order.Units))
	for i := range order.Units {
		units = append(units, NewUnitResponse(&order.Units[i]))
	}
	return OrderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentStatus:   string(order.PaymentStatus),
		Currency:        order.Currency,
		TotalAmount:     order.TotalAmountPaise,
		DiscountAmount:  order.DiscountAmountPaise,
		ShippingAmount:  order.ShippingAmountPaise,
		TaxAmount:       order.TaxAmountPaise,
		FinalAmount:     order.FinalAmountPaise,
		CouponCode:      order.CouponCode,
		ShippingAddress: order.ShippingAddress,
		Units:           units,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
	}
}

func NewUnitResponse(unit *models.FulfillmentUnit) UnitResponse {
	items := make([]ItemResponse, 0, len(unit.Items))
	for _, item := range unit.Items {
		items = append(items, ItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Category:    item.Category,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPricePaise,
			Subtotal:    item.SubtotalPaise,
			Discount:    item.DiscountPaise,
			TaxRate:     item.TaxRate,
			Tax:         item.TaxPaise,
			LineTotal:   item.LineTotalPaise,
		})
	}
	return UnitResponse{
		ID:            unit.ID,
		OrderID:       unit.OrderID,
		SellerID:      unit.SellerID,
		UnitNumber:    unit.UnitNumber,
		Status:        string(unit.Status),
		Subtotal:      unit.SubtotalPaise,
		Discount:      unit.DiscountPaise,
		ShippingFee:   unit.ShippingFeePaise,
		Tax:           unit.TaxPaise,
		PlatformFee:   unit.PlatformFeePaise,
		SellerPayout:  unit.SellerPayoutPaise,
		AWBNumber:     unit.AWBNumber,
		CourierName:   unit.CourierName,
		TrackingURL:   unit.TrackingURL,
		ShipmentError: unit.ShipmentError,
		ConfirmedAt:   unit.ConfirmedAt,
		ShippedAt:     unit.ShippedAt,
		DeliveredAt:   unit.DeliveredAt,
		CancelledAt:   unit.CancelledAt,
		ReturnedAt:    unit.ReturnedAt,
		Items:         items,
	}
}

func newTrackingResponse(events []models.ShipmentTrackingEvent) []TrackingEventResponse {
	out := make([]TrackingEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, TrackingEventResponse{
			AWBNumber:  ev.AWBNumber,
			Status:     ev.Status,
			Location:   ev.Location,
			Remarks:    ev.Remarks,
			OccurredAt: ev.OccurredAt,
		})
	}
	return out
}
