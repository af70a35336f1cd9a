package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// ItemSpec describes one line of a seeded unit.
type ItemSpec struct {
	PricePaise int64
	Qty        int
	// Stock is the inventory left after checkout.
	Stock int
}

// UnitSpec describes one seeded fulfillment unit.
type UnitSpec struct {
	Status      enums.FulfillmentStatus
	SellerState string
	DeliveredAt *time.Time
	Items       []ItemSpec
}

// OrderSpec describes a seeded order. Empty fields get sensible defaults.
type OrderSpec struct {
	BuyerID       uuid.UUID
	BuyerState    string
	PaymentMethod enums.PaymentMethod
	Units         []UnitSpec
}

// SeedOrder writes sellers, catalog rows, inventory and an order whose money
// fields reconcile (18% tax, 10% commission, no shipping, no coupon). The
// stored aggregate status is left PENDING whatever the unit statuses are.
func SeedOrder(t testing.TB, conn *gorm.DB, spec OrderSpec) *models.AggregateOrder {
	t.Helper()
	if spec.BuyerID == uuid.Nil {
		spec.BuyerID = uuid.New()
	}
	if spec.BuyerState == "" {
		spec.BuyerState = "Karnataka"
	}
	if spec.PaymentMethod == "" {
		spec.PaymentMethod = enums.PaymentMethodOnline
	}

	now := time.Now().UTC()
	order := &models.AggregateOrder{
		ID:            uuid.New(),
		OrderNumber:   fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), uuid.NewString()[:6]),
		BuyerID:       spec.BuyerID,
		CartID:        uuid.New(),
		Currency:      "INR",
		PaymentMethod: spec.PaymentMethod,
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.AggregateOrderStatusPending,
		ShippingAddress: types.Address{
			Name: "Asha", Line1: "12 Residency Road", City: "Bengaluru",
			State: spec.BuyerState, PostalCode: "560025", Country: "IN",
		},
	}
	MustCreate(t, conn, order)

	for i, us := range spec.Units {
		if us.Status == "" {
			us.Status = enums.FulfillmentStatusPending
		}
		if us.SellerState == "" {
			us.SellerState = "Karnataka"
		}
		seller := &models.Seller{
			ID:   uuid.New(),
			Name: fmt.Sprintf("Seller %d", i+1),
			PickupAddress: types.Address{
				Line1: "Warehouse Lane", City: "Pickup City", State: us.SellerState, PostalCode: "400001",
			},
		}
		MustCreate(t, conn, seller)

		unit := models.FulfillmentUnit{
			ID:             uuid.New(),
			OrderID:        order.ID,
			SellerID:       seller.ID,
			UnitNumber:     fmt.Sprintf("%s-S%d", order.OrderNumber, i+1),
			Sequence:       i + 1,
			CommissionRate: "0.1",
			Status:         us.Status,
		}
		for _, is := range us.Items {
			product := &models.Product{ID: uuid.New(), SellerID: seller.ID, Name: "Item " + uuid.NewString()[:4], Category: "general"}
			variant := &models.ProductVariant{ID: uuid.New(), ProductID: product.ID, SKU: uuid.NewString(), PricePaise: is.PricePaise}
			stock := &models.InventoryItem{VariantID: variant.ID, AvailableQty: is.Stock}
			MustCreate(t, conn, product, variant, stock)

			subtotal := is.PricePaise * int64(is.Qty)
			tax := (subtotal*18 + 50) / 100
			unit.Items = append(unit.Items, models.FulfillmentItem{
				ID:             uuid.New(),
				UnitID:         unit.ID,
				ProductID:      product.ID,
				VariantID:      variant.ID,
				ProductName:    product.Name,
				Category:       product.Category,
				Quantity:       is.Qty,
				UnitPricePaise: is.PricePaise,
				SubtotalPaise:  subtotal,
				TaxRate:        "0.18",
				TaxPaise:       tax,
				LineTotalPaise: subtotal + tax,
			})
			unit.SubtotalPaise += subtotal
			unit.TaxPaise += tax
		}
		unit.PlatformFeePaise = (unit.SubtotalPaise + 5) / 10
		unit.SellerPayoutPaise = unit.SubtotalPaise + unit.TaxPaise - unit.PlatformFeePaise
		if us.Status != enums.FulfillmentStatusPending && us.Status != enums.FulfillmentStatusCancelled {
			unit.ConfirmedAt = &now
		}
		unit.DeliveredAt = us.DeliveredAt
		if unit.DeliveredAt == nil && us.Status == enums.FulfillmentStatusDelivered {
			unit.DeliveredAt = &now
		}

		items := unit.Items
		unit.Items = nil
		if err := conn.Omit("Items").Create(&unit).Error; err != nil {
			t.Fatalf("seed unit: %v", err)
		}
		if len(items) > 0 {
			if err := conn.Create(&items).Error; err != nil {
				t.Fatalf("seed items: %v", err)
			}
		}
		unit.Items = items

		order.TotalAmountPaise += unit.SubtotalPaise
		order.TaxAmountPaise += unit.TaxPaise
		order.Units = append(order.Units, unit)
	}
	order.FinalAmountPaise = order.TotalAmountPaise + order.TaxAmountPaise
	if err := conn.Model(&models.AggregateOrder{}).Where("id = ?", order.ID).Updates(map[string]any{
		"total_amount_paise": order.TotalAmountPaise,
		"tax_amount_paise":   order.TaxAmountPaise,
		"final_amount_paise": order.FinalAmountPaise,
	}).Error; err != nil {
		t.Fatalf("seed order totals: %v", err)
	}
	return order
}
