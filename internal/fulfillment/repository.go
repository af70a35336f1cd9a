package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository persists aggregate orders, their units and items.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateOrder inserts the order, every unit and every item. Callers assign ids.
func (r *Repository) CreateOrder(ctx context.Context, order *models.AggregateOrder) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Units").Create(order).Error; err != nil {
		return err
	}
	for i := range order.Units {
		unit := &order.Units[i]
		unit.OrderID = order.ID
		if err := db.Omit("Items").Create(unit).Error; err != nil {
			return err
		}
		for j := range unit.Items {
			unit.Items[j].UnitID = unit.ID
		}
		if len(unit.Items) > 0 {
			if err := db.Create(&unit.Items).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func preloadUnits(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Units", func(q *gorm.DB) *gorm.DB { return q.Order("sequence ASC") }).
		Preload("Units.Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC").Order("id ASC") })
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load "+what)
}

// FindOrder loads an order with units (by sequence) and their items.
func (r *Repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.AggregateOrder, error) {
	var order models.AggregateOrder
	if err := preloadUnits(r.db.WithContext(ctx)).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

func (r *Repository) FindOrderByNumber(ctx context.Context, number string) (*models.AggregateOrder, error) {
	var order models.AggregateOrder
	if err := preloadUnits(r.db.WithContext(ctx)).Where("order_number = ?", number).Take(&order).Error; err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

// ListOrdersForBuyer returns up to limit of the buyer's orders after cursor, newest first.
func (r *Repository) ListOrdersForBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.AggregateOrder, error) {
	q := preloadUnits(r.db.WithContext(ctx)).Where("buyer_id = ?", buyerID)
	var orders []models.AggregateOrder
	err := afterCursor(q, cursor).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// FindUnit loads a unit with its items.
func (r *Repository) FindUnit(ctx context.Context, id uuid.UUID) (*models.FulfillmentUnit, error) {
	var unit models.FulfillmentUnit
	err := r.db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		Take(&unit).Error
	if err != nil {
		return nil, notFound(err, "fulfillment unit")
	}
	return &unit, nil
}

// FindUnitByAWB returns nil, nil when no unit carries the airway bill.
func (r *Repository) FindUnitByAWB(ctx context.Context, awb string) (*models.FulfillmentUnit, error) {
	var unit models.FulfillmentUnit
	err := r.db.WithContext(ctx).Where("awb_number = ?", awb).Take(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// ListUnitsForSeller returns up to limit of the seller's units after cursor, newest first, optionally filtered by status.
func (r *Repository) ListUnitsForSeller(ctx context.Context, sellerID uuid.UUID, status enums.FulfillmentStatus, cursor *pagination.Cursor, limit int) ([]models.FulfillmentUnit, error) {
	q := r.db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC").Order("id ASC") }).
		Where("seller_id = ?", sellerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var units []models.FulfillmentUnit
	err := afterCursor(q, cursor).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&units).Error
	return units, err
}

func afterCursor(q *gorm.DB, cursor *pagination.Cursor) *gorm.DB {
	if cursor == nil {
		return q
	}
	return q.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
}

// OrderStatus reads the stored aggregate status.
func (r *Repository) OrderStatus(ctx context.Context, orderID uuid.UUID) (enums.AggregateOrderStatus, error) {
	var order models.AggregateOrder
	if err := r.db.WithContext(ctx).Select("id", "status").Where("id = ?", orderID).Take(&order).Error; err != nil {
		return "", notFound(err, "order")
	}
	return order.Status, nil
}

// UnitStatuses lists the current status of every unit in the order.
func (r *Repository) UnitStatuses(ctx context.Context, orderID uuid.UUID) ([]enums.FulfillmentStatus, error) {
	var statuses []enums.FulfillmentStatus
	err := r.db.WithContext(ctx).
		Model(&models.FulfillmentUnit{}).
		Where("order_id = ?", orderID).
		Pluck("status", &statuses).Error
	return statuses, err
}

// statusTimestampColumn names the column stamped when a unit enters status.
func statusTimestampColumn(status enums.FulfillmentStatus) string {
	switch status {
	case enums.FulfillmentStatusConfirmed:
		return "confirmed_at"
	case enums.FulfillmentStatusShipped:
		return "shipped_at"
	case enums.FulfillmentStatusDelivered:
		return "delivered_at"
	case enums.FulfillmentStatusCancelled:
		return "cancelled_at"
	case enums.FulfillmentStatusReturned:
		return "returned_at"
	default:
		return ""
	}
}

// UpdateUnitStatus moves a unit from -> to only if it is still in from.
func (r *Repository) UpdateUnitStatus(ctx context.Context, unitID uuid.UUID, from, to enums.FulfillmentStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": at}
	if col := statusTimestampColumn(to); col != "" {
		updates[col] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.FulfillmentUnit{}).
		Where("id = ? AND status = ?", unitID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.AggregateOrderStatus, at time.Time) error {
	updates := map[string]any{"status": status, "updated_at": at}
	if status == enums.AggregateOrderStatusCancelled {
		updates["cancelled_at"] = at
	}
	return r.db.WithContext(ctx).
		Model(&models.AggregateOrder{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// UpdatePaymentStatus applies a payment outcome only while the order is still in from.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus, paymentRef string, at time.Time) (bool, error) {
	updates := map[string]any{"payment_status": to, "updated_at": at}
	if paymentRef != "" {
		updates["payment_ref"] = paymentRef
	}
	res := r.db.WithContext(ctx).
		Model(&models.AggregateOrder{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ShipmentDetails is the carrier booking stored on a unit.
type ShipmentDetails struct {
	AWBNumber   string
	CourierName string
	TrackingURL string
	LabelURL    string
}

// SetShipment stores the booking unless the unit already has an AWB.
func (r *Repository) SetShipment(ctx context.Context, unitID uuid.UUID, details ShipmentDetails, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FulfillmentUnit{}).
		Where("id = ? AND awb_number IS NULL", unitID).
		Updates(map[string]any{
			"awb_number":     details.AWBNumber,
			"courier_name":   details.CourierName,
			"tracking_url":   details.TrackingURL,
			"label_url":      details.LabelURL,
			"shipment_error": nil,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordShipmentFailure counts a failed booking attempt and keeps the last error.
func (r *Repository) RecordShipmentFailure(ctx context.Context, unitID uuid.UUID, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.FulfillmentUnit{}).
		Where("id = ? AND awb_number IS NULL", unitID).
		Updates(map[string]any{
			"shipment_attempts": gorm.Expr("shipment_attempts + 1"),
			"shipment_error":    reason,
			"updated_at":        at,
		}).Error
}

// ListUnitsNeedingShipment finds confirmed-but-unshipped units without an AWB.
func (r *Repository) ListUnitsNeedingShipment(ctx context.Context, maxAttempts, limit int) ([]models.FulfillmentUnit, error) {
	var units []models.FulfillmentUnit
	err := r.db.WithContext(ctx).
		Where("awb_number IS NULL AND shipment_attempts < ? AND status IN ?", maxAttempts, []enums.FulfillmentStatus{
			enums.FulfillmentStatusConfirmed,
			enums.FulfillmentStatusProcessing,
			enums.FulfillmentStatusPacked,
		}).
		Order("confirmed_at ASC").
		Limit(limit).
		Find(&units).Error
	return units, err
}

// ListUnitsMissingInvoice finds confirmed-or-later units with no invoice row.
func (r *Repository) ListUnitsMissingInvoice(ctx context.Context, limit int) ([]models.FulfillmentUnit, error) {
	var units []models.FulfillmentUnit
	err := r.db.WithContext(ctx).
		Where("confirmed_at IS NOT NULL").
		Where("status NOT IN ?", []enums.FulfillmentStatus{enums.FulfillmentStatusPending, enums.FulfillmentStatusCancelled}).
		Where("NOT EXISTS (SELECT 1 FROM invoices i WHERE i.unit_id = fulfillment_units.id)").
		Order("confirmed_at ASC").
		Limit(limit).
		Find(&units).Error
	return units, err
}

// ListUnpaidOnlineOrdersBefore finds ONLINE orders still awaiting payment that were placed before cutoff.
func (r *Repository) ListUnpaidOnlineOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AggregateOrder, error) {
	var orders []models.AggregateOrder
	err := r.db.WithContext(ctx).
		Where("payment_method = ? AND payment_status = ? AND created_at < ?", enums.PaymentMethodOnline, enums.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
