package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Request asks for qty units of a variant. ProductName is only used in error messages.
type Request struct {
	VariantID   uuid.UUID
	ProductName string
	Qty         int
}

// Repository owns the conditional stock updates on inventory_items.
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

// TryDecrement removes qty from the variant only if enough is available.
func (r *Repository) TryDecrement(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ? AND available_qty >= ?", variantID, qty).
		Update("available_qty", gorm.Expr("available_qty - ?", qty))
	if res.Error != nil {
		return false, fmt.Errorf("decrement inventory: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Increment returns stock for a variant (cancellation, refund restock).
func (r *Repository) Increment(ctx context.Context, variantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ?", variantID).
		Update("available_qty", gorm.Expr("available_qty + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("increment inventory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "inventory for variant %s not found", variantID)
	}
	return nil
}

// Available reads the current stock level.
func (r *Repository) Available(ctx context.Context, variantID uuid.UUID) (int, error) {
	var row models.InventoryItem
	if err := r.db.WithContext(ctx).Where("variant_id = ?", variantID).Take(&row).Error; err != nil {
		return 0, err
	}
	return row.AvailableQty, nil
}

// DecrementAll applies every request or fails on the first short variant. It
// must run inside the caller's transaction so a failure rolls back earlier decrements.
func (r *Repository) DecrementAll(ctx context.Context, requests []Request) error {
	for _, req := range requests {
		ok, err := r.TryDecrement(ctx, req.VariantID, req.Qty)
		if err != nil {
			return err
		}
		if !ok {
			name := req.ProductName
			if name == "" {
				name = req.VariantID.String()
			}
			return pkgerrors.Newf(pkgerrors.CodeValidation, "insufficient stock for %s", name).
				WithDetails(map[string]any{"variant_id": req.VariantID, "requested": req.Qty})
		}
	}
	return nil
}

// IncrementAll restores stock for every request.
func (r *Repository) IncrementAll(ctx context.Context, requests []Request) error {
	for _, req := range requests {
		if err := r.Increment(ctx, req.VariantID, req.Qty); err != nil {
			return err
		}
	}
	return nil
}
