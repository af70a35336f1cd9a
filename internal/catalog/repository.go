package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Variant is the joined view checkout prices against.
type Variant struct {
	VariantID   uuid.UUID
	ProductID   uuid.UUID
	SellerID    uuid.UUID
	ProductName string
	Category    string
	SKU         string
}

// Repository reads the seller and product records owned by the catalog service.
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

// Variants loads every requested variant keyed by id. Unknown ids are a validation error.
func (r *Repository) Variants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Variant, error) {
	out := make(map[uuid.UUID]Variant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		VariantID   uuid.UUID
		ProductID   uuid.UUID
		SellerID    uuid.UUID
		ProductName string
		Category    string
		SKU         string
	}
	err := r.db.WithContext(ctx).
		Table("product_variants AS v").
		Select("v.id AS variant_id, p.id AS product_id, p.seller_id, p.name AS product_name, p.category, v.sku").
		Joins("JOIN products AS p ON p.id = v.product_id").
		Where("v.id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}
	for _, row := range rows {
		out[row.VariantID] = Variant(row)
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "variant %s not found", id)
		}
	}
	return out, nil
}

// Sellers loads sellers keyed by id. Unknown ids are a validation error.
func (r *Repository) Sellers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error) {
	out := make(map[uuid.UUID]models.Seller, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Seller
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load sellers: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "seller %s not found", id)
		}
	}
	return out, nil
}

// Seller loads one seller.
func (r *Repository) Seller(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var row models.Seller
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "seller %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load seller: %w", err)
	}
	return &row, nil
}
