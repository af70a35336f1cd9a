package sequence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Counter names. Each is scoped per calendar year.
const (
	Invoices = "invoice"
	Returns  = "return"
	Refunds  = "refund"
)

// Repository hands out gap-free, strictly increasing numbers per (name, year).
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

// Next increments the counter and returns the new value. The UPDATE takes the
// row lock, so concurrent callers serialise until the surrounding transaction ends.
func (r *Repository) Next(ctx context.Context, name string, year int) (int64, error) {
	if name == "" || year <= 0 {
		return 0, fmt.Errorf("sequence name and year required")
	}
	var value int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.SequenceCounter{Name: name, Year: year}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("seed counter: %w", err)
		}
		res := tx.Model(&models.SequenceCounter{}).
			Where("name = ? AND year = ?", name, year).
			Update("value", gorm.Expr("value + 1"))
		if res.Error != nil {
			return fmt.Errorf("increment counter: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("counter %s/%d not found", name, year)
		}
		var row models.SequenceCounter
		if err := tx.Where("name = ? AND year = ?", name, year).Take(&row).Error; err != nil {
			return fmt.Errorf("read counter: %w", err)
		}
		value = row.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func InvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}

func ReturnNumber(year int, seq int64) string {
	return fmt.Sprintf("RET-%d-%05d", year, seq)
}

func RefundNumber(year int, seq int64) string {
	return fmt.Sprintf("REF-%d-%05d", year, seq)
}
