package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestGetActiveCartOrdersItems(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := uuid.New()
	cartID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first, second := uuid.New(), uuid.New()

	dbtest.MustCreate(t, conn.DB(),
		&models.Cart{ID: cartID, BuyerID: buyer, Status: enums.CartStatusActive},
		&models.CartItem{ID: second, CartID: cartID, ProductID: uuid.New(), VariantID: uuid.New(), Quantity: 1, UnitPricePaise: 100, CreatedAt: base.Add(time.Minute)},
		&models.CartItem{ID: first, CartID: cartID, ProductID: uuid.New(), VariantID: uuid.New(), Quantity: 2, UnitPricePaise: 200, CreatedAt: base},
	)

	repo := NewRepository(conn.DB())
	got, err := repo.GetActiveCart(context.Background(), buyer)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, first, got.Items[0].ID)
	assert.Equal(t, second, got.Items[1].ID)
}

func TestGetActiveCartMissing(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	_, err := repo.GetActiveCart(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestConsumeCartOnce(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := uuid.New()
	cartID := uuid.New()
	dbtest.MustCreate(t, conn.DB(), &models.Cart{ID: cartID, BuyerID: buyer, Status: enums.CartStatusActive})

	repo := NewRepository(conn.DB())
	ctx := context.Background()
	require.NoError(t, repo.ConsumeCart(ctx, cartID, time.Now()))

	err := repo.ConsumeCart(ctx, cartID, time.Now())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = repo.GetActiveCart(ctx, buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var stored models.Cart
	require.NoError(t, conn.DB().First(&stored, "id = ?", cartID).Error)
	assert.Equal(t, enums.CartStatusConsumed, stored.Status)
	assert.NotNil(t, stored.ConsumedAt)
}
