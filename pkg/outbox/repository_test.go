package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedEvent(t *testing.T, db *gorm.DB, createdAt time.Time, publishedAt *time.Time, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventUnitStatusChanged,
		AggregateType: enums.AggregateFulfillmentUnit,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestClaimBatchSkipsDeliveredAndParkedRows(t *testing.T) {
	conn := dbtest.Open(t)
	db := conn.DB()
	repo := NewRepository(db)
	delivered := base.Add(time.Minute)

	second := seedEvent(t, db, base.Add(2*time.Minute), nil, 1)
	first := seedEvent(t, db, base, nil, 0)
	seedEvent(t, db, base, &delivered, 0)
	seedEvent(t, db, base, nil, 5)

	rows, err := repo.ClaimBatch(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)

	rows, err = repo.ClaimBatch(db, 1, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestFailureAndParkBookkeeping(t *testing.T) {
	conn := dbtest.Open(t)
	db := conn.DB()
	repo := NewRepository(db)
	row := seedEvent(t, db, base, nil, 0)

	require.NoError(t, repo.RecordFailure(db, row.ID, errors.New("broker down")))
	require.NoError(t, repo.RecordFailure(db, row.ID, errors.New("broker still down")))
	var got models.OutboxEvent
	require.NoError(t, db.Take(&got, "id = ?", row.ID).Error)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Equal(t, "broker still down", *got.LastError)

	require.NoError(t, repo.Park(db, row.ID, errors.New("unknown event"), 5))
	rows, err := repo.ClaimBatch(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.ErrorIs(t, repo.MarkPublished(db, uuid.New(), base), gorm.ErrRecordNotFound)
}

func TestPruneKeepsRecentAndRetryingRows(t *testing.T) {
	conn := dbtest.Open(t)
	db := conn.DB()
	repo := NewRepository(db)
	cutoff := base.Add(24 * time.Hour)
	oldDelivery := base.Add(time.Hour)
	recentDelivery := cutoff.Add(time.Hour)

	seedEvent(t, db, base, &oldDelivery, 0)
	seedEvent(t, db, base, nil, 5)
	keepRecent := seedEvent(t, db, base, &recentDelivery, 0)
	keepRetrying := seedEvent(t, db, base, nil, 2)

	deleted, err := repo.Prune(context.Background(), db, cutoff, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var left []uuid.UUID
	require.NoError(t, db.Model(&models.OutboxEvent{}).Order("attempt_count").Pluck("id", &left).Error)
	assert.Equal(t, []uuid.UUID{keepRecent.ID, keepRetrying.ID}, left)
}
