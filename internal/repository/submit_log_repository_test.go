package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/submit-logger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLog(id string, createdAt time.Time) *model.SubmitLog {
	return model.NewSubmitLog(model.PendingSubmission{
		MessageID:          id,
		SourceConnector:    "smppc-1",
		RoutedChannelID:    "operator-a",
		SourceAddress:      "1000",
		DestinationAddress: "09120000000",
		SegmentCount:       2,
		BodyText:           "hello there",
		BodyBinary:         "68656c6c6f207468657265",
		Rate:               decimal.RequireFromString("0.01"),
		Charge:             decimal.RequireFromString("0.02"),
		BilledUserID:       "u1",
	}, "ACCEPTED", createdAt)
}

func TestSubmitLogRepository_UpsertSubmission(t *testing.T) {
	repo := NewSubmitLogRepository(setupTestDB(t).DB)
	ctx := context.Background()
	createdAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("first insert", func(t *testing.T) {
		require.NoError(t, repo.UpsertSubmission(ctx, newLog("A", createdAt)))

		got, err := repo.FindByMessageID(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Trials)
		assert.Equal(t, 2, got.SegmentCount)
		assert.Equal(t, "ACCEPTED", got.Status)
		assert.Equal(t, "u1", got.BilledUserID)
		assert.Equal(t, "operator-a", got.RoutedChannelID)
		assert.Equal(t, "hello there", got.BodyText)
		assert.True(t, got.Charge.Equal(decimal.RequireFromString("0.02")), got.Charge.String())
		assert.True(t, got.Rate.Equal(decimal.RequireFromString("0.01")), got.Rate.String())
		assert.True(t, got.CreatedAt.Equal(createdAt))
		assert.True(t, got.StatusAt.Equal(createdAt))
	})

	t.Run("duplicate only increments trials", func(t *testing.T) {
		dup := newLog("A", createdAt.Add(time.Hour))
		dup.Status = "REJECTED"
		dup.BodyText = "something else"
		require.NoError(t, repo.UpsertSubmission(ctx, dup))

		got, err := repo.FindByMessageID(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Trials)
		assert.Equal(t, "ACCEPTED", got.Status)
		assert.Equal(t, "hello there", got.BodyText)
		assert.True(t, got.CreatedAt.Equal(createdAt))

		require.NoError(t, repo.UpsertSubmission(ctx, dup))
		got, err = repo.FindByMessageID(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Trials)
	})
}

func TestSubmitLogRepository_UpdateStatus(t *testing.T) {
	repo := NewSubmitLogRepository(setupTestDB(t).DB)
	ctx := context.Background()
	createdAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertSubmission(ctx, newLog("A", createdAt)))

	t.Run("existing row", func(t *testing.T) {
		at := createdAt.Add(5 * time.Minute)
		found, err := repo.UpdateStatus(ctx, "A", "DELIVRD", at)
		require.NoError(t, err)
		assert.True(t, found)

		got, err := repo.FindByMessageID(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, "DELIVRD", got.Status)
		assert.True(t, got.StatusAt.Equal(at))
		assert.Equal(t, 1, got.Trials)
		assert.True(t, got.CreatedAt.Equal(createdAt))
	})

	t.Run("missing row is not an error", func(t *testing.T) {
		found, err := repo.UpdateStatus(ctx, "nope", "DELIVRD", time.Now())
		require.NoError(t, err)
		assert.False(t, found)

		_, err = repo.FindByMessageID(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSubmitLogRepository_CountByStatus(t *testing.T) {
	repo := NewSubmitLogRepository(setupTestDB(t).DB)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertSubmission(ctx, newLog("A", base)))
	require.NoError(t, repo.UpsertSubmission(ctx, newLog("B", base.Add(time.Minute))))
	require.NoError(t, repo.UpsertSubmission(ctx, newLog("C", base.Add(2*time.Minute))))
	_, err := repo.UpdateStatus(ctx, "C", "DELIVRD", base.Add(3*time.Minute))
	require.NoError(t, err)

	counts, err := repo.CountByStatus(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ACCEPTED": 2, "DELIVRD": 1}, counts)
}

func TestSubmitLogRepository_Probe(t *testing.T) {
	repo := NewSubmitLogRepository(setupTestDB(t).DB)
	require.NoError(t, repo.Probe(context.Background()))

	// a handle not opened from a config cannot be replaced
	assert.Error(t, repo.Reconnect(context.Background()))
}
