//go:build postgres

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nimasrn/submit-logger/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: go test -tags postgres ./internal/repository/ against a throwaway
// database described by TEST_POSTGRES_{HOST,PORT,USER,PASSWORD,DBNAME}.
func setupPostgres(t *testing.T) *pg.DB {
	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("TEST_POSTGRES_HOST not set")
	}
	cfg := pg.Config{
		Driver:   pg.DriverPostgres,
		Host:     host,
		Port:     envOr("TEST_POSTGRES_PORT", "5432"),
		User:     envOr("TEST_POSTGRES_USER", "postgres"),
		Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
		Database: envOr("TEST_POSTGRES_DBNAME", "postgres"),
	}

	ctx := context.Background()
	version, err := pg.Migrate(ctx, cfg, "../../migrations")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(1))

	db, err := pg.Open(cfg, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Write(ctx).Exec("DELETE FROM submit_log WHERE msgid LIKE 'pgtest-%'").Error
		_ = db.Close()
	})
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgres_UpsertCountsTrials(t *testing.T) {
	repo := NewSubmitLogRepository(setupPostgres(t))
	ctx := context.Background()
	createdAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertSubmission(ctx, newLog("pgtest-A", createdAt)))
	require.NoError(t, repo.UpsertSubmission(ctx, newLog("pgtest-A", createdAt.Add(time.Minute))))

	got, err := repo.FindByMessageID(ctx, "pgtest-A")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Trials)
	assert.Equal(t, "ACCEPTED", got.Status)
	assert.True(t, got.CreatedAt.Equal(createdAt))

	found, err := repo.UpdateStatus(ctx, "pgtest-A", "DELIVRD", createdAt.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPostgres_SchemaConstraints(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	err := db.Write(ctx).Exec(`INSERT INTO submit_log (msgid, status, trials, pdu_count, created_at, status_at)
		VALUES ('pgtest-bad-trials', 'ACCEPTED', 0, 1, now(), now())`).Error
	assert.Error(t, err)

	err = db.Write(ctx).Exec(`INSERT INTO submit_log (msgid, status, trials, pdu_count, created_at, status_at)
		VALUES ('pgtest-bad-pdu', 'ACCEPTED', 1, 0, now(), now())`).Error
	assert.Error(t, err)
}
