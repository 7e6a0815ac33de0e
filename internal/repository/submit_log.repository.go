package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/submit-logger/internal/model"
	"github.com/nimasrn/submit-logger/pkg/pg"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when no row exists for a message id.
	ErrNotFound = errors.New("submit log not found")
)

// SubmitLogRepository writes one row per logical message. The same code
// serves postgres and sqlite: gorm renders the upsert for the dialect the
// handle was opened with.
type SubmitLogRepository struct {
	*pg.DB
}

func NewSubmitLogRepository(db *pg.DB) *SubmitLogRepository {
	return &SubmitLogRepository{
		db,
	}
}

// UpsertSubmission inserts the row for an acknowledged submission. If the
// message id is already logged only trials is incremented.
func (r *SubmitLogRepository) UpsertSubmission(ctx context.Context, log *model.SubmitLog) error {
	entity := toSubmitLogEntity(log)
	if entity.Trials < 1 {
		entity.Trials = 1
	}

	if err := upsertSubmission(r.Write(ctx), entity).Error; err != nil {
		return pkgerrors.Wrapf(err, "upsert submit log %s", log.MessageID)
	}
	return nil
}

// upsertSubmission qualifies trials with the table name: postgres has both
// the target row and EXCLUDED in scope and rejects the bare column.
func upsertSubmission(db *gorm.DB, entity *SubmitLogEntity) *gorm.DB {
	return db.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "msgid"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"trials": gorm.Expr(entity.TableName() + ".trials + 1"),
			}),
		}).
		Create(entity)
}

// UpdateStatus refreshes the delivery status. It reports false when no row
// matched.
func (r *SubmitLogRepository) UpdateStatus(ctx context.Context, messageID, status string, at time.Time) (bool, error) {
	res := r.Write(ctx).
		Model(&SubmitLogEntity{}).
		Where("msgid = ?", messageID).
		Updates(map[string]interface{}{
			"status":    status,
			"status_at": at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrapf(res.Error, "update status of %s", messageID)
	}
	return res.RowsAffected > 0, nil
}

func (r *SubmitLogRepository) FindByMessageID(ctx context.Context, messageID string) (*model.SubmitLog, error) {
	var entity SubmitLogEntity
	err := r.Read(ctx).Where("msgid = ?", messageID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSubmitLogModel(&entity), nil
}

// CountByStatus groups logged messages by their current status.
func (r *SubmitLogRepository) CountByStatus(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.Read(ctx).
		Model(&SubmitLogEntity{}).
		Select("status, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (r *SubmitLogRepository) Probe(ctx context.Context) error {
	return r.Ping(ctx)
}

// AutoMigrate creates the table through gorm. Postgres deployments use the
// goose migrations instead.
func (r *SubmitLogRepository) AutoMigrate(ctx context.Context) error {
	return r.Write(ctx).AutoMigrate(&SubmitLogEntity{})
}
