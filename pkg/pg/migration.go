package pg

import (
	"context"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// Migrate applies the goose migrations in dir to the postgres store and
// returns the schema version it ended on.
func Migrate(ctx context.Context, cfg Config, dir string) (int64, error) {
	if cfg.Driver == DriverSQLite {
		return 0, errors.New("goose migrations target postgres only")
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, errors.Wrap(err, "set goose dialect")
	}

	db, err := openMigrationConn(cfg)
	if err != nil {
		return 0, errors.Wrapf(err, "open migration connection to %s", cfg)
	}
	defer db.Close()

	if err = goose.UpContext(ctx, db, dir); err != nil {
		return 0, errors.Wrapf(err, "apply migrations from %s", dir)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, errors.Wrap(err, "read schema version")
	}
	return version, nil
}
