package pg

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// DB owns the gorm handle used by the repositories. The handle can be swapped
// by Reconnect, so callers must fetch it through Write/Read on every operation.
type DB struct {
	mu     sync.RWMutex
	conn   *gorm.DB
	config *Config
	debug  bool
}

func dialector(config Config) (gorm.Dialector, error) {
	switch config.Driver {
	case DriverPostgres, "":
		return postgres.Open(config.dsn()), nil
	case DriverSQLite:
		path := config.Path
		if path == "" {
			path = "submit_log.db"
		}
		return sqlite.Open(path), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", config.Driver)
}

func Create(config Config, withDebug bool) (*gorm.DB, error) {
	d, err := dialector(config)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d,
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{
				SingularTable: true,
			},
		})
	if err != nil {
		return nil, err
	}

	if withDebug {
		db = db.Debug()
	}
	return db, nil
}

// Open connects using config and remembers it so the connection can be re-established later.
func Open(config Config, withDebug bool) (*DB, error) {
	conn, err := Create(config, withDebug)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn, config: &config, debug: withDebug}, nil
}

// New wraps an existing gorm handle. A DB built this way cannot reconnect.
func New(conn *gorm.DB) *DB {
	return &DB{conn: conn}
}

func (r *DB) handle() *gorm.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

func (r *DB) Write(ctx context.Context) *gorm.DB {
	return r.handle().WithContext(ctx)
}

func (r *DB) Read(ctx context.Context) *gorm.DB {
	return r.handle().WithContext(ctx)
}

// Ping runs a lightweight round trip against the current handle.
func (r *DB) Ping(ctx context.Context) error {
	sqlDB, err := r.handle().DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	var one int
	return r.handle().WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// Reconnect opens a fresh pool and closes the previous one. The old handle is
// never handed out again once this returns nil.
func (r *DB) Reconnect(ctx context.Context) error {
	if r.config == nil {
		return fmt.Errorf("reconnect: connection was not opened from a config")
	}
	fresh, err := Create(*r.config, r.debug)
	if err != nil {
		return err
	}
	if sqlDB, err := fresh.DB(); err == nil {
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
	}

	r.mu.Lock()
	old := r.conn
	r.conn = fresh
	r.mu.Unlock()

	if old != nil {
		if sqlDB, err := old.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return nil
}

func (r *DB) Close() error {
	sqlDB, err := r.handle().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
