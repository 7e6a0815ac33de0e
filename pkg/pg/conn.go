package pg

import (
	"database/sql"
	"fmt"
	"strings"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Config describes the submit log store. Only Path is read for sqlite,
// everything else is postgres.
type Config struct {
	Driver   Driver
	User     string
	Host     string
	Port     string
	Password string
	Database string
	SSLMode  string
	Path     string
}

func (c Config) dsn() string {
	parts := []string{
		"host=" + c.Host,
		"user=" + c.User,
		"password=" + c.Password,
		"dbname=" + c.Database,
		"port=" + c.Port,
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts = append(parts, "sslmode="+sslMode, "connect_timeout=5")
	return strings.Join(parts, " ")
}

// String is safe to log.
func (c Config) String() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("sqlite:%s", c.Path)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s", c.User, c.Host, c.Port, c.Database)
}

func openMigrationConn(config Config) (*sql.DB, error) {
	return sql.Open("postgres", config.dsn())
}
