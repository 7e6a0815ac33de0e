package main

import (
	"context"
	"os"
	"strings"

	"github.com/nimasrn/submit-logger/internal/config"
	"github.com/nimasrn/submit-logger/internal/repository"
	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/nimasrn/submit-logger/pkg/pg"
)

// main.go --env=.env --dir=./migrations
func main() {
	defer logger.Sync()

	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()

	storeConf := pg.Config{
		Driver:   pg.Driver(cfg.StoreDriver),
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
		SSLMode:  cfg.PostgresSSLMode,
		Path:     cfg.SqlitePath,
	}

	if storeConf.Driver == pg.DriverSQLite {
		db, err := pg.Open(storeConf, false)
		if err != nil {
			logger.Error("migration: failed to open sqlite store", "error", err)
			return
		}
		defer db.Close()
		if err := repository.NewSubmitLogRepository(db).AutoMigrate(context.Background()); err != nil {
			logger.Error("migration: error migrating sqlite store", "error", err)
			return
		}
		logger.Info("migration: sqlite store is up to date", "path", storeConf.Path)
		return
	}

	dir := getMigrationPath()
	version, err := pg.Migrate(context.Background(), storeConf, dir)
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
		return
	}
	logger.Info("migration: postgres store is up to date", "dir", dir, "version", version, "store", storeConf.String())
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Open(".env"); err != nil {
		logger.Warn("no .env file found, reading the environment only")
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--dir=") {
			s := strings.Split(v, "=")
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the passed migrations dir, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return "./migrations"
}
