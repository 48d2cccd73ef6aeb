// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/jmallia/go-match-backend/internal/domain"
)

// sqlitePragmas tune the single-file database for many short polling reads
// alongside occasional match and message writes. WAL lets readers proceed
// during a write; busy_timeout absorbs contention between the HTTP layer and
// the session manager's background loops.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA busy_timeout=5000;",
}

// OpenSQLite opens (or creates) a SQLite database, applies PRAGMAs, installs
// the OpenTelemetry plugin, and configures the connection pool.
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing parent directory surfaces from sqlite as "out of memory
	// (14)"; stat it up front for a readable error.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Query spans end up under the HTTP request span installed by otelgin.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	for _, pragma := range sqlitePragmas {
		db.Exec(pragma)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all persisted models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Profile{},
		&domain.Match{},
		&domain.Message{},
		&domain.Idempotency{},
	)
}
