// Package store persists property parameters and reconciliation results in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "reconciler.db"

// Config holds the database settings.
type Config struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{Path: DefaultPath, BusyTimeout: 5 * time.Second}
}

// Validate checks the database settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database.path", c.Path, nil)
	}
	if c.BusyTimeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "database.busy_timeout", c.BusyTimeout, nil)
	}
	return nil
}

// Store owns the database handle.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens the database at cfg.Path and applies pending migrations.
func Open(ctx context.Context, cfg *Config, log logger.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrGlobal(log).WithComponent("store")

	if dir := filepath.Dir(cfg.Path); dir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.FileError(errors.CodeFilePermission, dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "open database", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "open database", err).
			WithContext("path", cfg.Path)
	}

	if err := migrateUp(db, log); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", cfg.Path).Debug("Database ready")
	return &Store{db: db, logger: log}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, rolling back if fn or the commit fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Warn("Rollback failed")
		}
		return err
	}
	return tx.Commit()
}

func formatDate(t time.Time) string {
	return t.Format(models.DateFormat)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(models.DateFormat, s, time.UTC)
}

func monthBounds(m models.Month) (string, string) {
	return formatDate(m.Start()), formatDate(m.End())
}

func parseMonth(s string) (models.Month, error) {
	t, err := parseDate(s)
	if err != nil {
		return models.Month{}, err
	}
	return models.MonthOf(t), nil
}

func dec(d decimal.Decimal) string {
	return d.String()
}
