// Package store provides storage backends for the Smart Inclusion service.
//
// This file implements an SQLite-backed store for farmers and reports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection serializes writers instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddFarmer(ctx context.Context, f models.FarmerRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO farmers (phone, name, location, farm_size, crops, livestock) VALUES (?, ?, ?, ?, ?, ?)`,
		f.Phone, f.Name, f.Location, f.FarmSize, f.Crops, f.Livestock)
	if err != nil {
		slog.Error("SQLiteStore AddFarmer failed", "error", err, "phone", f.Phone)
		return 0, fmt.Errorf("failed to insert farmer for %s: %w", f.Phone, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read farmer id: %w", err)
	}
	slog.Debug("SQLiteStore AddFarmer succeeded", "phone", f.Phone, "id", id)
	return id, nil
}

func (s *SQLiteStore) AddCropReport(ctx context.Context, r models.CropReport) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO crop_reports (phone, crop, quantity) VALUES (?, ?, ?)`,
		r.Phone, r.Crop, r.Quantity)
	if err != nil {
		slog.Error("SQLiteStore AddCropReport failed", "error", err, "phone", r.Phone)
		return 0, fmt.Errorf("failed to insert crop report for %s: %w", r.Phone, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read crop report id: %w", err)
	}
	slog.Debug("SQLiteStore AddCropReport succeeded", "phone", r.Phone, "id", id)
	return id, nil
}

func (s *SQLiteStore) AddLivestockReport(ctx context.Context, r models.LivestockReport) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO livestock_reports (phone, animal, count) VALUES (?, ?, ?)`,
		r.Phone, r.Animal, r.Count)
	if err != nil {
		slog.Error("SQLiteStore AddLivestockReport failed", "error", err, "phone", r.Phone)
		return 0, fmt.Errorf("failed to insert livestock report for %s: %w", r.Phone, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read livestock report id: %w", err)
	}
	slog.Debug("SQLiteStore AddLivestockReport succeeded", "phone", r.Phone, "id", id)
	return id, nil
}

func (s *SQLiteStore) GetFarmers(ctx context.Context) ([]models.FarmerRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectFarmersSQL)
	if err != nil {
		slog.Error("SQLiteStore GetFarmers query failed", "error", err)
		return nil, fmt.Errorf("failed to query farmers: %w", err)
	}
	defer rows.Close()
	return scanFarmers(rows)
}

func (s *SQLiteStore) GetCropReports(ctx context.Context) ([]models.CropReport, error) {
	rows, err := s.db.QueryContext(ctx, selectCropReportsSQL)
	if err != nil {
		slog.Error("SQLiteStore GetCropReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query crop reports: %w", err)
	}
	defer rows.Close()
	return scanCropReports(rows)
}

func (s *SQLiteStore) GetLivestockReports(ctx context.Context) ([]models.LivestockReport, error) {
	rows, err := s.db.QueryContext(ctx, selectLivestockReportsSQL)
	if err != nil {
		slog.Error("SQLiteStore GetLivestockReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query livestock reports: %w", err)
	}
	defer rows.Close()
	return scanLivestockReports(rows)
}

func (s *SQLiteStore) FarmerPhones(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectFarmerPhonesSQL)
	if err != nil {
		slog.Error("SQLiteStore FarmerPhones query failed", "error", err)
		return nil, fmt.Errorf("failed to query farmer phones: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ClearRecords deletes all farmers, reports and outbox messages (for tests).
func (s *SQLiteStore) ClearRecords() error {
	for _, table := range []string{"farmers", "crop_reports", "livestock_reports", "outbox_messages"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			slog.Error("SQLiteStore ClearRecords failed", "error", err, "table", table)
			return err
		}
	}
	slog.Debug("SQLiteStore ClearRecords succeeded")
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
