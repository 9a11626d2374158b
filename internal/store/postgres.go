// Package store provides storage backends for the Smart Inclusion service.
//
// This file implements a PostgreSQL-backed store for farmers and reports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddFarmer(ctx context.Context, f models.FarmerRecord) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO farmers (phone, name, location, farm_size, crops, livestock) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		f.Phone, f.Name, f.Location, f.FarmSize, f.Crops, f.Livestock).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AddFarmer failed", "error", err, "phone", f.Phone)
		return 0, fmt.Errorf("failed to insert farmer for %s: %w", f.Phone, err)
	}
	slog.Debug("PostgresStore AddFarmer succeeded", "phone", f.Phone, "id", id)
	return id, nil
}

func (s *PostgresStore) AddCropReport(ctx context.Context, r models.CropReport) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO crop_reports (phone, crop, quantity) VALUES ($1, $2, $3) RETURNING id`,
		r.Phone, r.Crop, r.Quantity).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AddCropReport failed", "error", err, "phone", r.Phone)
		return 0, fmt.Errorf("failed to insert crop report for %s: %w", r.Phone, err)
	}
	slog.Debug("PostgresStore AddCropReport succeeded", "phone", r.Phone, "id", id)
	return id, nil
}

func (s *PostgresStore) AddLivestockReport(ctx context.Context, r models.LivestockReport) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO livestock_reports (phone, animal, count) VALUES ($1, $2, $3) RETURNING id`,
		r.Phone, r.Animal, r.Count).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AddLivestockReport failed", "error", err, "phone", r.Phone)
		return 0, fmt.Errorf("failed to insert livestock report for %s: %w", r.Phone, err)
	}
	slog.Debug("PostgresStore AddLivestockReport succeeded", "phone", r.Phone, "id", id)
	return id, nil
}

func (s *PostgresStore) GetFarmers(ctx context.Context) ([]models.FarmerRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectFarmersSQL)
	if err != nil {
		slog.Error("PostgresStore GetFarmers query failed", "error", err)
		return nil, fmt.Errorf("failed to query farmers: %w", err)
	}
	defer rows.Close()
	return scanFarmers(rows)
}

func (s *PostgresStore) GetCropReports(ctx context.Context) ([]models.CropReport, error) {
	rows, err := s.db.QueryContext(ctx, selectCropReportsSQL)
	if err != nil {
		slog.Error("PostgresStore GetCropReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query crop reports: %w", err)
	}
	defer rows.Close()
	return scanCropReports(rows)
}

func (s *PostgresStore) GetLivestockReports(ctx context.Context) ([]models.LivestockReport, error) {
	rows, err := s.db.QueryContext(ctx, selectLivestockReportsSQL)
	if err != nil {
		slog.Error("PostgresStore GetLivestockReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query livestock reports: %w", err)
	}
	defer rows.Close()
	return scanLivestockReports(rows)
}

func (s *PostgresStore) FarmerPhones(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectFarmerPhonesSQL)
	if err != nil {
		slog.Error("PostgresStore FarmerPhones query failed", "error", err)
		return nil, fmt.Errorf("failed to query farmer phones: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ClearRecords deletes all farmers, reports and outbox messages (for tests).
func (s *PostgresStore) ClearRecords() error {
	_, err := s.db.Exec("TRUNCATE farmers, crop_reports, livestock_reports, outbox_messages")
	if err != nil {
		slog.Error("PostgresStore ClearRecords failed", "error", err)
		return err
	}
	slog.Debug("PostgresStore ClearRecords succeeded")
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
