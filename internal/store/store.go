// Package store provides storage backends for the Smart Inclusion service.
//
// It includes an in-memory store and SQL-backed stores (SQLite, PostgreSQL)
// for farmer registrations, crop reports, livestock reports and the broadcast
// outbox.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
	"github.com/SmartInclusion/SmartInclusion/internal/util"
)

// Store is the record store behind the USSD flows and the reporting views.
// Each Add call is atomic and independent of every other call.
type Store interface {
	OutboxRepo

	AddFarmer(ctx context.Context, f models.FarmerRecord) (int64, error)
	AddCropReport(ctx context.Context, r models.CropReport) (int64, error)
	AddLivestockReport(ctx context.Context, r models.LivestockReport) (int64, error)

	GetFarmers(ctx context.Context) ([]models.FarmerRecord, error)
	GetCropReports(ctx context.Context) ([]models.CropReport, error)
	GetLivestockReports(ctx context.Context) ([]models.LivestockReport, error)

	// FarmerPhones returns the distinct phone numbers of registered farmers.
	FarmerPhones(ctx context.Context) ([]string, error)

	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for everything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend selected by the DSN. An empty DSN yields an in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	default:
		return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
	}
}

// InMemoryStore is a simple in-memory store, used for tests and when no DSN is set.
type InMemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	farmers   []models.FarmerRecord
	crops     []models.CropReport
	livestock []models.LivestockReport
	outbox    []OutboxMessage
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) AddFarmer(ctx context.Context, f models.FarmerRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	f.ID = s.nextID
	s.farmers = append(s.farmers, f)
	return f.ID, nil
}

func (s *InMemoryStore) AddCropReport(ctx context.Context, r models.CropReport) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	if r.Date.IsZero() {
		r.Date = time.Now().UTC()
	}
	s.crops = append(s.crops, r)
	return r.ID, nil
}

func (s *InMemoryStore) AddLivestockReport(ctx context.Context, r models.LivestockReport) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	if r.Date.IsZero() {
		r.Date = time.Now().UTC()
	}
	s.livestock = append(s.livestock, r)
	return r.ID, nil
}

func (s *InMemoryStore) GetFarmers(ctx context.Context) ([]models.FarmerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FarmerRecord(nil), s.farmers...), nil
}

func (s *InMemoryStore) GetCropReports(ctx context.Context) ([]models.CropReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CropReport(nil), s.crops...), nil
}

func (s *InMemoryStore) GetLivestockReports(ctx context.Context) ([]models.LivestockReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LivestockReport(nil), s.livestock...), nil
}

func (s *InMemoryStore) FarmerPhones(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var phones []string
	for _, f := range s.farmers {
		if f.Phone == "" || seen[f.Phone] {
			continue
		}
		seen[f.Phone] = true
		phones = append(phones, f.Phone)
	}
	sort.Strings(phones)
	return phones, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// Compile-time check that InMemoryStore implements OutboxRepo.
var _ OutboxRepo = (*InMemoryStore)(nil)

func (s *InMemoryStore) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	ids, err := s.EnqueueOutboxBatch([]OutboxEnqueue{{Recipient: recipient, Kind: kind, PayloadJSON: payloadJSON, DedupeKey: dedupeKey}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *InMemoryStore) EnqueueOutboxBatch(items []OutboxEnqueue) ([]string, error) {
	if err := validateOutboxBatch(items); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if id, ok := s.activeByDedupeKey(it.DedupeKey); ok {
			ids = append(ids, id)
			continue
		}
		msg := OutboxMessage{
			ID:          util.GenerateOutboxID(),
			Recipient:   it.Recipient,
			Kind:        it.Kind,
			PayloadJSON: it.PayloadJSON,
			Status:      OutboxStatusQueued,
			DedupeKey:   it.DedupeKey,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.outbox = append(s.outbox, msg)
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

// activeByDedupeKey must be called with s.mu held.
func (s *InMemoryStore) activeByDedupeKey(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	for _, m := range s.outbox {
		if m.DedupeKey == key && m.active() {
			return m.ID, true
		}
	}
	return "", false
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []OutboxMessage
	for i := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		m := &s.outbox[i]
		if m.Status != OutboxStatusQueued || (m.NextAttemptAt != nil && m.NextAttemptAt.After(now)) {
			continue
		}
		lockedAt := now
		m.Status = OutboxStatusSending
		m.LockedAt = &lockedAt
		m.UpdatedAt = now
		claimed = append(claimed, *m)
	}
	return claimed, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusSent
	})
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		next := nextAttemptAt
		m.Status = OutboxStatusQueued
		m.Attempts++
		m.LastError = errMsg
		m.NextAttemptAt = &next
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) MarkOutboxMessageFailed(id string, errMsg string) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusFailed
		m.Attempts++
		m.LastError = errMsg
		m.NextAttemptAt = nil
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.outbox {
		m := &s.outbox[i]
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			m.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetOutboxMessages() ([]OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OutboxMessage(nil), s.outbox...), nil
}

func (s *InMemoryStore) updateOutbox(id string, apply func(*OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			apply(&s.outbox[i])
			s.outbox[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("outbox message %s not found", id)
}
