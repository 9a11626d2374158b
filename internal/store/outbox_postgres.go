package store

import (
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that PostgresStore implements OutboxRepo.
var _ OutboxRepo = (*PostgresStore)(nil)

var postgresOutboxEnqueue = outboxEnqueueSQL{
	insert: `INSERT INTO outbox_messages (id, recipient, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6, $7)
		ON CONFLICT (dedupe_key) WHERE status IN ('queued', 'sending') DO NOTHING`,
	lookup: `SELECT id FROM outbox_messages WHERE dedupe_key = $1 AND status IN ('queued', 'sending')`,
}

func (s *PostgresStore) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	ids, err := s.EnqueueOutboxBatch([]OutboxEnqueue{{Recipient: recipient, Kind: kind, PayloadJSON: payloadJSON, DedupeKey: dedupeKey}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *PostgresStore) EnqueueOutboxBatch(items []OutboxEnqueue) ([]string, error) {
	ids, err := enqueueOutboxTx(s.db, postgresOutboxEnqueue, items)
	if err != nil {
		slog.Error("PostgresStore.EnqueueOutboxBatch: batch rolled back", "items", len(items), "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore.EnqueueOutboxBatch: queued", "items", len(ids))
	return ids, nil
}

// ClaimDueOutboxMessages locks due rows with SKIP LOCKED so several instances
// can drain the same outbox.
func (s *PostgresStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := s.db.Query(
		`WITH due AS (
		   SELECT id FROM outbox_messages
		   WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		   ORDER BY created_at ASC LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE outbox_messages o SET status = 'sending', locked_at = $1, updated_at = $1
		 FROM due WHERE o.id = due.id
		 RETURNING o.id, o.recipient, o.kind, o.payload_json, o.status, o.attempts, o.next_attempt_at,
		           o.dedupe_key, o.locked_at, o.last_error, o.created_at, o.updated_at`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	defer rows.Close()
	return scanOutboxMessages(rows)
}

func (s *PostgresStore) MarkOutboxMessageSent(id string) error {
	return s.execOutboxUpdate("mark sent", id,
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = $1 WHERE id = $2`,
		time.Now(), id)
}

func (s *PostgresStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	return s.execOutboxUpdate("schedule retry", id,
		`UPDATE outbox_messages SET status = 'queued', attempts = attempts + 1, last_error = $1, next_attempt_at = $2, locked_at = NULL, updated_at = $3 WHERE id = $4`,
		errMsg, nextAttemptAt, time.Now(), id)
}

func (s *PostgresStore) MarkOutboxMessageFailed(id string, errMsg string) error {
	return s.execOutboxUpdate("mark failed", id,
		`UPDATE outbox_messages SET status = 'failed', attempts = attempts + 1, last_error = $1, next_attempt_at = NULL, locked_at = NULL, updated_at = $2 WHERE id = $3`,
		errMsg, time.Now(), id)
}

func (s *PostgresStore) execOutboxUpdate(op, id, query string, args ...interface{}) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("outbox %s for %s failed: %w", op, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox message %s not found", id)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = $1 WHERE status = 'sending' AND locked_at < $2`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) GetOutboxMessages() ([]OutboxMessage, error) {
	rows, err := s.db.Query(selectOutboxSQL)
	if err != nil {
		return nil, fmt.Errorf("list outbox messages failed: %w", err)
	}
	defer rows.Close()
	return scanOutboxMessages(rows)
}
