package store

import (
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that SQLiteStore implements OutboxRepo.
var _ OutboxRepo = (*SQLiteStore)(nil)

var sqliteOutboxEnqueue = outboxEnqueueSQL{
	insert: `INSERT INTO outbox_messages (id, recipient, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)
		ON CONFLICT (dedupe_key) WHERE status IN ('queued', 'sending') DO NOTHING`,
	lookup: `SELECT id FROM outbox_messages WHERE dedupe_key = ? AND status IN ('queued', 'sending')`,
}

func (s *SQLiteStore) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	ids, err := s.EnqueueOutboxBatch([]OutboxEnqueue{{Recipient: recipient, Kind: kind, PayloadJSON: payloadJSON, DedupeKey: dedupeKey}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *SQLiteStore) EnqueueOutboxBatch(items []OutboxEnqueue) ([]string, error) {
	ids, err := enqueueOutboxTx(s.db, sqliteOutboxEnqueue, items)
	if err != nil {
		slog.Error("SQLiteStore.EnqueueOutboxBatch: batch rolled back", "items", len(items), "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore.EnqueueOutboxBatch: queued", "items", len(ids))
	return ids, nil
}

// ClaimDueOutboxMessages selects and locks due messages in one transaction.
func (s *SQLiteStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, recipient, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at
		 FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	msgs, err := scanOutboxMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		if _, err := tx.Exec(
			`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ? AND status = 'queued'`,
			now, now, msgs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("lock outbox message %s failed: %w", msgs[i].ID, err)
		}
		msgs[i].Status = OutboxStatusSending
		msgs[i].LockedAt = &now
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim failed: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) MarkOutboxMessageSent(id string) error {
	return s.execOutboxUpdate("mark sent", id,
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), id)
}

func (s *SQLiteStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	return s.execOutboxUpdate("schedule retry", id,
		`UPDATE outbox_messages SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, nextAttemptAt, time.Now(), id)
}

func (s *SQLiteStore) MarkOutboxMessageFailed(id string, errMsg string) error {
	return s.execOutboxUpdate("mark failed", id,
		`UPDATE outbox_messages SET status = 'failed', attempts = attempts + 1, last_error = ?, next_attempt_at = NULL, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, time.Now(), id)
}

// execOutboxUpdate runs a single-row status update and reports a missing row.
func (s *SQLiteStore) execOutboxUpdate(op, id, query string, args ...interface{}) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("outbox %s for %s failed: %w", op, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox message %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) GetOutboxMessages() ([]OutboxMessage, error) {
	rows, err := s.db.Query(selectOutboxSQL)
	if err != nil {
		return nil, fmt.Errorf("list outbox messages failed: %w", err)
	}
	defer rows.Close()
	return scanOutboxMessages(rows)
}
