package store

import (
	"errors"
	"fmt"
	"time"
)

// OutboxStatus represents the lifecycle state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusQueued   OutboxStatus = "queued"
	OutboxStatusSending  OutboxStatus = "sending"
	OutboxStatusSent     OutboxStatus = "sent"
	OutboxStatusFailed   OutboxStatus = "failed"
	OutboxStatusCanceled OutboxStatus = "canceled"
)

// OutboxKindBroadcast marks messages fanned out from a dashboard broadcast.
const OutboxKindBroadcast = "broadcast"

// ErrOutboxRecipientRequired rejects a batch item with no recipient.
var ErrOutboxRecipientRequired = errors.New("outbox message needs a recipient")

// OutboxEnqueue is one message to add to the outbox.
type OutboxEnqueue struct {
	Recipient   string
	Kind        string
	PayloadJSON string
	DedupeKey   string
}

func validateOutboxBatch(items []OutboxEnqueue) error {
	for i, it := range items {
		if it.Recipient == "" {
			return fmt.Errorf("outbox item %d: %w", i, ErrOutboxRecipientRequired)
		}
		if it.Kind == "" {
			return fmt.Errorf("outbox item %d for %s has no kind", i, it.Recipient)
		}
	}
	return nil
}

// active reports whether m still counts against its dedupe key.
func (m OutboxMessage) active() bool {
	return m.Status == OutboxStatusQueued || m.Status == OutboxStatusSending
}

// OutboxMessage is one queued outbound SMS.
type OutboxMessage struct {
	ID            string       `json:"id"`
	Recipient     string       `json:"recipient"`
	Kind          string       `json:"kind"`
	PayloadJSON   string       `json:"payload_json"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"next_attempt_at"`
	DedupeKey     string       `json:"dedupe_key"`
	LockedAt      *time.Time   `json:"locked_at"`
	LastError     string       `json:"last_error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// OutboxRepo persists outbound messages so a restart does not lose queued sends.
type OutboxRepo interface {
	// EnqueueOutboxMessage inserts a new outbox message. If dedupeKey is non-empty
	// and a queued or sending message with that key exists, returns the existing ID.
	EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error)

	// EnqueueOutboxBatch queues every item or none of them. IDs are returned in
	// item order, with dedupe hits resolved to the existing message.
	EnqueueOutboxBatch(items []OutboxEnqueue) ([]string, error)

	// ClaimDueOutboxMessages marks up to limit queued messages whose
	// next_attempt_at <= now (or is NULL) as sending and returns them.
	ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error)

	// MarkOutboxMessageSent marks a message as successfully sent.
	MarkOutboxMessageSent(id string) error

	// FailOutboxMessage records a send failure and schedules a retry at nextAttemptAt.
	FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error

	// MarkOutboxMessageFailed gives up on a message. It is never claimed again.
	MarkOutboxMessageFailed(id string, errMsg string) error

	// RequeueStaleSendingMessages resets messages stuck in sending since before
	// staleBefore back to queued.
	RequeueStaleSendingMessages(staleBefore time.Time) (int, error)

	// GetOutboxMessages lists every outbox message, oldest first.
	GetOutboxMessages() ([]OutboxMessage, error)
}
