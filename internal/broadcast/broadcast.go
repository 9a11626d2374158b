// Package broadcast fans an operator message out to every registered farmer
// through the store outbox.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/messaging"
	"github.com/SmartInclusion/SmartInclusion/internal/models"
	"github.com/SmartInclusion/SmartInclusion/internal/store"
	"github.com/SmartInclusion/SmartInclusion/internal/util"
)

// Queue is the part of the store the broadcaster needs.
type Queue interface {
	FarmerPhones(ctx context.Context) ([]string, error)
	EnqueueOutboxBatch(items []store.OutboxEnqueue) ([]string, error)
}

// Payload is the outbox payload of a broadcast message.
type Payload struct {
	BroadcastID string `json:"broadcast_id"`
	Body        string `json:"body"`
}

// Broadcaster queues broadcast messages.
type Broadcaster struct {
	queue Queue
	now   func() time.Time
}

func NewBroadcaster(queue Queue) *Broadcaster {
	return &Broadcaster{queue: queue, now: time.Now}
}

// Broadcast validates message and enqueues one send per distinct farmer
// phone. The returned ack counts queued sends; delivery happens later.
func (b *Broadcaster) Broadcast(ctx context.Context, message string) (models.BroadcastAck, error) {
	if err := (models.BroadcastRequest{Message: message}).Validate(); err != nil {
		return models.BroadcastAck{}, err
	}
	if b == nil || b.queue == nil {
		return models.BroadcastAck{}, models.ErrStoreNotConfigured
	}

	phones, err := b.queue.FarmerPhones(ctx)
	if err != nil {
		return models.BroadcastAck{}, fmt.Errorf("failed to list farmer phones: %w", err)
	}

	ack := models.BroadcastAck{
		ID:       util.GenerateBroadcastID(),
		Message:  message,
		QueuedAt: b.now().UTC(),
	}
	payload, err := json.Marshal(Payload{BroadcastID: ack.ID, Body: message})
	if err != nil {
		return models.BroadcastAck{}, fmt.Errorf("failed to encode broadcast payload: %w", err)
	}

	items := make([]store.OutboxEnqueue, 0, len(phones))
	for _, phone := range phones {
		items = append(items, store.OutboxEnqueue{
			Recipient:   phone,
			Kind:        store.OutboxKindBroadcast,
			PayloadJSON: string(payload),
			DedupeKey:   ack.ID + ":" + phone,
		})
	}
	// The fan-out is queued all or nothing.
	if len(items) > 0 {
		if _, err := b.queue.EnqueueOutboxBatch(items); err != nil {
			slog.Error("Broadcaster.Broadcast: enqueue failed", "broadcast_id", ack.ID, "recipients", len(items), "error", err)
			return models.BroadcastAck{}, fmt.Errorf("failed to queue broadcast %s: %w", ack.ID, err)
		}
	}
	ack.Recipients = len(items)
	slog.Info("Broadcaster.Broadcast: queued", "broadcast_id", ack.ID, "recipients", ack.Recipients)
	return ack, nil
}

// SendFunc returns an outbox send function that delivers broadcast payloads
// through svc. Malformed messages and invalid recipients fail permanently.
func SendFunc(svc messaging.Service) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		if msg.Kind != store.OutboxKindBroadcast {
			return store.Permanent(fmt.Errorf("unsupported outbox kind %q", msg.Kind))
		}
		var p Payload
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &p); err != nil {
			return store.Permanent(fmt.Errorf("failed to decode broadcast payload: %w", err))
		}
		to, err := svc.ValidateAndCanonicalizeRecipient(msg.Recipient)
		if err != nil {
			return store.Permanent(fmt.Errorf("invalid recipient %q: %w", msg.Recipient, err))
		}
		return svc.SendMessage(ctx, to, p.Body)
	}
}
