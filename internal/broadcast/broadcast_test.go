package broadcast

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/messaging"
	"github.com/SmartInclusion/SmartInclusion/internal/models"
	"github.com/SmartInclusion/SmartInclusion/internal/store"
	"github.com/SmartInclusion/SmartInclusion/internal/twiliosms"
)

func seedFarmers(t *testing.T, st store.Store, phones ...string) {
	t.Helper()
	for _, p := range phones {
		if _, err := st.AddFarmer(context.Background(), models.FarmerRecord{Phone: p, Name: "f"}); err != nil {
			t.Fatalf("AddFarmer failed: %v", err)
		}
	}
}

func TestBroadcast_QueuesOnePerDistinctPhone(t *testing.T) {
	st := store.NewInMemoryStore()
	seedFarmers(t, st, "+254711000111", "+254722000222", "+254711000111")

	ack, err := NewBroadcaster(st).Broadcast(context.Background(), "Vaccination day on Friday")
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if ack.Recipients != 2 {
		t.Errorf("expected 2 recipients, got %d", ack.Recipients)
	}
	if !strings.HasPrefix(ack.ID, "b_") || ack.QueuedAt.IsZero() {
		t.Errorf("unexpected ack %+v", ack)
	}

	msgs, _ := st.GetOutboxMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 outbox messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Kind != store.OutboxKindBroadcast || m.DedupeKey != ack.ID+":"+m.Recipient {
			t.Errorf("unexpected outbox message %+v", m)
		}
	}
}

func TestBroadcast_NoFarmers(t *testing.T) {
	ack, err := NewBroadcaster(store.NewInMemoryStore()).Broadcast(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if ack.Recipients != 0 {
		t.Errorf("expected 0 recipients, got %d", ack.Recipients)
	}
}

func TestBroadcast_Validation(t *testing.T) {
	b := NewBroadcaster(store.NewInMemoryStore())
	if _, err := b.Broadcast(context.Background(), ""); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	long := strings.Repeat("a", models.MaxBroadcastLength+1)
	if _, err := b.Broadcast(context.Background(), long); !errors.Is(err, models.ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
	if _, err := b.Broadcast(context.Background(), strings.Repeat("é", models.MaxBroadcastLength)); err != nil {
		t.Errorf("expected %d multibyte characters to be accepted, got %v", models.MaxBroadcastLength, err)
	}
	if _, err := b.Broadcast(context.Background(), strings.Repeat("é", models.MaxBroadcastLength+1)); !errors.Is(err, models.ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong for %d multibyte characters, got %v", models.MaxBroadcastLength+1, err)
	}
	if _, err := NewBroadcaster(nil).Broadcast(context.Background(), "hi"); !errors.Is(err, models.ErrStoreNotConfigured) {
		t.Errorf("expected ErrStoreNotConfigured, got %v", err)
	}
}

type brokenQueue struct{}

func (brokenQueue) FarmerPhones(ctx context.Context) ([]string, error) {
	return nil, errors.New("db closed")
}

func (brokenQueue) EnqueueOutboxBatch(items []store.OutboxEnqueue) ([]string, error) {
	return nil, nil
}

func TestBroadcast_StoreError(t *testing.T) {
	if _, err := NewBroadcaster(brokenQueue{}).Broadcast(context.Background(), "hi"); err == nil {
		t.Fatal("expected error when phones cannot be listed")
	}
}

func TestBroadcast_DeliveredThroughOutbox(t *testing.T) {
	st := store.NewInMemoryStore()
	seedFarmers(t, st, "+254711000111", "+254722000222")
	if _, err := NewBroadcaster(st).Broadcast(context.Background(), "Rains expected"); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	mock := twiliosms.NewMockClient()
	sender := store.NewOutboxSender(st, SendFunc(messaging.NewTwilioService(mock)), time.Second)
	if sent := sender.PollOnce(context.Background()); sent != 2 {
		t.Fatalf("expected 2 sent, got %d", sent)
	}
	for _, m := range mock.Sent() {
		if m.Body != "Rains expected" {
			t.Errorf("unexpected body %q", m.Body)
		}
	}
}

func TestSendFunc_RejectsBadMessages(t *testing.T) {
	send := SendFunc(messaging.NewLogService())
	if err := send(context.Background(), store.OutboxMessage{Kind: "other"}); !store.IsPermanent(err) {
		t.Errorf("expected permanent unsupported kind error, got %v", err)
	}
	if err := send(context.Background(), store.OutboxMessage{Kind: store.OutboxKindBroadcast, PayloadJSON: "{"}); !store.IsPermanent(err) {
		t.Errorf("expected permanent decode error, got %v", err)
	}
}

// flakyQueue fails the first batch it is given and delegates afterwards.
type flakyQueue struct {
	*store.InMemoryStore
	failures int
}

func (q *flakyQueue) EnqueueOutboxBatch(items []store.OutboxEnqueue) ([]string, error) {
	if q.failures > 0 {
		q.failures--
		return nil, errors.New("connection reset")
	}
	return q.InMemoryStore.EnqueueOutboxBatch(items)
}

func TestBroadcast_RetryAfterFailedFanOutSendsOnce(t *testing.T) {
	q := &flakyQueue{InMemoryStore: store.NewInMemoryStore(), failures: 1}
	seedFarmers(t, q.InMemoryStore, "+254711000111", "+254722000222")
	b := NewBroadcaster(q)

	ack, err := b.Broadcast(context.Background(), "Market day moved to Thursday")
	if err == nil {
		t.Fatal("expected first broadcast to fail")
	}
	if ack.Recipients != 0 {
		t.Errorf("failed broadcast reported %d recipients", ack.Recipients)
	}
	if msgs, _ := q.GetOutboxMessages(); len(msgs) != 0 {
		t.Fatalf("failed broadcast left %d messages queued", len(msgs))
	}

	if _, err := b.Broadcast(context.Background(), "Market day moved to Thursday"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	perPhone := map[string]int{}
	msgs, _ := q.GetOutboxMessages()
	for _, m := range msgs {
		perPhone[m.Recipient]++
	}
	if len(perPhone) != 2 || perPhone["+254711000111"] != 1 || perPhone["+254722000222"] != 1 {
		t.Errorf("expected one message per farmer, got %v", perPhone)
	}
}

func TestBroadcast_InvalidRecipientFailsWithoutRetry(t *testing.T) {
	st := store.NewInMemoryStore()
	seedFarmers(t, st, "+254711000111", "123")
	if _, err := NewBroadcaster(st).Broadcast(context.Background(), "Rains expected"); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	mock := twiliosms.NewMockClient()
	sender := store.NewOutboxSender(st, SendFunc(messaging.NewTwilioService(mock)), time.Second)
	if sent := sender.PollOnce(context.Background()); sent != 1 {
		t.Fatalf("expected 1 sent, got %d", sent)
	}
	msgs, _ := st.GetOutboxMessages()
	for _, m := range msgs {
		if m.Recipient == "123" && m.Status != store.OutboxStatusFailed {
			t.Errorf("expected short number to fail permanently, got %+v", m)
		}
	}
	if got := len(mock.Sent()); got != 1 {
		t.Errorf("expected 1 SMS, got %d", got)
	}
}
