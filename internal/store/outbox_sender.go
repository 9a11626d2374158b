package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultOutboxMaxAttempts is how many sends a message gets before it is
// marked failed. With the capped backoff the retries span about 85 minutes.
const DefaultOutboxMaxAttempts = 10

// OutboxSendFunc is the callback that performs the actual message send.
// It receives the outbox message and should return an error if sending failed.
// Wrap errors no retry can fix with Permanent.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// OutboxSender periodically claims due outbox messages and attempts to send them.
// Failed sends are retried with exponential backoff until they run out of
// attempts or fail permanently, after which they are marked failed.
type OutboxSender struct {
	repo           OutboxRepo
	sendFunc       OutboxSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
}

// NewOutboxSender creates a new OutboxSender.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, pollInterval time.Duration) *OutboxSender {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &OutboxSender{
		repo:           repo,
		sendFunc:       sendFunc,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
		maxAttempts:    DefaultOutboxMaxAttempts,
	}
}

// RecoverStaleMessages requeues messages stuck in sending state (crash recovery).
// Should be called once at startup.
func (s *OutboxSender) RecoverStaleMessages() error {
	staleBefore := time.Now().Add(-s.staleThreshold)
	n, err := s.repo.RequeueStaleSendingMessages(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting outbox sender", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce claims and sends one batch of due messages and returns how many
// were sent successfully.
func (s *OutboxSender) PollOnce(ctx context.Context) int {
	now := time.Now()
	msgs, err := s.repo.ClaimDueOutboxMessages(now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.PollOnce: claim failed", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		slog.Debug("OutboxSender.PollOnce: sending message", "id", msg.ID, "recipient", msg.Recipient, "kind", msg.Kind)
		if err := s.sendFunc(ctx, msg); err != nil {
			s.handleFailure(now, msg, err)
		} else {
			if err := s.repo.MarkOutboxMessageSent(msg.ID); err != nil {
				slog.Error("OutboxSender.PollOnce: mark sent error", "id", msg.ID, "error", err)
				continue
			}
			sent++
			slog.Debug("OutboxSender.PollOnce: message sent", "id", msg.ID, "recipient", msg.Recipient)
		}
	}
	return sent
}

func (s *OutboxSender) handleFailure(now time.Time, msg OutboxMessage, sendErr error) {
	if IsPermanent(sendErr) || msg.Attempts+1 >= s.maxAttempts {
		slog.Error("OutboxSender.PollOnce: giving up on message", "id", msg.ID, "recipient", msg.Recipient,
			"attempts", msg.Attempts+1, "permanent", IsPermanent(sendErr), "error", sendErr)
		if err := s.repo.MarkOutboxMessageFailed(msg.ID, sendErr.Error()); err != nil {
			slog.Error("OutboxSender.PollOnce: mark failed error", "id", msg.ID, "error", err)
		}
		return
	}
	slog.Warn("OutboxSender.PollOnce: send failed, will retry", "id", msg.ID, "attempts", msg.Attempts+1, "error", sendErr)
	if err := s.repo.FailOutboxMessage(msg.ID, sendErr.Error(), now.Add(outboxBackoff(msg.Attempts))); err != nil {
		slog.Error("OutboxSender.PollOnce: fail message error", "id", msg.ID, "error", err)
	}
}

// outboxBackoff doubles from 10s per attempt and caps at one hour.
func outboxBackoff(attempts int) time.Duration {
	const maxBackoff = time.Hour
	if attempts >= 9 {
		return maxBackoff
	}
	backoff := time.Duration(10*(1<<attempts)) * time.Second
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
