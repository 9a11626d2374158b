package messaging

import (
	"context"
	"log/slog"
	"sync"
)

// LogService records outbound messages in the log instead of delivering them.
// It is the default when no SMS provider is configured.
type LogService struct {
	mu      sync.Mutex
	stopped bool
	sent    int
}

var _ Service = (*LogService)(nil)

func NewLogService() *LogService {
	return &LogService{}
}

func (s *LogService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

func (s *LogService) Start(ctx context.Context) error { return nil }

func (s *LogService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *LogService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	s.sent++
	slog.Info("LogService.SendMessage: message not delivered, no SMS provider configured", "to", to, "length", len(body))
	return nil
}

// Sent reports how many messages were accepted.
func (s *LogService) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}
