package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/SmartInclusion/SmartInclusion/internal/twiliosms"
)

// TwilioService implements Service over Twilio SMS.
type TwilioService struct {
	client  twiliosms.Sender // real Twilio client or MockClient
	mu      sync.RWMutex
	stopped bool
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService around client.
func NewTwilioService(client twiliosms.Sender) *TwilioService {
	return &TwilioService{client: client}
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// SendMessage sends an SMS via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	slog.Debug("TwilioService.SendMessage: sent", "to", canonicalTo)
	return nil
}
