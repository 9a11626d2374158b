// Package messaging delivers outbound farmer notifications.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// MinPhoneDigits is the shortest accepted phone number.
const MinPhoneDigits = 6

var nonDigitRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// CanonicalizePhone strips formatting from a phone number, keeping a leading
// "+" so E.164 numbers survive.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	digits := nonDigitRegex.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", digits, MinPhoneDigits)
	}
	if recipient[0] == '+' {
		return "+" + digits, nil
	}
	return digits, nil
}
