// Package util provides small helpers shared across the Smart Inclusion components.
package util

import (
	"math/rand/v2"
	"strings"
)

const hexChars = "0123456789abcdef"

// GenerateRandomID returns "{prefix}{hex}" with hexLength random hex characters.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(len(hexChars))])
	}
	return builder.String()
}

// GenerateBroadcastID generates a broadcast ID with "b_" prefix.
func GenerateBroadcastID() string {
	return GenerateRandomID("b_", 16)
}

// GenerateOutboxID generates an outbox message ID with "outbox_" prefix.
func GenerateOutboxID() string {
	return GenerateRandomID("outbox_", 32)
}
