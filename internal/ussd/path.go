// Package ussd implements the stateless USSD menu protocol.
//
// Every request carries the whole path of choices made since the session
// started. The package rebuilds the menu position from that path on each call,
// so no session state is kept between requests.
package ussd

import "strings"

// Delimiter separates step tokens in the accumulated USSD text.
const Delimiter = "*"

// Decode splits the accumulated text into step tokens. Empty text means the
// session just started and yields no tokens. Tokens are passed through
// verbatim, including empty ones between consecutive delimiters.
func Decode(rawText string) []string {
	if rawText == "" {
		return nil
	}
	return strings.Split(rawText, Delimiter)
}
