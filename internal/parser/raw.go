package parser

import (
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// RawMessage is one message as returned by the provider's mail listing
type RawMessage struct {
	From    string
	Subject string
	Date    time.Time // transport timestamp; zero when the header is unreadable
	Raw     string
}

// ParseRaw reads the headers of an rfc822-ish payload. The body is kept raw;
// code extraction normalizes it on its own. A payload whose headers cannot
// be parsed still comes back usable, just without metadata.
func ParseRaw(raw string) RawMessage {
	msg := RawMessage{Raw: raw}

	mr, err := mail.CreateReader(strings.NewReader(raw))
	if err != nil {
		return msg
	}
	defer mr.Close()

	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	return msg
}

// Stale reports whether the message's transport timestamp is more than
// maxAge before now. Leftover mail on a recycled address must not satisfy a
// fresh verification poll. A zero date cannot prove staleness and passes.
func (m RawMessage) Stale(now time.Time, maxAge time.Duration) bool {
	if m.Date.IsZero() {
		return false
	}
	return m.Date.Before(now.Add(-maxAge))
}
