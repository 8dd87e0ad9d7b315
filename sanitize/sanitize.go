// Package sanitize turns raw untrusted form input into bounded, safe text.
//
// All functions are pure: no configuration, no external state. Single-line
// fields have markup stripped, CR/LF collapsed to a space (preventing header
// and log injection), and are truncated by Unicode code points. The free-text
// message field keeps its newlines but is capped in both line count and
// length. Email values are validated strictly after sanitization; invalid
// addresses are reported, never repaired.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MessageMaxLines caps the number of lines kept in a message body.
	MessageMaxLines = 50

	// MessageMaxLen caps the message length in Unicode code points.
	MessageMaxLen = 1000
)

var (
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
	crlfPattern = regexp.MustCompile(`[\r\n]+`)
	validate    = validator.New(validator.WithRequiredStructEnabled())
)

// Field sanitizes a single-line field: markup tags are removed, leading and
// trailing whitespace trimmed, any run of CR/LF characters collapsed to a
// single space, and the result truncated to maxLen code points.
//
// An empty result means the field is effectively missing; callers treat it
// as absent when the field is required.
func Field(raw string, maxLen int) string {
	v := tagPattern.ReplaceAllString(raw, "")
	v = crlfPattern.ReplaceAllString(v, " ")
	v = strings.TrimSpace(v)
	return truncate(v, maxLen)
}

// Message sanitizes the free-text message field. Unlike single-line fields
// it preserves reader-authored newlines: markup tags and NUL bytes are
// removed, all line-break variants normalized to "\n", the first
// MessageMaxLines lines kept, and the result truncated to MessageMaxLen
// code points.
func Message(raw string) string {
	v := tagPattern.ReplaceAllString(raw, "")
	v = strings.ReplaceAll(v, "\x00", "")
	v = strings.ReplaceAll(v, "\r\n", "\n")
	v = strings.ReplaceAll(v, "\r", "\n")
	v = strings.TrimSpace(v)

	lines := strings.Split(v, "\n")
	if len(lines) > MessageMaxLines {
		lines = lines[:MessageMaxLines]
	}
	v = strings.Join(lines, "\n")
	return truncate(v, MessageMaxLen)
}

// Email trims the raw value and checks it against a strict mailbox-syntax
// validator. Returns the trimmed address and whether it is valid. Invalid
// addresses are never silently fixed.
func Email(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}
	if err := validate.Var(v, "required,email"); err != nil {
		return v, false
	}
	return v, true
}

// truncate limits s to n Unicode code points, not bytes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
