// Package errors redacts bot credentials and signed attachment URLs from
// error messages and log values.
package errors

import (
	"fmt"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// redaction replaces the secret part of a match. Replacement may refer to
// submatches so that harmless context (a webhook id, a header name) survives.
type redaction struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: header rules run before the bare token rules so the
// header name is kept once.
var redactions = []redaction{
	{
		name:        "discord-webhook",
		pattern:     regexp.MustCompile(`(?i)(discord(?:app)?\.com/api/(?:v\d+/)?webhooks/\d+/)[a-zA-Z0-9_-]+`),
		replacement: "${1}" + redactedPlaceholder,
	},
	{
		name:        "authorization-header",
		pattern:     regexp.MustCompile(`(?i)(authorization[:\s]+)(?:(?:Bot|Bearer)\s+)?[^\s"]+`),
		replacement: "${1}" + redactedPlaceholder,
	},
	{
		name:        "bearer",
		pattern:     regexp.MustCompile(`(Bearer\s+)[a-zA-Z0-9_.-]+`),
		replacement: "${1}" + redactedPlaceholder,
	},
	{
		// base64 user id, timestamp, HMAC
		name:        "discord-token",
		pattern:     regexp.MustCompile(`[a-zA-Z0-9_-]{23,28}\.[a-zA-Z0-9_-]{6,7}\.[a-zA-Z0-9_-]{27,38}`),
		replacement: redactedPlaceholder,
	},
	{
		// the numeric bot id before the colon is public
		name:        "telegram-token",
		pattern:     regexp.MustCompile(`(\d{8,12}):[a-zA-Z0-9_-]{30,}`),
		replacement: "${1}:" + redactedPlaceholder,
	},
	{
		// ex= and is= are expiry timestamps, only hm= authorises the download
		name:        "attachment-signature",
		pattern:     regexp.MustCompile(`(?i)\b(hm=)[0-9a-f]{16,}`),
		replacement: "${1}" + redactedPlaceholder,
	},
	{
		name:        "api-key-param",
		pattern:     regexp.MustCompile(`(?i)(api[_-]?key[=:])[^\s&"']+`),
		replacement: "${1}" + redactedPlaceholder,
	},
}

// SanitizeString redacts every known credential shape in s.
func SanitizeString(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeError returns err with a redacted message. The original error stays
// reachable through errors.Is and errors.As. Clean errors are returned as is.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if clean := SanitizeString(msg); clean != msg {
		return &redactedError{cause: err, msg: clean}
	}
	return err
}

// Wrapf is fmt.Errorf("format: %w") for errors that may carry a token,
// such as session setup and HTTP failures.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), SanitizeError(err))
}

type redactedError struct {
	cause error
	msg   string
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

// ContainsCredentials reports whether s matches any redaction rule.
func ContainsCredentials(s string) bool {
	return len(MatchedRules(s)) > 0
}

// MatchedRules names the redaction rules that match s, in rule order.
func MatchedRules(s string) []string {
	var names []string
	for _, r := range redactions {
		if r.pattern.MatchString(s) {
			names = append(names, r.name)
		}
	}
	return names
}

// MaskCredential keeps the public prefix of a token for startup logs:
// the bot id segment of a Discord token, the bot id of a Telegram token,
// or the first four characters of anything else.
func MaskCredential(s string) string {
	if len(s) < 10 {
		return strings.Repeat("*", len(s))
	}
	if id, _, ok := strings.Cut(s, "."); ok && len(id) >= 17 && strings.Count(s, ".") == 2 {
		return id + ".***..."
	}
	if id, _, ok := strings.Cut(s, ":"); ok && len(id) > 0 && len(id) <= 12 {
		return id + ":***..."
	}
	return s[:4] + "***..."
}
