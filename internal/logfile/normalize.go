// Package logfile parses Ryujinx log files into fields, diagnostic notes and a report.
// Everything in this package is a pure function of the log text.
package logfile

import (
	"errors"
	"regexp"
)

// ErrNoTimestamp is returned when the text contains no log timestamp at all,
// which means it is not a Ryujinx log.
var ErrNoTimestamp = errors.New("no log timestamp found")

// timestampRegex matches the HH:MM:SS.mmm prefix of every log line.
var timestampRegex = regexp.MustCompile(`\d{2}:\d{2}:\d{2}\.\d{3}`)

// Normalize drops anything in front of the first timestamp.
// Partial downloads of large files may start with range headers or a cut line;
// parsing always begins at the first well-formed log line.
func Normalize(raw string) (string, error) {
	loc := timestampRegex.FindStringIndex(raw)
	if loc == nil {
		return "", ErrNoTimestamp
	}
	return raw[loc[0]:], nil
}

// lastTimestamp returns the last timestamp in text, or "" if there is none.
func lastTimestamp(text string) string {
	matches := timestampRegex.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}
