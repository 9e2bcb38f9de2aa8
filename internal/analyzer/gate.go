package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultLedgerCapacity is how many recent canonical filenames are remembered.
const DefaultLedgerCapacity = 5

// OverflowFilename is what the chat client names long pastes. Many users
// produce it, so it is never treated as a duplicate.
const OverflowFilename = "message.txt"

var logFilenameRegex = regexp.MustCompile(`^(Ryujinx_.*\.log|message\.txt)$`)

// Decision is the gate's verdict on an upload.
type Decision int

const (
	Accept Decision = iota
	RejectWrongChannel
	RejectBadFormat
	RejectDuplicate
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectWrongChannel:
		return "reject_wrong_channel"
	case RejectBadFormat:
		return "reject_bad_format"
	case RejectDuplicate:
		return "reject_duplicate"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// UploadGate decides whether an attachment should be analysed.
type UploadGate struct {
	allowed []string
	// ledger is used as a FIFO: entries are only added, checked with
	// ContainsOrAdd and removed, never read with Get.
	ledger *lru.Cache
}

// NewUploadGate creates a gate for the allowed channel ids. A capacity of
// zero or less uses DefaultLedgerCapacity.
func NewUploadGate(allowedChannels []string, capacity int) (*UploadGate, error) {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	ledger, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload ledger: %w", err)
	}
	allowed := make([]string, len(allowedChannels))
	copy(allowed, allowedChannels)
	return &UploadGate{allowed: allowed, ledger: ledger}, nil
}

// IsLogFilename reports whether the name looks like an emulator log.
func IsLogFilename(filename string) bool {
	return logFilenameRegex.MatchString(filename)
}

// IsCanonical reports whether filename is subject to duplicate detection.
func IsCanonical(filename string) bool {
	return IsLogFilename(filename) && filename != OverflowFilename
}

// ChannelAllowed reports whether logs may be analysed in the channel.
func (g *UploadGate) ChannelAllowed(channelID string) bool {
	for _, id := range g.allowed {
		if id == channelID {
			return true
		}
	}
	return false
}

// AllowedChannels returns the configured channel ids.
func (g *UploadGate) AllowedChannels() []string {
	out := make([]string, len(g.allowed))
	copy(out, g.allowed)
	return out
}

// Admit checks format, then channel, then duplicates. Accepting a canonical
// filename records it in the ledger in the same atomic step as the check.
func (g *UploadGate) Admit(channelID, filename string) Decision {
	if !IsLogFilename(filename) {
		return RejectBadFormat
	}
	if !g.ChannelAllowed(channelID) {
		return RejectWrongChannel
	}
	if !IsCanonical(filename) {
		return Accept
	}
	if found, _ := g.ledger.ContainsOrAdd(filename, struct{}{}); found {
		return RejectDuplicate
	}
	return Accept
}

// Release forgets filename so a failed analysis can be retried.
func (g *UploadGate) Release(filename string) {
	g.ledger.Remove(filename)
}

// Recent lists remembered filenames, oldest first.
func (g *UploadGate) Recent() []string {
	keys := g.ledger.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ChannelMentions renders the allowed channels as "<#a> or <#b>".
func (g *UploadGate) ChannelMentions() string {
	mentions := make([]string, len(g.allowed))
	for i, id := range g.allowed {
		mentions[i] = "<#" + id + ">"
	}
	return strings.Join(mentions, " or ")
}
