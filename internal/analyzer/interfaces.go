// Package analyzer runs uploaded log files through the gate, the bounded
// download and the logfile analysis, and hands the outcome to sinks.
package analyzer

import (
	"context"
	"time"

	"github.com/ryubing/robocop-go/internal/logfile"
)

// Fetcher downloads the text of an uploaded file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Sink receives every accepted upload after the reply has been posted,
// including failed analyses. Implementations include the history database
// and the staff archive.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string
	Publish(ctx context.Context, up Upload, out *Outcome) error
}

// Upload is one attachment on an inbound message.
type Upload struct {
	GuildID   string
	ChannelID string
	MessageID string
	// AuthorMention is used in replies, AuthorName in the report footer.
	AuthorMention string
	AuthorName    string
	Filename      string
	URL           string
	Size          int
}

// Outcome is the result of handling one upload.
type Outcome struct {
	RunID    string
	Decision Decision
	// Report is set only when the analysis succeeded.
	Report *logfile.Report
	// Reply is the plain-text answer when there is no report.
	Reply string
	// Silent means no reply should be posted at all.
	Silent   bool
	Err      error
	Started  time.Time
	Duration time.Duration
	// Bytes is the size of the downloaded text.
	Bytes int
}

// Succeeded reports whether a report was produced.
func (o *Outcome) Succeeded() bool {
	return o.Report != nil
}
