package storage

import (
	"context"

	"github.com/ryubing/robocop-go/internal/analyzer"
	"github.com/ryubing/robocop-go/internal/logfile"
)

// HistorySink records every accepted upload in the history database.
type HistorySink struct {
	store *Storage
}

// NewHistorySink wraps a store as an analyzer.Sink.
func NewHistorySink(store *Storage) *HistorySink {
	return &HistorySink{store: store}
}

func (h *HistorySink) Name() string { return "history" }

func (h *HistorySink) Publish(ctx context.Context, up analyzer.Upload, out *analyzer.Outcome) error {
	return h.store.SaveAnalysis(ctx, FromOutcome(up, out))
}

// FromOutcome flattens an upload and its outcome into a history row.
func FromOutcome(up analyzer.Upload, out *analyzer.Outcome) *Analysis {
	a := &Analysis{
		RunID:         out.RunID,
		Timestamp:     out.Started,
		GuildID:       up.GuildID,
		ChannelID:     up.ChannelID,
		MessageID:     up.MessageID,
		Author:        up.AuthorName,
		Filename:      up.Filename,
		UploadBytes:   int64(up.Size),
		DownloadBytes: int64(out.Bytes),
		DurationMs:    out.Duration.Milliseconds(),
		Status:        StatusOK,
	}

	if !out.Succeeded() {
		a.Status = StatusFailed
		if out.Err != nil {
			a.ErrorKind = analyzer.ErrorKind(out.Err)
		}
		return a
	}

	fields := out.Report.Fields
	a.Game = fields.Get(logfile.FieldGameName)
	a.EmulatorVersion = fields.Get(logfile.FieldEmulatorVersion)
	a.OS = fields.Get(logfile.FieldOS)
	a.Fields = fields.Export()

	counts := logfile.CountBySeverity(out.Report.Diagnostics.Notes)
	a.CriticalNotes = counts[logfile.SeverityCritical]
	a.WarningNotes = counts[logfile.SeverityWarning]
	return a
}
