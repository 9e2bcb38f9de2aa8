package analyzer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ryubing/robocop-go/internal/fetch"
	"github.com/ryubing/robocop-go/internal/logfile"
	"github.com/ryubing/robocop-go/internal/logging"
)

// DefaultMaxConcurrent bounds simultaneous downloads when unset.
const DefaultMaxConcurrent = 4

// PanicError carries a value recovered from a panicking analysis.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("analysis panicked: %v", e.Value)
}

// Pipeline handles uploads end to end.
type Pipeline struct {
	gate    *UploadGate
	fetcher Fetcher
	sem     *semaphore.Weighted
	sinks   []Sink
	log     *logging.SecureLogger
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSinks registers sinks that receive every accepted outcome.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *logging.SecureLogger) Option {
	return func(p *Pipeline) { p.log = log.Component("analyzer") }
}

// WithMaxConcurrent bounds how many analyses run at once.
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewPipeline creates a pipeline over a gate and a fetcher.
func NewPipeline(gate *UploadGate, fetcher Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		gate:    gate,
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(DefaultMaxConcurrent),
		log:     logging.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Gate returns the pipeline's upload gate.
func (p *Pipeline) Gate() *UploadGate {
	return p.gate
}

// Handle admits, downloads and analyses one upload. It never returns nil and
// never panics; failures are described by Outcome.Err and Outcome.Reply.
func (p *Pipeline) Handle(ctx context.Context, up Upload) *Outcome {
	return p.HandleAccepted(ctx, up, nil)
}

// HandleAccepted is Handle with a callback run once the upload is admitted,
// before the download starts. The bot uses it to post its placeholder reply.
func (p *Pipeline) HandleAccepted(ctx context.Context, up Upload, onAccept func()) *Outcome {
	out := &Outcome{
		RunID:    uuid.NewString(),
		Decision: p.gate.Admit(up.ChannelID, up.Filename),
		Started:  p.now(),
	}
	log := p.log.With("run_id", out.RunID)

	switch out.Decision {
	case RejectBadFormat:
		out.Reply = BadFormatMessage(up.AuthorMention)
		// attachments outside the support channels are none of our business
		out.Silent = !p.gate.ChannelAllowed(up.ChannelID)
		return out
	case RejectWrongChannel:
		out.Reply = WrongChannelMessage(up.AuthorMention, p.gate.ChannelMentions())
		return out
	case RejectDuplicate:
		out.Reply = DuplicateMessage(up.Filename, up.AuthorMention)
		log.Info().
			Str("filename", up.Filename).
			Str("channel_id", up.ChannelID).
			Msg("Duplicate log upload rejected")
		return out
	}

	log.Info().
		Str("filename", up.Filename).
		Str("channel_id", up.ChannelID).
		Str("size", humanize.Bytes(uint64(up.Size))).
		Msg("Analysing log upload")

	if onAccept != nil {
		onAccept()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.gate.Release(up.Filename)
		out.Err = &fetch.TransportError{URL: up.URL, Err: err}
		out.Reply = FailureMessage(out.Err, up.AuthorMention)
		out.Duration = p.now().Sub(out.Started)
		return out
	}
	defer p.sem.Release(1)

	report, n, err := p.run(ctx, up.URL)
	out.Bytes = n
	out.Duration = p.now().Sub(out.Started)

	if err != nil {
		p.gate.Release(up.Filename)
		out.Err = err
		out.Reply = FailureMessage(err, up.AuthorMention)
		log.Warn().
			Err(err).
			Str("filename", up.Filename).
			Str("kind", ErrorKind(err)).
			Msg("Log analysis failed")
		return out
	}

	out.Report = report.WithFooter(up.AuthorName)
	log.Info().
		Str("filename", up.Filename).
		Str("game", report.Title).
		Str("downloaded", humanize.Bytes(uint64(n))).
		Int("notes", len(report.Diagnostics.Notes)).
		Dur("duration", out.Duration).
		Msg("Log analysis complete")
	return out
}

func (p *Pipeline) run(ctx context.Context, url string) (*logfile.Report, int, error) {
	text, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	report, err := AnalyzeSafely(text)
	return report, len(text), err
}

// AnalyzeSafely runs logfile.Analyze, converting a panic into *PanicError.
func AnalyzeSafely(text string) (report *logfile.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			report, err = nil, &PanicError{Value: r}
		}
	}()
	return logfile.Analyze(text)
}

// Publish hands an accepted outcome, successful or not, to every sink
// concurrently. Sink failures are collected and do not affect the other sinks.
func (p *Pipeline) Publish(ctx context.Context, up Upload, out *Outcome) error {
	if out.Decision != Accept || len(p.sinks) == 0 {
		return nil
	}

	var (
		result = make([]error, len(p.sinks))
		g      errgroup.Group
	)
	for i, sink := range p.sinks {
		g.Go(func() error {
			if err := sink.Publish(ctx, up, out); err != nil {
				result[i] = fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for _, err := range result {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		p.log.Warn().Err(err).Str("run_id", out.RunID).Msg("Failed to publish analysis")
		return err
	}
	return nil
}

// ErrorKind names the error's concrete type, e.g. "TransportError".
func ErrorKind(err error) string {
	var (
		transportErr *fetch.TransportError
		decodeErr    *fetch.DecodeError
		panicErr     *PanicError
	)
	switch {
	case errors.As(err, &transportErr):
		return "TransportError"
	case errors.As(err, &decodeErr):
		return "DecodeError"
	case errors.Is(err, logfile.ErrNoTimestamp):
		return "NormalizationError"
	case errors.As(err, &panicErr):
		return "PanicError"
	}

	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	// unexported types such as errors.errorString read badly in replies
	if t == nil || t.Name() == "" || !unicode.IsUpper(rune(t.Name()[0])) {
		return "Error"
	}
	return t.Name()
}
