package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ryubing/robocop-go/internal/analyzer"
	internalerrors "github.com/ryubing/robocop-go/internal/errors"
	"github.com/ryubing/robocop-go/internal/logfile"
)

const (
	maxMessageLength   = 4096
	minMessageInterval = time.Second
	maxRetries         = 3
	// doubled on every attempt
	baseRetryDelay = 2 * time.Second
	// used when a 429 carries no retry_after
	defaultRetryAfter = 30 * time.Second
)

// See https://core.telegram.org/bots/api#markdownv2-style
var markdownEscaper = func() *strings.Replacer {
	var pairs []string
	for _, c := range `\_*[]()~` + "`" + `>#+-=|{}.!:` {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// messageSender is the part of *tgbotapi.BotAPI the archive uses.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramClient mirrors every analysed upload to a staff archive channel.
type TelegramClient struct {
	bot            messageSender
	username       string
	archiveChannel int64
	hostname       string

	// Sinks publish concurrently. mu serialises sends so lastSent stays
	// meaningful for the per-channel interval.
	mu       sync.Mutex
	lastSent time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewTelegramClient logs in with botToken and posts to archiveChannel.
func NewTelegramClient(botToken string, archiveChannel int64) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, internalerrors.Wrapf(err, "failed to create Telegram bot")
	}

	client := newTelegramClient(bot, archiveChannel)
	client.username = bot.Self.UserName
	return client, nil
}

func newTelegramClient(bot messageSender, archiveChannel int64) *TelegramClient {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &TelegramClient{
		bot:            bot,
		archiveChannel: archiveChannel,
		hostname:       hostname,
		sleep:          sleepContext,
	}
}

// Username is the archive bot's Telegram handle.
func (t *TelegramClient) Username() string { return t.username }

// Name implements analyzer.Sink.
func (t *TelegramClient) Name() string { return "archive" }

// Publish implements analyzer.Sink.
func (t *TelegramClient) Publish(ctx context.Context, up analyzer.Upload, out *analyzer.Outcome) error {
	if err := t.send(ctx, t.formatMessage(up, out)); err != nil {
		return fmt.Errorf("failed to send to archive channel: %w", err)
	}
	return nil
}

func writeField(b *strings.Builder, icon, label, value string) {
	fmt.Fprintf(b, "%s %s\\: %s\n", icon, label, escapeMarkdown(value))
}

// formatMessage renders an outcome as MarkdownV2. Successful runs list only
// critical and warning notes.
func (t *TelegramClient) formatMessage(up analyzer.Upload, out *analyzer.Outcome) string {
	var b strings.Builder

	b.WriteString("🔍 *Log Analysis*\n")
	writeField(&b, "🖥", "Host", t.hostname)
	writeField(&b, "📅", "Date", out.Started.Format("2006-01-02 15:04:05"))
	writeField(&b, "👤", "Uploader", up.AuthorName)
	writeField(&b, "📄", "File", up.Filename)
	writeField(&b, "🆔", "Run", out.RunID)
	b.WriteString("\n")

	if !out.Succeeded() {
		kind := "Error"
		if out.Err != nil {
			kind = analyzer.ErrorKind(out.Err)
		}
		fmt.Fprintf(&b, "❌ *Analysis failed\\:* %s\n", escapeMarkdown(kind))
		return b.String()
	}

	r := out.Report
	fmt.Fprintf(&b, "🎮 *%s*\n", escapeMarkdown(r.Title))
	writeField(&b, "•", "Version", r.Fields.Get(logfile.FieldEmulatorVersion))
	writeField(&b, "•", "OS", r.Fields.Get(logfile.FieldOS))
	writeField(&b, "•", "GPU", r.Fields.Get(logfile.FieldGPU))
	writeField(&b, "•", "Duration", fmt.Sprintf("%.2fs", out.Duration.Seconds()))
	b.WriteString("\n")

	counts := logfile.CountBySeverity(r.Diagnostics.Notes)
	b.WriteString("📋 *Notes*\n")
	writeField(&b, "•", "Critical", fmt.Sprint(counts[logfile.SeverityCritical]))
	writeField(&b, "•", "Warnings", fmt.Sprint(counts[logfile.SeverityWarning]))
	b.WriteString("\n")

	// notes are sorted by severity
	for i, n := range r.Diagnostics.Notes {
		if n.Severity > logfile.SeverityWarning {
			break
		}
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdown(n.Severity.Marker()+" "+n.Text))
	}

	if r.Diagnostics.LatestError != "" {
		b.WriteString("\n🔴 *Latest Error*\n")
		b.WriteString(escapeMarkdown(r.Diagnostics.LatestError))
		b.WriteString("\n")
	}

	return b.String()
}

// send posts message to the archive channel in chunks, keeping at least
// minMessageInterval between consecutive chunks.
func (t *TelegramClient) send(ctx context.Context, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, chunk := range splitMessage(message, maxMessageLength) {
		if wait := minMessageInterval - time.Since(t.lastSent); !t.lastSent.IsZero() && wait > 0 {
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}

		cfg := tgbotapi.NewMessage(t.archiveChannel, chunk)
		cfg.ParseMode = tgbotapi.ModeMarkdownV2
		if err := t.sendWithRetry(ctx, cfg); err != nil {
			return err
		}
		t.lastSent = time.Now()
	}
	return nil
}

func (t *TelegramClient) sendWithRetry(ctx context.Context, cfg tgbotapi.MessageConfig) error {
	for attempt := 1; ; attempt++ {
		_, err := t.bot.Send(cfg)
		if err == nil {
			return nil
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == maxRetries {
			return internalerrors.Wrapf(err, "archive message failed after %d attempt(s)", attempt)
		}
		if err := t.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// retryDelay decides whether a failed send is worth repeating. Rate limits
// wait for the server's retry_after; other client errors (bad markup, bot
// removed from the channel) are permanent; everything else backs off
// exponentially.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			if apiErr.RetryAfter > 0 {
				return time.Duration(apiErr.RetryAfter) * time.Second, true
			}
			return defaultRetryAfter, true
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return 0, false
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "429") {
		return retryAfterFromMessage(msg), true
	}
	return baseRetryDelay << (attempt - 1), true
}

// retryAfterFromMessage reads "retry after N" from an untyped error text.
func retryAfterFromMessage(msg string) time.Duration {
	_, rest, ok := strings.Cut(strings.ToLower(msg), "retry after ")
	if !ok {
		return defaultRetryAfter
	}
	var seconds int
	if _, err := fmt.Sscanf(rest, "%d", &seconds); err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// splitMessage cuts message into chunks of at most limit bytes, preferring
// line boundaries. Overlong lines are cut on rune boundaries and never
// between a backslash and the character it escapes.
func splitMessage(message string, limit int) []string {
	if len(message) <= limit {
		return []string{message}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.SplitAfter(message, "\n") {
		if cur.Len()+len(line) > limit {
			flush()
		}
		for len(line) > limit {
			cut := limit
			for cut > 1 && (!utf8.RuneStart(line[cut]) || line[cut-1] == '\\') {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}
