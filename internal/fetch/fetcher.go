// Package fetch downloads the head and tail of an uploaded log file with a
// single HTTP range request.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Defaults mirror what the support channel has always used.
const (
	DefaultHeadBytes = 20000
	DefaultTailBytes = 6000
	DefaultMaxBytes  = 64 << 20
	DefaultTimeout   = 30
)

// ErrBodyTooLarge is wrapped in a TransportError when a server ignores the
// Range header and sends more than the configured maximum.
var ErrBodyTooLarge = errors.New("response body too large")

// TransportError reports a failed request or a non-2xx response.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a body that is not valid UTF-8.
type DecodeError struct {
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid UTF-8 at byte %d", e.Offset)
}

// Config holds fetcher configuration
type Config struct {
	HeadBytes      int
	TailBytes      int
	MaxBytes       int64 // largest full-body (200) response streamed before giving up
	TimeoutSeconds int
	ProxyURL       string
}

// Fetcher performs bounded log downloads.
type Fetcher struct {
	headBytes  int
	tailBytes  int
	maxBytes   int64
	httpClient *http.Client
}

// New creates a Fetcher, filling unset limits with defaults.
func New(cfg Config) (*Fetcher, error) {
	if cfg.HeadBytes <= 0 {
		cfg.HeadBytes = DefaultHeadBytes
	}
	if cfg.TailBytes <= 0 {
		cfg.TailBytes = DefaultTailBytes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeout
	}

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
			return nil, fmt.Errorf("proxy URL must use http or https scheme, got: %s", proxyURL.Scheme)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		}
	}

	return &Fetcher{
		headBytes:  cfg.HeadBytes,
		tailBytes:  cfg.TailBytes,
		maxBytes:   cfg.MaxBytes,
		httpClient: httpClient,
	}, nil
}

// RangeHeader is the Range value sent with every request.
func (f *Fetcher) RangeHeader() string {
	return fmt.Sprintf("bytes=0-%d, -%d", f.headBytes, f.tailBytes)
}

// Fetch downloads the head and tail of the file at rawURL and decodes it as
// UTF-8. It makes exactly one attempt.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &TransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("Range", f.RangeHeader())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	var body []byte
	switch resp.StatusCode {
	case http.StatusPartialContent:
		body, err = f.readPartial(resp)
	case http.StatusOK:
		body, err = f.readFull(resp)
	default:
		return "", &TransportError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	if err != nil {
		return "", &TransportError{URL: rawURL, Err: err}
	}

	if off := invalidOffset(body); off >= 0 {
		return "", &DecodeError{Offset: off}
	}
	return string(body), nil
}

// readPartial handles 206 responses, either one merged range or a
// multipart/byteranges body whose parts are joined in order.
func (f *Fetcher) readPartial(resp *http.Response) ([]byte, error) {
	limit := int64(f.headBytes + f.tailBytes + 2)

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		part, err := readLimited(resp.Body, limit)
		if err != nil {
			return nil, err
		}
		return trimCutRunes(part), nil
	}

	var (
		out []byte
		mr  = multipart.NewReader(resp.Body, params["boundary"])
	)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart range: %w", err)
		}
		part, err := readLimited(p, limit)
		if err != nil {
			return nil, err
		}
		out = joinRanges(out, trimCutRunes(part))
	}
	return out, nil
}

// readFull handles servers that ignore the Range header. The body is
// streamed and only the same head and tail a 206 would carry are kept, so a
// large log still yields its latest lines.
func (f *Fetcher) readFull(resp *http.Response) ([]byte, error) {
	headLen := f.headBytes + 1 // the range 0-head is inclusive
	var (
		head  = make([]byte, 0, headLen)
		tail  = make([]byte, 0, 2*f.tailBytes)
		buf   = make([]byte, 32<<10)
		total int64
	)

	for {
		n, err := resp.Body.Read(buf)
		total += int64(n)
		if total > f.maxBytes {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.maxBytes)
		}

		chunk := buf[:n]
		if room := headLen - len(head); room > 0 {
			take := min(room, len(chunk))
			head = append(head, chunk[:take]...)
			chunk = chunk[take:]
		}
		tail = append(tail, chunk...)
		if over := len(tail) - f.tailBytes; over > 0 {
			tail = tail[:copy(tail, tail[over:])]
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	// nothing was dropped between head and tail
	if total <= int64(headLen+f.tailBytes) {
		return append(head, tail...), nil
	}
	return joinRanges(trimTrailingPartialRune(head), trimCutRunes(tail)), nil
}

// joinRanges concatenates downloaded ranges, separating them with a newline
// unless the first already ends with one.
func joinRanges(first, second []byte) []byte {
	out := make([]byte, 0, len(first)+len(second)+1)
	out = append(out, first...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, second...)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, fmt.Errorf("read range: %w", err)
	}
	return b, nil
}

// trimCutRunes drops bytes of runes split by the range boundaries.
func trimCutRunes(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0 && !utf8.RuneStart(b[0]); i++ {
		b = b[1:]
	}
	return trimTrailingPartialRune(b)
}

func trimTrailingPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			return b
		}
	}
	return b
}

// invalidOffset returns the index of the first invalid byte, or -1.
func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}
