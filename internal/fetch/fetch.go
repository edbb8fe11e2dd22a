// Package fetch retrieves feeds, pages and images over HTTP with a
// browser-like identity so origin servers are less likely to block the job.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultUserAgent is sent unless the caller overrides it. Some sites block
// generic bot user agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"

// DefaultMaxBytes caps a single response body.
const DefaultMaxBytes int64 = 16 * 1024 * 1024

// ErrTooLarge is returned when a response body exceeds the size limit.
var ErrTooLarge = errors.New("response body exceeds maximum allowed size")

// Options configures a Client.
type Options struct {
	UserAgent string
	Timeout   time.Duration

	// MaxBytes limits each response body. Zero means DefaultMaxBytes and a
	// negative value means unlimited.
	MaxBytes int64

	// BrowserTLS makes HTTPS requests with a browser TLS fingerprint.
	BrowserTLS bool
}

// Client performs GET requests.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// New creates a Client from opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.BrowserTLS {
		httpClient = newBrowserClient(opts.Timeout)
	}

	return &Client{
		httpClient: httpClient,
		userAgent:  opts.UserAgent,
		maxBytes:   opts.MaxBytes,
	}
}

// Get downloads rawURL and returns its body. Any status outside 2xx is an
// error. accept is sent as the Accept header when non-empty.
func (c *Client) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := readLimited(resp.Body, c.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// readLimited reads up to limit bytes from r and fails if there is more.
// A negative limit reads everything.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit < 0 {
		return io.ReadAll(r)
	}
	// One extra byte detects overflow.
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%s)", ErrTooLarge, humanize.IBytes(uint64(limit)))
	}
	return data, nil
}
