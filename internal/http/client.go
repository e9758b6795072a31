package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultTimeout bounds a single request, including reading the body.
const DefaultTimeout = 9 * time.Second

// DefaultUserAgent is sent when the settings leave the user agent empty.
const DefaultUserAgent = "BroforceMapDownloader"

// Client wraps HTTP operations for the workshop and the download mirror.
//
// Client provides:
//   - Configured User-Agent header
//   - Per-request timeout
//   - Retry with capped exponential backoff (FetchString, DownloadFile)
//   - Streaming downloads into an afero filesystem with integrity checks
//
// Example usage:
//
//	client := NewClient(ClientConfig{Retry: DefaultRetryPolicy()})
//
//	// Fetch a listing page, retrying transient failures
//	html, err := client.FetchString(ctx, browseURL)
//
//	// Download a map payload
//	n, err := client.DownloadFile(ctx, fs, payloadURL, "/maps/.staging/42.part", nil)
type Client struct {
	httpClient *http.Client
	userAgent  string
	retry      RetryPolicy
	log        logrus.FieldLogger
}

// ClientConfig configures NewClient. Zero values pick the defaults.
type ClientConfig struct {
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
	Logger    logrus.FieldLogger

	// Transport overrides the round tripper, mostly for tests.
	Transport http.RoundTripper
}

// NewClient creates a new HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		userAgent: cfg.UserAgent,
		retry:     cfg.Retry,
		log:       cfg.Logger,
	}
}

// ProgressWriter wraps a writer to track download progress.
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes (from Content-Length header), -1 if unknown.
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with (bytesWritten, totalExpected).
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// Get performs a single GET request and returns the response body.
//
// Returns a *StatusError if the response status is not 200 OK.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// FetchString performs a GET with the retry policy and returns the body as a string.
func (c *Client) FetchString(ctx context.Context, url string) (string, error) {
	var body []byte
	err := c.withRetry(url).Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.Get(ctx, url)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DownloadFile downloads url into destPath on fs, retrying transient failures.
//
// The file is created (or truncated) on every attempt. A response with no
// body or with fewer bytes than Content-Length announced counts as a failed
// attempt; after the last attempt the partial file is removed.
//
// onProgress may be nil. It returns the number of bytes written.
func (c *Client) DownloadFile(ctx context.Context, fs afero.Fs, url, destPath string, onProgress func(written, total int64)) (int64, error) {
	if err := fs.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, Permanent(err)
	}

	var written int64
	err := c.withRetry(url).Do(ctx, func(ctx context.Context) error {
		var err error
		written, err = c.downloadOnce(ctx, fs, url, destPath, onProgress)
		return err
	})
	if err != nil {
		_ = fs.Remove(destPath)
		return 0, err
	}
	return written, nil
}

func (c *Client) downloadOnce(ctx context.Context, fs afero.Fs, url, destPath string, onProgress func(written, total int64)) (int64, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	file, err := fs.Create(destPath)
	if err != nil {
		return 0, Permanent(err)
	}
	defer file.Close()

	var writer io.Writer = file
	if onProgress != nil {
		writer = &ProgressWriter{
			Writer:   file,
			Total:    resp.ContentLength,
			OnUpdate: onProgress,
		}
	}

	n, err := io.Copy(writer, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy body: %w", err)
	}
	if n == 0 {
		return 0, ErrEmptyPayload
	}
	if resp.ContentLength > 0 && n < resp.ContentLength {
		return n, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, n, resp.ContentLength)
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Permanent(err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// withRetry returns the client's policy with logging hooked in.
func (c *Client) withRetry(url string) RetryPolicy {
	p := c.retry
	next := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.log.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("request failed, retrying")
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return p
}
