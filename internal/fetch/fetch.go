package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/JimH44/Ketarin4Linux/internal/variable"
)

// Error variables for fetch errors
var (
	// ErrInvalidURL is returned when a URL cannot be requested
	ErrInvalidURL = errors.New("invalid URL")
	// ErrNetwork is returned when a request fails or the server answers with an error status
	ErrNetwork = errors.New("network error")
)

// DefaultUserAgent is sent when neither the job nor the configuration sets one.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) Ketarin4Linux"

// formContentType is used for requests carrying post data.
const formContentType = "application/x-www-form-urlencoded"

// Request describes one page or file request. A non-empty Body turns the
// request into a form POST.
type Request struct {
	URL       string
	Body      string
	UserAgent string
}

// ProgressFunc receives download progress in percent, or -1 when the total
// size is unknown.
type ProgressFunc func(percent int)

// Fetcher retrieves page content and downloads files.
type Fetcher struct {
	client    *RetryableHTTPClient
	userAgent string
}

// Option is a functional option for configuring Fetcher
type Option func(*Fetcher)

// WithClient sets the HTTP client used for all requests
func WithClient(client *RetryableHTTPClient) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the user agent used when a request does not carry one
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// New creates a fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    NewRetryableHTTPClient(),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the body of the page at req.URL decoded to UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (string, error) {
	resp, err := f.do(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrNetwork, req.URL, err)
	}
	return string(data), nil
}

// ContentFunc adapts the fetcher for variable resolution using userAgent.
func (f *Fetcher) ContentFunc(userAgent string) variable.ContentFunc {
	return func(ctx context.Context, url, body string) (string, error) {
		return f.Fetch(ctx, Request{URL: url, Body: body, UserAgent: userAgent})
	}
}

// Download saves the file at req.URL into dir and returns its path. The
// name comes from Content-Disposition, falling back to the last path
// segment of the final URL. The file only appears under its name once
// complete.
func (f *Fetcher) Download(ctx context.Context, req Request, dir string, progress ProgressFunc) (string, error) {
	resp, err := f.do(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	target := filepath.Join(dir, fileName(resp))
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := &progressWriter{total: resp.ContentLength, report: progress, last: -2}
	_, copyErr := io.Copy(io.MultiWriter(tmp, w), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: download %s: %v", ErrNetwork, req.URL, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("write %s: %w", target, closeErr)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("move download into place: %w", err)
	}
	if progress != nil && resp.ContentLength > 0 {
		w.emit(100)
	}
	return target, nil
}

func (f *Fetcher) do(ctx context.Context, req Request, timeout bool) (*http.Response, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	method := http.MethodGet
	if req.Body != "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if req.Body != "" {
		httpReq.Header.Set("Content-Type", formContentType)
	}
	ua := req.UserAgent
	if ua == "" {
		ua = f.userAgent
	}
	httpReq.Header.Set("User-Agent", ua)

	resp, err := f.client.Do(ctx, httpReq, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, req.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: status %d", ErrNetwork, req.URL, resp.StatusCode)
	}
	return resp, nil
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidURL, rawURL)
	}
	return nil
}

func bodyReader(body string) io.Reader {
	if body == "" {
		return nil
	}
	return strings.NewReader(body)
}

// fileName picks a safe local name for a downloaded file.
func fileName(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := sanitize(params["filename"]); name != "" {
				return name
			}
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if name := sanitize(path.Base(resp.Request.URL.Path)); name != "" {
			return name
		}
	}
	return "download"
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case ".", "..", "/", "":
		return ""
	}
	return name
}

// progressWriter converts written bytes into percent updates.
type progressWriter struct {
	total   int64
	written int64
	report  ProgressFunc
	last    int
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.total <= 0 {
		w.emit(-1)
	} else {
		w.emit(int(w.written * 100 / w.total))
	}
	return len(p), nil
}

func (w *progressWriter) emit(percent int) {
	if w.report == nil || percent == w.last {
		return
	}
	if percent > 100 {
		percent = 100
	}
	w.last = percent
	w.report(percent)
}
