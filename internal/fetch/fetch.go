// Package fetch downloads pages and images with a browser-like identity,
// bounded retries and an optional on-disk conditional-GET cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/poemscout/internal/cache"
)

// BrowserUserAgent mimics a desktop browser; some poetry sites block obvious bots.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DefaultMaxRedirects is used when Client.MaxRedirects is zero.
const DefaultMaxRedirects = 5

var (
	// ErrTooLarge is returned when a body exceeds MaxBodyBytes.
	ErrTooLarge = errors.New("response body too large")
	// ErrContentType is returned when Accept rejects the response Content-Type.
	ErrContentType = errors.New("unsupported content type")
)

// Client issues GET requests. The zero value is usable: one attempt, no
// timeout beyond the HTTP client's, any content type, no cache.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Header holds extra request headers, applied before User-Agent.
	Header http.Header
	// MaxAttempts includes the initial attempt. Only 5xx answers and
	// timeouts are retried.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt.
	PerRequestTimeout time.Duration
	// MaxBodyBytes caps the response body. Zero means unlimited.
	MaxBodyBytes int64
	// MaxRedirects caps redirect hops; zero means DefaultMaxRedirects.
	MaxRedirects int
	// Accept decides whether a response Content-Type is acceptable.
	// Nil accepts anything and leaves the judgement to the caller.
	Accept func(contentType string) bool

	// Cache stores bodies and validators; later fetches revalidate with
	// If-None-Match / If-Modified-Since.
	Cache *cache.HTTPCache
	// BypassCache skips revalidation and always downloads, but still
	// refreshes the cache with the new body.
	BypassCache bool
}

// StatusError is a non-2xx, non-304 answer.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	if e.Code >= 500 {
		return fmt.Sprintf("server error: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

type response struct {
	body         []byte
	contentType  string
	etag         string
	lastModified string
	status       int
}

// Get fetches rawURL and returns the body and its Content-Type.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !isHTTPScheme(u) {
		return nil, "", fmt.Errorf("unsupported URL: %q", rawURL)
	}

	var etag, lastMod string
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta != nil {
			etag, lastMod = meta.ETag, meta.LastModified
		}
	}

	attempts := max(c.MaxAttempts, 1)
	for i := range attempts {
		res, err := c.do(ctx, rawURL, etag, lastMod)
		if err == nil && res.status == http.StatusNotModified {
			if cached, cerr := c.cached(ctx, rawURL); cerr == nil {
				return cached.body, cached.contentType, nil
			}
			// The body went missing underneath the meta file.
			etag, lastMod = "", ""
			res, err = c.do(ctx, rawURL, "", "")
		}
		if err == nil {
			if c.Cache != nil && res.status == http.StatusOK {
				_ = c.Cache.Save(ctx, rawURL, res.contentType, res.etag, res.lastModified, res.body)
			}
			return res.body, res.contentType, nil
		}
		if !retryable(err) || i == attempts-1 {
			return nil, "", err
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return nil, "", errors.New("no attempts made")
}

func (c *Client) cached(ctx context.Context, rawURL string) (response, error) {
	body, err := c.Cache.LoadBody(ctx, rawURL)
	if err != nil {
		return response{}, err
	}
	res := response{body: body, status: http.StatusOK}
	if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta != nil {
		res.contentType = meta.ContentType
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, rawURL, etag, lastMod string) (response, error) {
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	res := response{
		contentType:  resp.Header.Get("Content-Type"),
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		status:       resp.StatusCode,
	}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		return res, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return res, &StatusError{Code: resp.StatusCode}
	case c.Accept != nil && !c.Accept(res.contentType):
		return res, fmt.Errorf("%w: %s", ErrContentType, res.contentType)
	}
	res.body, err = c.readBody(resp)
	return res, err
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	if c.MaxBodyBytes <= 0 {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return b, nil
	}
	if resp.ContentLength > c.MaxBodyBytes {
		return nil, fmt.Errorf("%w: content-length %d", ErrTooLarge, resp.ContentLength)
	}
	// One byte past the cap separates "exactly at the limit" from "cut off".
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > c.MaxBodyBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, c.MaxBodyBytes)
	}
	return b, nil
}

// httpClient returns a shallow copy of HTTPClient carrying the redirect policy.
func (c *Client) httpClient() *http.Client {
	var hc http.Client
	if c.HTTPClient != nil {
		hc = *c.HTTPClient
	}
	hops := c.MaxRedirects
	if hops <= 0 {
		hops = DefaultMaxRedirects
	}
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= hops {
			return fmt.Errorf("stopped after %d redirects", hops)
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
	return &hc
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	}
	return false
}

// IsTextContentType accepts anything a markup parser can make sense of:
// text/*, XML and XHTML types, and a missing header (many small poetry sites
// omit it). Binary types such as images, PDFs and archives are rejected.
func IsTextContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return true
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "xml") || strings.Contains(ct, "html")
}
