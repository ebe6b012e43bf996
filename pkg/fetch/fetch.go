package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	headTimeout   = 15 * time.Second
	rangedTimeout = 20 * time.Second
	maxRedirects  = 10
)

// SourceMetadata describes an HTTP source before it is streamed.
type SourceMetadata struct {
	URL           string
	ContentLength uint64
	Filename      string // sanitized
}

// NewClient builds the HTTP client used for all requests: redirects capped,
// user agent set on every request.
func NewClient(userAgent string) *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
		Transport: &userAgentTransport{
			base:      http.DefaultTransport,
			userAgent: userAgent,
		},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(clone)
}

// Head fetches the source's metadata with a HEAD request, falling back to a
// one-byte ranged GET when the server rejects HEAD.
func Head(ctx context.Context, client *http.Client, rawURL string) (*SourceMetadata, error) {
	headCtx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(headCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build HEAD request for %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD request failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return headViaGet(ctx, client, rawURL)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HEAD request for %s returned status %s", rawURL, resp.Status)
	}
	return buildMetadata(rawURL, resp)
}

// headViaGet asks for a single byte and derives the full length from the
// Content-Range total.
func headViaGet(ctx context.Context, client *http.Client, rawURL string) (*SourceMetadata, error) {
	logrus.WithField("url", rawURL).Debug("Falling back to ranged GET for metadata")

	getCtx, cancel := context.WithTimeout(ctx, rangedTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(getCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build GET request for %s: %w", rawURL, err)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET fallback failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET fallback for %s returned status %s", rawURL, resp.Status)
	}
	return buildMetadata(rawURL, resp)
}

func buildMetadata(rawURL string, resp *http.Response) (*SourceMetadata, error) {
	length, ok := contentLength(resp)
	if !ok {
		return nil, fmt.Errorf("missing content length for %s", rawURL)
	}
	filename, err := inferFilename(rawURL, resp.Header.Get("Content-Disposition"))
	if err != nil {
		return nil, err
	}
	return &SourceMetadata{
		URL:           rawURL,
		ContentLength: length,
		Filename:      filename,
	}, nil
}

// contentLength prefers the Content-Range total for partial responses, since
// their Content-Length only covers the requested slice.
func contentLength(resp *http.Response) (uint64, bool) {
	if resp.StatusCode == http.StatusPartialContent {
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			return total, true
		}
	}
	if value := resp.Header.Get("Content-Length"); value != "" {
		if length, err := strconv.ParseUint(value, 10, 64); err == nil {
			return length, true
		}
	}
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

// parseContentRangeTotal extracts the total from "bytes a-b/total"; an
// unknown total ("*") is rejected.
func parseContentRangeTotal(value string) (uint64, bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bytes") {
		return 0, false
	}
	parts := strings.SplitN(fields[1], "/", 2)
	if len(parts) != 2 || parts[1] == "*" {
		return 0, false
	}
	total, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// Stream opens the source body for the single hashing pass. No overall
// deadline is set: a large source can legitimately take hours to stream, so
// aborting early is the caller's context's job. The caller owns the returned
// reader and must close it.
func Stream(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build GET request for %s: %w", rawURL, err)
	}
	// Ask for the raw bytes; a transcoded body would hash differently.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed for %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET request for %s returned status %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

// ParseSourceURL validates a user-supplied source or webseed URL.
func ParseSourceURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	switch parsed.Scheme {
	case "http", "https":
		return parsed.String(), nil
	case "":
		return "", errors.New("URL is missing a scheme")
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme)
	}
}
