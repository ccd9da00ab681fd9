package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chargebook/backend/services/booking-gateway/internal/requestid"
)

const maxResponseBytes = 4 << 20

// HTTPDoer is the part of *http.Client the backend client needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Request is one call against the backend. Path may carry a query string.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Token  string
}

// BaseClient sends JSON requests relative to a fixed base URL.
type BaseClient struct {
	base   *url.URL
	client HTTPDoer
}

// NewBaseClient parses baseURL once. A trailing slash is ignored.
func NewBaseClient(baseURL string, client HTTPDoer) (*BaseClient, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("clients: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("clients: base url %q is not absolute", baseURL)
	}
	return &BaseClient{base: u, client: client}, nil
}

func (c *BaseClient) resolve(path string) string {
	ref, err := url.Parse("/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return c.base.String() + path
	}
	u := *c.base
	u.Path = c.base.Path + ref.Path
	u.RawPath = ""
	if ref.RawPath != "" {
		u.RawPath = c.base.EscapedPath() + ref.RawPath
	}
	u.RawQuery = ref.RawQuery
	return u.String()
}

// Do sends r and returns the status code and body.
// The request id from ctx is forwarded, or a fresh one is minted.
func (c *BaseClient) Do(ctx context.Context, r Request) (int, []byte, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, c.resolve(r.Path), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	_, id := requestid.Ensure(ctx)
	req.Header.Set(requestid.Header, id)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

// NewDefaultHTTPClient returns an *http.Client bounded by timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
