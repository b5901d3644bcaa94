package billingsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// MaxRefreshAttempts is how many times one request may be reissued after a
// token refresh.
const MaxRefreshAttempts = 1

// cacheBustParam is appended to GET requests so intermediaries never serve a
// stale listing.
const cacheBustParam = "_t"

// Request describes one logical API call. The same descriptor is reused when
// the call is reissued after a refresh; Attempt counts those reissues.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte

	// Route is the path template used as a metrics label (defaults to Path).
	Route string

	// Header holds per-request headers layered over the client defaults.
	Header http.Header

	// NoRefresh disables the refresh-and-retry on 401.
	NoRefresh bool

	Attempt int
}

// NewRequest builds a request descriptor; body, if non-nil, is JSON encoded.
func NewRequest(method, path string, body any) (*Request, error) {
	r := &Request{Method: method, Path: path}
	if body == nil {
		return r, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	r.Body = data
	return r, nil
}

func (r *Request) route() string {
	if r.Route != "" {
		return r.Route
	}
	return r.Path
}

// canRefresh reports whether a 401 on this request may trigger a refresh.
func (r *Request) canRefresh() bool {
	return !r.NoRefresh && r.Attempt < MaxRefreshAttempts
}

// build materialises the descriptor for one attempt. The cache-busting
// parameter is computed per attempt, like the rest of the request hook.
func (c *SDKClient) build(ctx context.Context, r *Request, defaults http.Header) (*http.Request, error) {
	query := url.Values{}
	for k, v := range r.Query {
		query[k] = append([]string(nil), v...)
	}
	if r.Method == http.MethodGet {
		query.Set(cacheBustParam, strconv.FormatInt(c.now().UnixMilli(), 10))
	}

	target := c.url(r.Path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range defaults {
		req.Header[key] = values
	}
	for key, values := range r.Header {
		req.Header[key] = values
	}
	if r.Body == nil {
		req.Header.Del("Content-Type")
	}

	return req, nil
}
