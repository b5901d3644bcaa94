package billingsdk

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every request made by an SDKClient.
const DefaultTimeout = 10 * time.Second

// Refresher obtains a new access token after the API rejected the current one.
// The session store implements it.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
}

// Observer receives request outcomes, used for metrics.
type Observer interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	ObserveRetry(route string)
}

// SDKClient is a client for the billing API.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// Observer is optional.
	Observer Observer

	mu        sync.RWMutex
	headers   http.Header
	refresher Refresher

	// now is swapped in tests to pin the cache-busting parameter.
	now func() time.Time
}

// NewSDKClient creates a client for the API rooted at baseURL
// (e.g. "https://billing.example.com/api/v1").
func NewSDKClient(baseURL string) *SDKClient {
	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		headers: headers,
		now:     time.Now,
	}
}

// SetRefresher attaches the component asked for a new token on 401.
func (c *SDKClient) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

// SetBearerToken sets the default Authorization header. Requests issued after
// this call returns carry the new token.
func (c *SDKClient) SetBearerToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set("Authorization", "Bearer "+token)
}

// ClearBearerToken removes the default Authorization header.
func (c *SDKClient) ClearBearerToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Del("Authorization")
}

// BearerToken returns the token of the default Authorization header, or "".
func (c *SDKClient) BearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.TrimPrefix(c.headers.Get("Authorization"), "Bearer ")
}

// SetHeader sets an additional default header sent with every request.
func (c *SDKClient) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(key, value)
}

func (c *SDKClient) snapshotHeaders() (http.Header, Refresher) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Clone(), c.refresher
}

// Resource accessors

func (c *SDKClient) Clients() *Resource[Client] {
	return &Resource[Client]{c: c, base: "/clients/"}
}

func (c *SDKClient) Invoices() *InvoicesService {
	return &InvoicesService{Resource: Resource[Invoice]{c: c, base: "/invoices/"}}
}

func (c *SDKClient) Payments() *Resource[Payment] {
	return &Resource[Payment]{c: c, base: "/payments/"}
}

func (c *SDKClient) Users() *Resource[User] {
	return &Resource[User]{c: c, base: "/users/"}
}

func (c *SDKClient) Reports() *ReportsService {
	return &ReportsService{c: c}
}
