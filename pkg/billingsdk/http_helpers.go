package billingsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody caps how much of an error response is kept on APIError.
const maxErrorBody = 64 << 10

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// Do sends the request and returns the final response, whatever its status.
// On 401 it asks the Refresher for a new token and reissues the request once;
// if that refresh fails, the refresh error is returned and the response of the
// original attempt is discarded.
func (c *SDKClient) Do(ctx context.Context, r *Request) (*http.Response, error) {
	for {
		defaults, refresher := c.snapshotHeaders()

		resp, err := c.send(ctx, r, defaults)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusUnauthorized || refresher == nil || !r.canRefresh() {
			return resp, nil
		}

		// The body of the rejected attempt is never surfaced.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()

		r.Attempt++
		if c.Observer != nil {
			c.Observer.ObserveRetry(r.route())
		}

		if _, err := refresher.RefreshAccessToken(ctx); err != nil {
			return nil, fmt.Errorf("refresh after 401 on %s %s: %w", r.Method, r.Path, err)
		}
	}
}

// send performs a single attempt.
func (c *SDKClient) send(ctx context.Context, r *Request, defaults http.Header) (*http.Response, error) {
	req, err := c.build(ctx, r, defaults)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if c.Observer != nil {
			c.Observer.ObserveRequest(r.Method, r.route(), 0, time.Since(start))
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if c.Observer != nil {
		c.Observer.ObserveRequest(r.Method, r.route(), resp.StatusCode, time.Since(start))
	}
	return resp, nil
}

// call sends the request and decodes a 2xx JSON body into target (which may
// be nil). Non-2xx responses become *APIError.
func (c *SDKClient) call(ctx context.Context, r *Request, target any) error {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target)
}

// decodeJSON decodes a JSON response into the target.
// Returns an *APIError if the response status is not 2xx.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseErrorResponse(resp, bodyBytes)
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// readBinary returns the raw body of a 2xx response and its content type.
func readBinary(resp *http.Response) ([]byte, string, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", parseErrorResponse(resp, bodyBytes)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
