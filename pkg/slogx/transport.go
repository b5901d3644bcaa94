package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/invoicer/pkg/idx"
)

// RequestIDHeader carries the correlation id of an outbound call.
const RequestIDHeader = "X-Request-ID"

// Transport logs outbound requests. A request id is generated when the caller
// did not set one and is copied onto the request so the backend can log it too.
//
// A logger carried by the request context wins over Logger, so calls made on
// behalf of a command log with that command's attributes.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, reqID)
	}

	logger, ok := lookup(req.Context())
	if !ok {
		logger = t.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("api_request_failed", "duration_ms", duration, "err", err)
		return nil, err
	}

	logger.Debug("api_request", "status", resp.StatusCode, "duration_ms", duration)
	return resp, nil
}
