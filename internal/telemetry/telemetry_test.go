package telemetry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/invoicer/internal/router"
	"github.com/aussiebroadwan/invoicer/internal/session"
	"github.com/aussiebroadwan/invoicer/internal/telemetry"
	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
)

var (
	_ billingsdk.Observer = (*telemetry.Metrics)(nil)
	_ session.Observer    = (*telemetry.Metrics)(nil)
	_ router.Observer     = (*telemetry.Metrics)(nil)
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := telemetry.New()

	m.ObserveRequest("GET", "/invoices/{id}/", 401, 20*time.Millisecond)
	m.ObserveRetry("/invoices/{id}/")
	m.ObserveRequest("GET", "/invoices/{id}/", 200, 30*time.Millisecond)
	m.ObserveRequest("GET", "/clients/", 0, time.Second)
	m.ObserveSessionEvent(session.EventRefresh)
	m.ObserveNavigation("invoices", false)
	m.ObserveNavigation("", true)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.Contains(t, text, `invoicer_api_requests_total{method="GET",route="/invoices/{id}/",status="401"} 1`)
	require.Contains(t, text, `invoicer_api_requests_total{method="GET",route="/invoices/{id}/",status="200"} 1`)
	require.Contains(t, text, `invoicer_api_requests_total{method="GET",route="/clients/",status="error"} 1`)
	require.Contains(t, text, `invoicer_api_refresh_retries_total{route="/invoices/{id}/"} 1`)
	require.Contains(t, text, `invoicer_session_events_total{event="refresh"} 1`)
	require.Contains(t, text, `invoicer_router_navigations_total{redirected="true",route="unnamed"} 1`)

	n, err := testutil.GatherAndCount(m.Registry, "invoicer_api_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
