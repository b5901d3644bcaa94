package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/invoicer/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestParseRateLimitFromEnv(t *testing.T) {
	t.Run("keeps defaults when unset", func(t *testing.T) {
		cfg := httpx.ParseRateLimitFromEnv("UNSET_PREFIX", httpx.DefaultAPILimit)
		require.Equal(t, httpx.DefaultAPILimit, cfg)
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "7")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "2")
		t.Setenv("RATELIMIT_TEST_BURST", "3")

		cfg := httpx.ParseRateLimitFromEnv("TEST", httpx.DefaultAPILimit)
		require.Equal(t, 7, cfg.RequestsPerWindow)
		require.Equal(t, 2*time.Second, cfg.Window)
		require.Equal(t, 3, cfg.Burst)
	})

	t.Run("ignores invalid values", func(t *testing.T) {
		t.Setenv("RATELIMIT_BAD_REQUESTS", "lots")
		t.Setenv("RATELIMIT_BAD_BURST", "-1")

		cfg := httpx.ParseRateLimitFromEnv("BAD", httpx.DefaultAPILimit)
		require.Equal(t, httpx.DefaultAPILimit, cfg)
	})
}

func TestRateLimitedTransport(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Run("disabled config returns base", func(t *testing.T) {
		base := http.DefaultTransport
		rt := httpx.NewRateLimitedTransport(base, httpx.RateLimitConfig{})
		require.Equal(t, base, rt)
	})

	t.Run("burst passes immediately", func(t *testing.T) {
		client := &http.Client{Transport: httpx.NewRateLimitedTransport(nil, httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             3,
		})}

		for i := range 3 {
			resp, err := client.Get(srv.URL)
			require.NoError(t, err, "request %d should pass", i+1)
			resp.Body.Close()
		}
	})

	t.Run("waiting request honours context deadline", func(t *testing.T) {
		client := &http.Client{Transport: httpx.NewRateLimitedTransport(nil, httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Hour,
			Burst:             1,
		})}

		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()

		before := hits.Load()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		_, err = client.Do(req)
		require.Error(t, err)
		require.Equal(t, before, hits.Load(), "request must not reach the server")
	})
}
