package billingsdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// refresherFunc adapts a function to the Refresher interface.
type refresherFunc func(ctx context.Context) (string, error)

func (f refresherFunc) RefreshAccessToken(ctx context.Context) (string, error) { return f(ctx) }

// newTestClient points a client at handler.
func newTestClient(t *testing.T, handler http.Handler) *SDKClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewSDKClient(srv.URL + "/api/v1/")
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	var got []string
	var mu sync.Mutex
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx := context.Background()
	req := func() *Request { r, _ := NewRequest(http.MethodGet, "/clients/", nil); return r }

	require.NoError(t, client.call(ctx, req(), nil))

	client.SetBearerToken("abc")
	require.Equal(t, "abc", client.BearerToken())
	require.NoError(t, client.call(ctx, req(), nil))

	client.ClearBearerToken()
	require.Empty(t, client.BearerToken())
	require.NoError(t, client.call(ctx, req(), nil))

	require.Equal(t, []string{"", "Bearer abc", ""}, got)
}

func TestRequestHook(t *testing.T) {
	t.Parallel()

	type seen struct {
		method      string
		path        string
		query       map[string][]string
		contentType string
	}
	var reqs []seen
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, seen{r.Method, r.URL.Path, r.URL.Query(), r.Header.Get("Content-Type")})
		_, _ = w.Write([]byte(`{}`))
	}))
	client.now = func() time.Time { return time.UnixMilli(1700000000123) }

	ctx := context.Background()

	get, _ := NewRequest(http.MethodGet, "/invoices/", nil)
	get.Query = map[string][]string{"status": {"paid"}}
	require.NoError(t, client.call(ctx, get, nil))

	post, err := NewRequest(http.MethodPost, "/invoices/", map[string]string{"a": "b"})
	require.NoError(t, err)
	require.NoError(t, client.call(ctx, post, nil))

	require.Len(t, reqs, 2)

	t.Run("GET gets a cache-busting timestamp", func(t *testing.T) {
		require.Equal(t, "/api/v1/invoices/", reqs[0].path)
		require.Equal(t, []string{"1700000000123"}, reqs[0].query["_t"])
		require.Equal(t, []string{"paid"}, reqs[0].query["status"])
	})

	t.Run("descriptor query is not mutated", func(t *testing.T) {
		require.NotContains(t, get.Query, "_t")
	})

	t.Run("POST is left alone", func(t *testing.T) {
		require.Equal(t, http.MethodPost, reqs[1].method)
		require.NotContains(t, reqs[1].query, "_t")
		require.Equal(t, "application/json", reqs[1].contentType)
	})
}

func TestRefreshRetry(t *testing.T) {
	t.Parallel()

	t.Run("401 once then success is retried with the new token", func(t *testing.T) {
		var calls atomic.Int32
		var auths []string
		var stamps []string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auths = append(auths, r.Header.Get("Authorization"))
			stamps = append(stamps, r.URL.Query().Get("_t"))
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":7,"name":"ACME","is_active":true}`))
		}))

		tick := int64(0)
		client.now = func() time.Time { tick++; return time.UnixMilli(tick) }
		client.SetBearerToken("old")

		var refreshes atomic.Int32
		client.SetRefresher(refresherFunc(func(ctx context.Context) (string, error) {
			refreshes.Add(1)
			client.SetBearerToken("new")
			return "new", nil
		}))

		got, err := client.Clients().Get(context.Background(), 7)
		require.NoError(t, err)
		require.Equal(t, "ACME", got.Name)

		require.EqualValues(t, 1, refreshes.Load())
		require.Equal(t, []string{"Bearer old", "Bearer new"}, auths)
		require.Equal(t, []string{"1", "2"}, stamps, "cache buster recomputed per attempt")
	})

	t.Run("second 401 is not retried again", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"still no"}`))
		}))

		var refreshes atomic.Int32
		client.SetRefresher(refresherFunc(func(ctx context.Context) (string, error) {
			refreshes.Add(1)
			return "new", nil
		}))

		req, _ := NewRequest(http.MethodGet, "/payments/", nil)
		err := client.call(context.Background(), req, nil)

		require.True(t, IsUnauthorized(err))
		require.Equal(t, "still no", ServerMessage(err))
		require.EqualValues(t, 2, calls.Load())
		require.EqualValues(t, 1, refreshes.Load())
		require.Equal(t, 1, req.Attempt)
	})

	t.Run("refresh failure is propagated", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))

		boom := errors.New("refresh rejected")
		client.SetRefresher(refresherFunc(func(ctx context.Context) (string, error) {
			return "", boom
		}))

		_, err := client.Invoices().List(context.Background(), nil)
		require.ErrorIs(t, err, boom)
		require.EqualValues(t, 1, calls.Load(), "original request is not reissued")
	})

	t.Run("token endpoints never refresh", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
		}))

		client.SetRefresher(refresherFunc(func(ctx context.Context) (string, error) {
			t.Fatal("refresh must not be called")
			return "", nil
		}))

		_, err := client.Login(context.Background(), Credentials{Email: "a@b.c", Password: "x"})
		require.True(t, IsUnauthorized(err))

		_, err = client.Refresh(context.Background(), "r")
		require.True(t, IsUnauthorized(err))

		require.True(t, IsUnauthorized(client.Logout(context.Background(), "r")))
	})

	t.Run("no refresher returns the 401", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := client.Me(context.Background())
		require.True(t, IsUnauthorized(err))
	})

	t.Run("other statuses pass through untouched", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"You do not have permission to perform this action."}`))
		}))
		client.SetRefresher(refresherFunc(func(ctx context.Context) (string, error) {
			t.Fatal("refresh must not be called")
			return "", nil
		}))

		_, err := client.Users().Get(context.Background(), 1)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		require.Equal(t, "You do not have permission to perform this action.", apiErr.Message)
	})
}

func TestTransportErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	client := NewSDKClient("http://127.0.0.1:1/api/v1")
	client.HTTPClient.Timeout = 200 * time.Millisecond

	_, err := client.Me(context.Background())
	require.Error(t, err)
	require.Zero(t, StatusCode(err))
	require.Contains(t, err.Error(), "failed to send request")
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("flat shape", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v1/auth/login/", r.URL.Path)
			var creds Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			require.Equal(t, "ada@example.com", creds.Email)
			_, _ = w.Write([]byte(`{"access":"a1","refresh":"r1","user":{"id":1,"role":"admin","permissions":["view_user"]}}`))
		}))

		resp, err := client.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "pw"})
		require.NoError(t, err)
		require.Equal(t, "a1", resp.Access)
		require.Equal(t, "r1", resp.Refresh)
		require.Equal(t, "admin", resp.User.Role)
	})

	t.Run("nested token shape", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":"Login successful","tokens":{"access":"a2","refresh":"r2"},"user":{"id":2}}`))
		}))

		resp, err := client.Login(context.Background(), Credentials{})
		require.NoError(t, err)
		require.Equal(t, "a2", resp.Access)
		require.Equal(t, "r2", resp.Refresh)
	})

	t.Run("missing tokens", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"user":{"id":2}}`))
		}))

		_, err := client.Login(context.Background(), Credentials{})
		require.ErrorIs(t, err, ErrIncompleteLogin)
	})

	t.Run("missing refresh token", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"access":"a3","user":{"id":3}}`))
		}))

		_, err := client.Login(context.Background(), Credentials{})
		require.ErrorIs(t, err, ErrIncompleteLogin)
	})
}

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	parse := func(status int, body string) *APIError {
		err := parseErrorResponse(&http.Response{StatusCode: status}, []byte(body))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		return apiErr
	}

	t.Run("message wins over detail", func(t *testing.T) {
		e := parse(400, `{"message":"Bad creds","detail":"other"}`)
		require.Equal(t, "Bad creds", e.Message)
	})

	t.Run("error key", func(t *testing.T) {
		e := parse(400, `{"error":"Token is blacklisted"}`)
		require.Equal(t, "Token is blacklisted", e.Message)
	})

	t.Run("serializer errors", func(t *testing.T) {
		e := parse(400, `{"non_field_errors":["Invalid credentials"],"email":["Enter a valid email address."]}`)
		require.Equal(t, "Invalid credentials", e.Message)
		require.Equal(t, []string{"Enter a valid email address."}, e.Fields["email"])
	})

	t.Run("field errors only", func(t *testing.T) {
		e := parse(400, `{"password":["This field is required."]}`)
		require.Empty(t, e.Message)
		require.Equal(t, "api error 400: password: This field is required.", e.Error())
	})

	t.Run("non json body", func(t *testing.T) {
		e := parse(502, `<html>bad gateway</html>`)
		require.Empty(t, e.Message)
		require.Equal(t, "api error 502: Bad Gateway", e.Error())
	})
}

func TestUserMerge(t *testing.T) {
	t.Parallel()

	u := &User{ID: 3, Email: "a@b.c", FirstName: "Ada", Role: "admin", Permissions: []string{"view_user"}}

	merged, err := u.Merge(json.RawMessage(`{"first_name":"Grace","company":"Navy"}`))
	require.NoError(t, err)
	require.Equal(t, "Grace", merged.FirstName)
	require.Equal(t, "Navy", merged.Company)
	require.Equal(t, "admin", merged.Role)
	require.Equal(t, []string{"view_user"}, merged.Permissions)
	require.Equal(t, "Ada", u.FirstName, "receiver is not mutated")

	var nobody *User
	merged, err = nobody.Merge(json.RawMessage(`{"id":9,"role":"viewer"}`))
	require.NoError(t, err)
	require.EqualValues(t, 9, merged.ID)

	_, err = u.Merge(json.RawMessage(`[1,2]`))
	require.Error(t, err)
}

func TestObserver(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))

	obs := &recordingObserver{}
	client.Observer = obs
	client.SetRefresher(refresherFunc(func(ctx context.Context) (string, error) { return "t", nil }))

	_, err := client.Invoices().Get(context.Background(), 12)
	require.NoError(t, err)

	require.Equal(t, []string{"GET /invoices/{id}/ 401", "GET /invoices/{id}/ 200"}, obs.requests)
	require.Equal(t, []string{"/invoices/{id}/"}, obs.retries)
}

type recordingObserver struct {
	mu       sync.Mutex
	requests []string
	retries  []string
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, method+" "+route+" "+strconv.Itoa(status))
}

func (o *recordingObserver) ObserveRetry(route string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, route)
}
