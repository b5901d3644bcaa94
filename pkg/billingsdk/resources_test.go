package billingsdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceList(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/payments/", r.URL.Path)

		q := r.URL.Query()
		require.Equal(t, "2", q.Get("page"))
		require.Equal(t, "25", q.Get("page_size"))
		require.Equal(t, "-payment_date", q.Get("ordering"))
		require.Equal(t, "paid", q.Get("status"))
		require.NotEmpty(t, q.Get("_t"))

		_, _ = w.Write([]byte(`{"count":26,"next":"http://x/payments/?page=3","previous":null,
			"results":[{"id":1,"invoice":4,"payment_reference":"PAY-1","amount":"10.50","payment_date":"2024-01-02","payment_method":"cash"}]}`))
	}))

	page, err := client.Payments().List(context.Background(), &ListOptions{
		Page:     2,
		PageSize: 25,
		Ordering: "-payment_date",
		Filters:  map[string]string{"status": "paid"},
	})
	require.NoError(t, err)
	require.Equal(t, 26, page.Count)
	require.True(t, page.HasNext())
	require.Len(t, page.Results, 1)
	require.Equal(t, "10.50", page.Results[0].Amount)
}

func TestResourceCRUD(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/clients/":
			var in Client
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			in.ID = 11
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(in)
		case r.Method == http.MethodPatch && r.URL.Path == "/api/v1/clients/11/":
			body, _ := io.ReadAll(r.Body)
			require.JSONEq(t, `{"city":"Perth"}`, string(body))
			_, _ = w.Write([]byte(`{"id":11,"name":"ACME","city":"Perth","is_active":true}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/clients/11/":
			require.Empty(t, r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not found."}`))
		}
	}))

	ctx := context.Background()
	clients := client.Clients()

	created, err := clients.Create(ctx, Client{Name: "ACME", IsActive: true})
	require.NoError(t, err)
	require.EqualValues(t, 11, created.ID)

	updated, err := clients.Update(ctx, 11, Fields{"city": "Perth"})
	require.NoError(t, err)
	require.Equal(t, "Perth", updated.City)

	require.NoError(t, clients.Delete(ctx, 11))

	_, err = clients.Get(ctx, 99)
	require.True(t, IsNotFound(err))
	require.Equal(t, "Not found.", ServerMessage(err))
}

func TestInvoiceActions(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/invoices/5/pdf/":
			require.Equal(t, "application/pdf", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		case "/api/v1/invoices/5/send-email/":
			var in EmailRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			require.Equal(t, []string{"ap@acme.test"}, in.Recipients)
			_, _ = w.Write([]byte(`{"message":"Invoice sent"}`))
		case "/api/v1/invoices/5/mark-sent/", "/api/v1/invoices/5/mark-paid/":
			require.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"message":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	invoices := client.Invoices()

	doc, contentType, err := invoices.PDF(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", contentType)
	require.Equal(t, []byte("%PDF-1.4"), doc)

	msg, err := invoices.SendEmail(ctx, 5, EmailRequest{Recipients: []string{"ap@acme.test"}})
	require.NoError(t, err)
	require.Equal(t, "Invoice sent", msg.Message)

	_, err = invoices.MarkSent(ctx, 5)
	require.NoError(t, err)
	_, err = invoices.MarkPaid(ctx, 5)
	require.NoError(t, err)

	_, _, err = invoices.PDF(ctx, 6)
	require.True(t, IsNotFound(err))
}

func TestReports(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reports/dashboard/":
			_, _ = w.Write([]byte(`{"totals":{"revenue":"1200.00","outstanding":"300.00"},"monthly":[{"month":"2024-01","amount":"400.00"},{"month":"2024-02","amount":"800.00"}]}`))
		case "/api/v1/reports/revenue/":
			require.Equal(t, "2024", r.URL.Query().Get("year"))
			_, _ = w.Write([]byte(`{"year":2024,"total":"1200.00"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()

	dash, err := client.Reports().Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, "1200.00", dash.Get("totals.revenue").String())
	require.Equal(t, int64(2), dash.Get("monthly.#").Int())
	require.Equal(t, "800.00", dash.Get("monthly.1.amount").String())

	raw, err := json.Marshal(dash)
	require.NoError(t, err)
	require.JSONEq(t, string(dash.Raw()), string(raw))

	rev, err := client.Reports().Revenue(ctx, &ListOptions{Filters: map[string]string{"year": "2024"}})
	require.NoError(t, err)
	require.EqualValues(t, 2024, rev.Get("year").Int())

	_, err = client.Reports().Get(ctx, "nope", nil)
	require.True(t, IsNotFound(err))
}
