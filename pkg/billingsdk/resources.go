package billingsdk

import (
	"context"
	"net/http"
	"strconv"
)

// Resource is a CRUD collection rooted at base (e.g. "/clients/").
type Resource[T any] struct {
	c    *SDKClient
	base string
}

func (r *Resource[T]) item(id int64) string {
	return r.base + strconv.FormatInt(id, 10) + "/"
}

func (r *Resource[T]) itemRoute(suffix string) string {
	return r.base + "{id}/" + suffix
}

// List returns one page of the collection.
func (r *Resource[T]) List(ctx context.Context, opts *ListOptions) (*Page[T], error) {
	req, _ := NewRequest(http.MethodGet, r.base, nil)
	req.Query = opts.Values()

	var out Page[T]
	if err := r.c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create posts a new item and returns the stored record.
func (r *Resource[T]) Create(ctx context.Context, item any) (*T, error) {
	req, err := NewRequest(http.MethodPost, r.base, item)
	if err != nil {
		return nil, err
	}

	var out T
	if err := r.c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one item.
func (r *Resource[T]) Get(ctx context.Context, id int64) (*T, error) {
	req, _ := NewRequest(http.MethodGet, r.item(id), nil)
	req.Route = r.itemRoute("")

	var out T
	if err := r.c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update applies a partial update.
func (r *Resource[T]) Update(ctx context.Context, id int64, fields Fields) (*T, error) {
	req, err := NewRequest(http.MethodPatch, r.item(id), fields)
	if err != nil {
		return nil, err
	}
	req.Route = r.itemRoute("")

	var out T
	if err := r.c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes one item.
func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	req, _ := NewRequest(http.MethodDelete, r.item(id), nil)
	req.Route = r.itemRoute("")

	return r.c.call(ctx, req, nil)
}

// InvoicesService adds the invoice state transitions and the PDF document.
type InvoicesService struct {
	Resource[Invoice]
}

// PDF downloads the invoice document. The content type is returned as sent.
func (s *InvoicesService) PDF(ctx context.Context, id int64) ([]byte, string, error) {
	req, _ := NewRequest(http.MethodGet, s.item(id)+"pdf/", nil)
	req.Route = s.itemRoute("pdf/")
	req.Header = http.Header{"Accept": {"application/pdf"}}

	resp, err := s.c.Do(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return readBinary(resp)
}

// SendEmail emails the invoice.
func (s *InvoicesService) SendEmail(ctx context.Context, id int64, email EmailRequest) (*StatusMessage, error) {
	return s.action(ctx, id, "send-email/", email)
}

// MarkSent flags the invoice as sent.
func (s *InvoicesService) MarkSent(ctx context.Context, id int64) (*StatusMessage, error) {
	return s.action(ctx, id, "mark-sent/", nil)
}

// MarkPaid flags the invoice as paid.
func (s *InvoicesService) MarkPaid(ctx context.Context, id int64) (*StatusMessage, error) {
	return s.action(ctx, id, "mark-paid/", nil)
}

func (s *InvoicesService) action(ctx context.Context, id int64, suffix string, body any) (*StatusMessage, error) {
	req, err := NewRequest(http.MethodPost, s.item(id)+suffix, body)
	if err != nil {
		return nil, err
	}
	req.Route = s.itemRoute(suffix)

	var out StatusMessage
	if err := s.c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportsService reads the aggregate report endpoints.
type ReportsService struct {
	c *SDKClient
}

// ReportNames lists the available reports.
var ReportNames = []string{"dashboard", "revenue", "invoices", "clients", "payments"}

// Get fetches a report by name with optional query parameters.
func (s *ReportsService) Get(ctx context.Context, name string, opts *ListOptions) (*Report, error) {
	req, _ := NewRequest(http.MethodGet, "/reports/"+name+"/", nil)
	req.Query = opts.Values()

	var out Report
	if err := s.c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ReportsService) Dashboard(ctx context.Context) (*Report, error) {
	return s.Get(ctx, "dashboard", nil)
}

func (s *ReportsService) Revenue(ctx context.Context, opts *ListOptions) (*Report, error) {
	return s.Get(ctx, "revenue", opts)
}

func (s *ReportsService) Invoices(ctx context.Context, opts *ListOptions) (*Report, error) {
	return s.Get(ctx, "invoices", opts)
}

func (s *ReportsService) Clients(ctx context.Context, opts *ListOptions) (*Report, error) {
	return s.Get(ctx, "clients", opts)
}

func (s *ReportsService) Payments(ctx context.Context, opts *ListOptions) (*Report, error) {
	return s.Get(ctx, "payments", opts)
}
