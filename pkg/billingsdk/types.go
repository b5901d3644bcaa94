package billingsdk

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// ============================================================================
// Users & Auth
// ============================================================================

// User roles known to the backend.
const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleClient     = "client"
	RoleViewer     = "viewer"
)

// User is the authenticated user record returned by /auth/me/ and /users/.
type User struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	Company     string   `json:"company,omitempty"`
	Address     string   `json:"address,omitempty"`
	IsActive    bool     `json:"is_active"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Merge overlays the keys present in patch onto a copy of u. Keys absent from
// patch keep their current value; a nil receiver merges onto an empty user.
func (u *User) Merge(patch json.RawMessage) (*User, error) {
	base := map[string]json.RawMessage{}
	if u != nil {
		current, err := json.Marshal(u)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(current, &base); err != nil {
			return nil, err
		}
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("failed to decode profile patch: %w", err)
	}
	for k, v := range overlay {
		base[k] = v
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	var out User
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("failed to decode merged user: %w", err)
	}
	return &out, nil
}

// Credentials are exchanged for tokens at /auth/login/.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    *User  `json:"user"`

	// Tokens is the nested shape some backend versions return.
	Tokens *TokenPair `json:"tokens,omitempty"`
}

// TokenPair is an access/refresh token pair.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// normalize folds the nested token shape into the top-level fields.
func (r *LoginResponse) normalize() {
	if r.Tokens == nil {
		return
	}
	if r.Access == "" {
		r.Access = r.Tokens.Access
	}
	if r.Refresh == "" {
		r.Refresh = r.Tokens.Refresh
	}
}

// RefreshResponse is the body of /auth/refresh/. Refresh is only set when the
// backend rotates refresh tokens.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// PasswordChange is the body of /auth/change-password/.
type PasswordChange struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

// Fields is a partial update (PATCH body).
type Fields map[string]any

// StatusMessage is the {"message": "..."} acknowledgement some actions return.
type StatusMessage struct {
	Message string `json:"message"`
}

// ============================================================================
// Billing resources
// ============================================================================

// Invoice statuses.
const (
	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

// Payment statuses and methods.
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"

	MethodCash         = "cash"
	MethodCheck        = "check"
	MethodBankTransfer = "bank_transfer"
	MethodCreditCard   = "credit_card"
	MethodOnline       = "online"
)

// Amounts are decimal strings as serialised by the backend; the client never
// does arithmetic on them.

// Client is a billed customer.
type Client struct {
	ID                 int64  `json:"id,omitempty"`
	Name               string `json:"name"`
	ClientType         string `json:"client_type,omitempty"`
	ClientCode         string `json:"client_code,omitempty"`
	Email              string `json:"email,omitempty"`
	PhoneNumber        string `json:"phone_number,omitempty"`
	Website            string `json:"website,omitempty"`
	AddressLine1       string `json:"address_line_1,omitempty"`
	AddressLine2       string `json:"address_line_2,omitempty"`
	City               string `json:"city,omitempty"`
	StateProvince      string `json:"state_province,omitempty"`
	PostalCode         string `json:"postal_code,omitempty"`
	Country            string `json:"country,omitempty"`
	TaxID              string `json:"tax_id,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	PaymentTerms       int    `json:"payment_terms,omitempty"`
	CreditLimit        string `json:"credit_limit,omitempty"`
	Currency           string `json:"currency,omitempty"`
	IsActive           bool   `json:"is_active"`
	Notes              string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Invoice is a bill issued to a client.
type Invoice struct {
	ID                 int64  `json:"id,omitempty"`
	InvoiceNumber      string `json:"invoice_number,omitempty"`
	Client             int64  `json:"client"`
	Status             string `json:"status,omitempty"`
	IssueDate          string `json:"issue_date,omitempty"`
	DueDate            string `json:"due_date,omitempty"`
	Subtotal           string `json:"subtotal,omitempty"`
	TaxRate            string `json:"tax_rate,omitempty"`
	TaxAmount          string `json:"tax_amount,omitempty"`
	TotalAmount        string `json:"total_amount,omitempty"`
	Notes              string `json:"notes,omitempty"`
	TermsAndConditions string `json:"terms_and_conditions,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Payment is money received against an invoice.
type Payment struct {
	ID               int64  `json:"id,omitempty"`
	Invoice          int64  `json:"invoice"`
	PaymentReference string `json:"payment_reference"`
	Amount           string `json:"amount"`
	PaymentDate      string `json:"payment_date"`
	PaymentMethod    string `json:"payment_method"`
	Status           string `json:"status,omitempty"`
	Notes            string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// EmailRequest is the body of /invoices/{id}/send-email/.
type EmailRequest struct {
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// ============================================================================
// Listing
// ============================================================================

// Page is the paginated list envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// HasNext reports whether another page follows.
func (p *Page[T]) HasNext() bool { return p.Next != nil && *p.Next != "" }

// ListOptions are the list query parameters understood by every collection.
type ListOptions struct {
	Page     int
	PageSize int
	Search   string
	Ordering string
	Filters  map[string]string
}

// Values encodes the options as query parameters.
func (o *ListOptions) Values() url.Values {
	v := url.Values{}
	if o == nil {
		return v
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	if o.Ordering != "" {
		v.Set("ordering", o.Ordering)
	}
	for k, val := range o.Filters {
		v.Set(k, val)
	}
	return v
}

// ============================================================================
// Reports
// ============================================================================

// Report is an aggregate view. Its shape is backend-defined, so it is kept
// as raw JSON and read through gjson paths.
type Report struct {
	raw json.RawMessage
}

// UnmarshalJSON keeps a copy of the raw document.
func (r *Report) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid report document")
	}
	r.raw = append(r.raw[:0], data...)
	return nil
}

// MarshalJSON returns the raw document.
func (r Report) MarshalJSON() ([]byte, error) {
	if r.raw == nil {
		return []byte("null"), nil
	}
	return r.raw, nil
}

// Get reads a value by gjson path, e.g. "totals.revenue" or "monthly.#.amount".
func (r Report) Get(path string) gjson.Result {
	return gjson.GetBytes(r.raw, path)
}

// Raw returns the undecoded document.
func (r Report) Raw() json.RawMessage { return r.raw }
