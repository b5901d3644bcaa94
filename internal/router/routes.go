// Package router maps front-end paths to pages and decides, per navigation,
// whether the current session may see the page.
package router

// Well-known paths.
const (
	LoginPath    = "/login"
	HomePath     = "/"
	NotFoundPath = "/404"
)

// Meta declares what a route requires. A nil Permissions or Roles slice is
// not checked; a non-nil empty Roles slice is checked and never matches.
type Meta struct {
	RequiresAuth  bool
	RequiresGuest bool

	// Permissions must all be held.
	Permissions []string

	// Roles lists acceptable roles; any one suffices.
	Roles []string
}

// Route is one entry of the route table. Path is a gorilla/mux template.
type Route struct {
	Path     string
	Name     string
	Meta     Meta
	Redirect string
}

// Routes is the front-end's route table. Order matters: the first matching
// template wins, so literal segments precede {id}.
var Routes = []Route{
	{Path: "/login", Name: "login", Meta: Meta{RequiresGuest: true}},
	{Path: "/", Name: "dashboard", Meta: Meta{RequiresAuth: true}},

	{Path: "/invoices", Name: "invoices", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_invoice"}}},
	{Path: "/invoices/create", Name: "invoice-create", Meta: Meta{RequiresAuth: true, Permissions: []string{"add_invoice"}}},
	{Path: "/invoices/{id}", Name: "invoice-detail", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_invoice"}}},

	{Path: "/clients", Name: "clients", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_client"}}},
	{Path: "/clients/create", Name: "client-create", Meta: Meta{RequiresAuth: true, Permissions: []string{"add_client"}}},
	{Path: "/clients/{id}", Name: "client-detail", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_client"}}},

	{Path: "/payments", Name: "payments", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_payment"}}},
	{Path: "/payments/{id}", Name: "payment-detail", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_payment"}}},

	{Path: "/reports", Name: "reports", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_reports"}}},

	{Path: "/users", Name: "users", Meta: Meta{RequiresAuth: true, Permissions: []string{"view_user"}, Roles: []string{"admin"}}},
	{Path: "/users/create", Name: "user-create", Meta: Meta{RequiresAuth: true, Permissions: []string{"add_user"}, Roles: []string{"admin"}}},

	{Path: "/profile", Name: "profile", Meta: Meta{RequiresAuth: true}},
	{Path: "/settings", Name: "settings", Meta: Meta{RequiresAuth: true, Roles: []string{"admin"}}},

	{Path: "/404", Name: "not-found"},
	{Path: "/{path:.*}", Redirect: NotFoundPath},
}
