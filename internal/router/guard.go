package router

// Authorizer answers the guard's questions about the current session.
// *session.Store implements it.
type Authorizer interface {
	IsAuthenticated() bool
	HasPermissions(tags ...string) bool
	HasRole(roles ...string) bool
}

// Decision is the guard's verdict. An empty Redirect means proceed.
type Decision struct {
	Redirect string
}

func (d Decision) Proceed() bool { return d.Redirect == "" }

// Guard decides whether the session may enter to. The first failing check
// wins: authentication, then guest-only, then permissions, then roles.
func Guard(auth Authorizer, to Route) Decision {
	meta := to.Meta
	authed := auth.IsAuthenticated()

	switch {
	case meta.RequiresAuth && !authed:
		return Decision{Redirect: LoginPath}
	case meta.RequiresGuest && authed:
		return Decision{Redirect: HomePath}
	case meta.Permissions != nil && !auth.HasPermissions(meta.Permissions...):
		return Decision{Redirect: NotFoundPath}
	case meta.Roles != nil && !auth.HasRole(meta.Roles...):
		return Decision{Redirect: NotFoundPath}
	}
	return Decision{}
}
