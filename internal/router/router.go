package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// MaxRedirects bounds the redirects followed by one navigation.
const MaxRedirects = 10

var (
	ErrRedirectLoop = errors.New("router: too many redirects")
	ErrNoHistory    = errors.New("router: no history entry in that direction")
	ErrNoRoute      = errors.New("router: no route matches")
)

// Kind is how a navigation was started.
type Kind string

const (
	KindPush    Kind = "push"
	KindReplace Kind = "replace"
	KindBack    Kind = "back"
	KindForward Kind = "forward"
)

// Location is a resolved destination.
type Location struct {
	// Path is the normalised path, without query.
	Path   string
	Query  url.Values
	Name   string
	Params map[string]string
	Route  Route
}

// FullPath is the path with its query string.
func (l Location) FullPath() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

// Navigation describes a completed navigation.
type Navigation struct {
	Kind Kind
	From Location
	To   Location

	// Requested is the path asked for, before redirects.
	Requested string
	// Redirected is set when the guard or a redirect route changed the
	// destination.
	Redirected bool

	// Scroll is the vertical position to restore: the saved one when going
	// back or forward to an untouched entry, otherwise top.
	Scroll int
}

// Observer counts navigations, e.g. for metrics.
type Observer interface {
	ObserveNavigation(route string, redirected bool)
}

type Options struct {
	// Routes defaults to the package route table.
	Routes   []Route
	Logger   *slog.Logger
	Observer Observer
}

type entry struct {
	loc    Location
	scroll int
}

// Router is a history navigator that runs Guard before every navigation.
type Router struct {
	auth     Authorizer
	routes   []Route
	mux      *mux.Router
	byPath   map[string]Route
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	history []entry
	index   int

	listenersMu sync.Mutex
	listeners   map[int]func(Navigation)
	nextID      int
}

func New(auth Authorizer, opts Options) (*Router, error) {
	routes := opts.Routes
	if routes == nil {
		routes = Routes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := mux.NewRouter()
	byPath := make(map[string]Route, len(routes))
	for _, rt := range routes {
		tmpl := lowerLiterals(rt.Path)
		route := m.Path(tmpl)
		if err := route.GetError(); err != nil {
			return nil, fmt.Errorf("invalid route %q: %w", rt.Path, err)
		}
		if rt.Name != "" {
			route.Name(rt.Name)
		}
		byPath[tmpl] = rt
	}

	return &Router{
		auth:      auth,
		routes:    routes,
		mux:       m,
		byPath:    byPath,
		logger:    logger.With("component", "router"),
		observer:  opts.Observer,
		index:     -1,
		listeners: make(map[int]func(Navigation)),
	}, nil
}

// Routes returns the route table in match order.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Resolve matches raw against the route table without running the guard or
// following redirects.
func (r *Router) Resolve(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid path %q: %w", raw, err)
	}

	p := "/" + strings.Trim(u.Path, "/")

	// Matching ignores case; parameters keep it.
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: strings.ToLower(p)}}
	var match mux.RouteMatch
	if !r.mux.Match(req, &match) || match.Route == nil {
		return Location{}, fmt.Errorf("%w: %s", ErrNoRoute, p)
	}

	tmpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return Location{}, err
	}
	rt := r.byPath[tmpl]

	var params map[string]string
	if rt.Redirect == "" {
		params = paramsAsTyped(tmpl, p, match.Vars)
	}

	return Location{
		Path:   p,
		Query:  u.Query(),
		Name:   rt.Name,
		Params: params,
		Route:  rt,
	}, nil
}

// lowerLiterals lowercases the literal segments of a path template.
func lowerLiterals(tmpl string) string {
	segs := strings.Split(tmpl, "/")
	for i, seg := range segs {
		if !strings.HasPrefix(seg, "{") {
			segs[i] = strings.ToLower(seg)
		}
	}
	return strings.Join(segs, "/")
}

// paramsAsTyped re-reads the {name} segments of tmpl from path so their
// values keep the caller's case.
func paramsAsTyped(tmpl, path string, vars map[string]string) map[string]string {
	tsegs := strings.Split(tmpl, "/")
	psegs := strings.Split(path, "/")
	if len(tsegs) != len(psegs) {
		return vars
	}

	params := make(map[string]string, len(vars))
	for i, seg := range tsegs {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name, _, _ := strings.Cut(seg[1:len(seg)-1], ":")
		params[name] = psegs[i]
	}
	return params
}

// URL builds the path of a named route.
func (r *Router) URL(name string, pairs ...string) (string, error) {
	route := r.mux.Get(name)
	if route == nil {
		return "", fmt.Errorf("%w: %s", ErrNoRoute, name)
	}
	u, err := route.URLPath(pairs...)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

// resolveGuarded resolves raw and follows redirect routes and guard
// redirects until a route admits the session.
func (r *Router) resolveGuarded(raw string) (Location, bool, error) {
	target := raw
	redirected := false

	for range MaxRedirects + 1 {
		loc, err := r.Resolve(target)
		if err != nil {
			return Location{}, false, err
		}

		if loc.Route.Redirect != "" {
			target = loc.Route.Redirect
			redirected = true
			continue
		}

		decision := Guard(r.auth, loc.Route)
		if decision.Proceed() {
			return loc, redirected, nil
		}

		r.logger.Debug("navigation redirected", "to", loc.Path, "redirect", decision.Redirect)
		target = decision.Redirect
		redirected = true
	}
	return Location{}, false, fmt.Errorf("%w: %s", ErrRedirectLoop, raw)
}

// Push navigates to path, adding a history entry. Navigating to the current
// location is a no-op.
func (r *Router) Push(path string) error {
	_, err := r.Navigate(path, KindPush)
	return err
}

// Replace navigates to path, replacing the current history entry.
func (r *Router) Replace(path string) error {
	_, err := r.Navigate(path, KindReplace)
	return err
}

// Navigate is Push or Replace returning the completed navigation.
func (r *Router) Navigate(path string, kind Kind) (Navigation, error) {
	if kind != KindPush && kind != KindReplace {
		return Navigation{}, fmt.Errorf("router: navigate does not handle %q", kind)
	}

	to, redirected, err := r.resolveGuarded(path)
	if err != nil {
		return Navigation{}, err
	}

	r.mu.Lock()
	from, hasFrom := r.current()
	if hasFrom && from.FullPath() == to.FullPath() {
		r.mu.Unlock()
		return Navigation{Kind: kind, From: from, To: to, Requested: path, Redirected: redirected}, nil
	}

	if kind == KindReplace && hasFrom {
		r.history[r.index] = entry{loc: to}
	} else {
		r.history = append(r.history[:r.index+1], entry{loc: to})
		r.index = len(r.history) - 1
	}
	r.mu.Unlock()

	nav := Navigation{Kind: kind, From: from, To: to, Requested: path, Redirected: redirected}
	r.emit(nav)
	return nav, nil
}

// Back moves one entry back in history.
func (r *Router) Back() (Navigation, error) { return r.step(-1, KindBack) }

// Forward moves one entry forward in history.
func (r *Router) Forward() (Navigation, error) { return r.step(1, KindForward) }

// step re-runs the guard on the neighbouring entry. When the guard now
// sends the session elsewhere, the redirect replaces that entry.
func (r *Router) step(delta int, kind Kind) (Navigation, error) {
	r.mu.Lock()
	target := r.index + delta
	if r.index < 0 || target < 0 || target >= len(r.history) {
		r.mu.Unlock()
		return Navigation{}, ErrNoHistory
	}
	from := r.history[r.index].loc
	want := r.history[target]
	r.mu.Unlock()

	to, redirected, err := r.resolveGuarded(want.loc.FullPath())
	if err != nil {
		return Navigation{}, err
	}

	scroll := want.scroll
	if redirected {
		scroll = 0
	}

	r.mu.Lock()
	if target >= len(r.history) {
		r.mu.Unlock()
		return Navigation{}, ErrNoHistory
	}
	r.index = target
	if redirected {
		r.history[target] = entry{loc: to}
	}
	r.mu.Unlock()

	nav := Navigation{
		Kind:       kind,
		From:       from,
		To:         to,
		Requested:  want.loc.FullPath(),
		Redirected: redirected,
		Scroll:     scroll,
	}
	r.emit(nav)
	return nav, nil
}

// SaveScroll records the scroll position of the current entry, restored
// when the entry is revisited with Back or Forward.
func (r *Router) SaveScroll(y int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index >= 0 {
		r.history[r.index].scroll = y
	}
}

// Current returns the current location.
func (r *Router) Current() (Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current()
}

func (r *Router) current() (Location, bool) {
	if r.index < 0 {
		return Location{}, false
	}
	return r.history[r.index].loc, true
}

// History returns the visited paths and the index of the current one.
func (r *Router) History() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, len(r.history))
	for i, e := range r.history {
		paths[i] = e.loc.FullPath()
	}
	return paths, r.index
}

// OnNavigate registers fn to receive every completed navigation.
func (r *Router) OnNavigate(fn func(Navigation)) (unsubscribe func()) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	return func() {
		r.listenersMu.Lock()
		defer r.listenersMu.Unlock()
		delete(r.listeners, id)
	}
}

func (r *Router) emit(nav Navigation) {
	if r.observer != nil {
		r.observer.ObserveNavigation(nav.To.Name, nav.Redirected)
	}
	r.logger.Debug("navigated", "kind", nav.Kind, "to", nav.To.FullPath(), "redirected", nav.Redirected)

	r.listenersMu.Lock()
	fns := make([]func(Navigation), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.listenersMu.Unlock()

	for _, fn := range fns {
		fn(nav)
	}
}
