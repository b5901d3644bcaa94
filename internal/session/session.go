// Package session holds the signed-in user and their tokens.
//
// A Store is the single owner of the session state. It writes through to
// persisted storage on every change, keeps the API client's default bearer
// header in step, refreshes the access token when the client asks, and
// sends the navigator to the login page when the session ends.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
)

// LoginPath is where the navigator is sent when the session ends.
const LoginPath = "/login"

var ErrNoRefreshToken = errors.New("session: no refresh token available")

// API is the part of the billing client the store drives.
// *billingsdk.SDKClient implements it.
type API interface {
	Login(ctx context.Context, creds billingsdk.Credentials) (*billingsdk.LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*billingsdk.RefreshResponse, error)
	Me(ctx context.Context) (*billingsdk.User, error)
	UpdateProfile(ctx context.Context, fields billingsdk.Fields) (json.RawMessage, error)
	ChangePassword(ctx context.Context, change billingsdk.PasswordChange) (*billingsdk.StatusMessage, error)

	SetBearerToken(token string)
	ClearBearerToken()
}

// Navigator moves the front-end to another page. *router.Router implements it.
type Navigator interface {
	Push(path string) error
}

// Observer counts session events, e.g. for metrics.
type Observer interface {
	ObserveSessionEvent(event string)
}

// Session events reported to the Observer and logged under "event".
const (
	EventLogin         = "login"
	EventLoginFailed   = "login_failed"
	EventLogout        = "logout"
	EventRefresh       = "refresh"
	EventRefreshFailed = "refresh_failed"
	EventUserFetched   = "user_fetched"
	EventFetchFailed   = "fetch_failed"
	EventSync          = "sync"
)

// Result reports the outcome of an operation whose failure is recoverable.
type Result struct {
	OK      bool
	Error   string
	Message string
}

type Options struct {
	Logger    *slog.Logger
	Observer  Observer
	Navigator Navigator
}

type Store struct {
	api    API
	tokens *storage.TokenStore
	logger *slog.Logger
	obs    Observer

	mu    sync.RWMutex
	state Snapshot
	nav   Navigator

	// commitMu orders token changes with Sync: persisted storage and
	// memory change together under it, storage first.
	commitMu sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	refreshGroup singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a store hydrated with the persisted tokens. The user is not
// loaded until Initialize or Login.
func New(ctx context.Context, api API, tokens *storage.TokenStore, opts Options) (*Store, error) {
	persisted, err := tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bg, cancel := context.WithCancel(context.Background())

	return &Store{
		api:    api,
		tokens: tokens,
		logger: logger.With("component", "session"),
		obs:    opts.Observer,
		nav:    opts.Navigator,
		state: Snapshot{
			AccessToken:  persisted.Access,
			RefreshToken: persisted.Refresh,
		},
		subs:   make(map[int]func(Snapshot)),
		ctx:    bg,
		cancel: cancel,
	}, nil
}

// SetNavigator attaches the navigator after construction, for when the
// navigator itself needs the store.
func (s *Store) SetNavigator(nav Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav = nav
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) IsAuthenticated() bool              { return s.Snapshot().IsAuthenticated() }
func (s *Store) Role() string                       { return s.Snapshot().Role() }
func (s *Store) Permissions() []string              { return s.Snapshot().Permissions() }
func (s *Store) HasPermission(tag string) bool      { return s.Snapshot().HasPermission(tag) }
func (s *Store) HasPermissions(tags ...string) bool { return s.Snapshot().HasPermissions(tags...) }
func (s *Store) HasRole(roles ...string) bool       { return s.Snapshot().HasRole(roles...) }

// Subscribe registers fn to receive every new snapshot. Callbacks run on the
// goroutine that made the change, outside the store's locks.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

// update applies fn to the state and publishes the result.
func (s *Store) update(fn func(st *Snapshot)) Snapshot {
	s.mu.Lock()
	fn(&s.state)
	s.state.Version++
	snap := s.state
	s.mu.Unlock()

	s.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		fns = append(fns, sub)
	}
	s.subsMu.Unlock()

	for _, sub := range fns {
		sub(snap)
	}
	return snap
}

func (s *Store) navigator() Navigator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nav
}

func (s *Store) navigateToLogin() {
	nav := s.navigator()
	if nav == nil {
		return
	}
	if err := nav.Push(LoginPath); err != nil {
		s.logger.Warn("failed to navigate to login", "err", err)
	}
}

func (s *Store) observe(event string) {
	if s.obs != nil {
		s.obs.ObserveSessionEvent(event)
	}
}

// Close cancels background work, waits for it and drops subscribers.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()

	s.subsMu.Lock()
	s.subs = make(map[int]func(Snapshot))
	s.subsMu.Unlock()
}

// goBackground runs fn on a context that ends with ctx or Close, and closes
// the returned channel when fn returns.
func (s *Store) goBackground(ctx context.Context, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})

	bg, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer stop()
		defer cancel()
		fn(bg)
	}()
	return done
}
