package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/invoicer/internal/router"
	"github.com/aussiebroadwan/invoicer/internal/session"
	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/aussiebroadwan/invoicer/internal/telemetry"
	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
	"github.com/aussiebroadwan/invoicer/pkg/httpx"
	"github.com/aussiebroadwan/invoicer/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the console front-end with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	in       *bufio.Reader
	inFile   *os.File // set when input is a terminal-capable file
	out      io.Writer
	prompter prompter
	jsonMode bool

	// Core dependencies
	metrics *telemetry.Metrics
	kv      storage.KV
	client  *billingsdk.SDKClient
	session *session.Store
	router  *router.Router

	metricsServer *http.Server
}

// Option customises an Application, mostly for tests.
type Option func(*Application)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(app *Application) {
		app.in = bufio.NewReader(in)
		app.inFile, _ = in.(*os.File)
		app.out = out
	}
}

// WithStorage uses kv instead of opening the configured driver.
func WithStorage(kv storage.KV) Option {
	return func(app *Application) { app.kv = kv }
}

// WithLogger replaces the configured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(app *Application) { app.logger = logger }
}

// New creates an Application with all dependencies initialised. Nothing
// talks to the billing API until a command runs.
func New(cfg Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &Application{
		cfg:     cfg,
		in:      bufio.NewReader(os.Stdin),
		inFile:  os.Stdin,
		out:     os.Stdout,
		metrics: telemetry.New(),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.prompter = stdPrompter{app: app}
	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "invoicer",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if app.kv == nil {
		kv, err := openStorage(ctx, cfg, app.logger)
		if err != nil {
			return nil, err
		}
		app.kv = kv
	}

	app.initClient()

	if err := app.initSession(ctx); err != nil {
		_ = app.kv.Close()
		return nil, err
	}
	return app, nil
}

// initClient builds the API client: request logging over outbound rate
// limiting over the default transport.
func (app *Application) initClient() {
	transport := &slogx.Transport{
		Base:   httpx.NewRateLimitedTransport(http.DefaultTransport, app.cfg.RateLimit),
		Logger: app.logger,
	}

	client := billingsdk.NewSDKClient(app.cfg.APIURL)
	client.HTTPClient = &http.Client{
		Timeout:   app.cfg.Timeout,
		Transport: transport,
	}
	client.Observer = app.metrics
	client.SetHeader("User-Agent", "invoicer/"+BuildVersion)

	app.client = client
}

// initSession wires the session store, the router and the client together.
func (app *Application) initSession(ctx context.Context) error {
	store, err := session.New(ctx, app.client, storage.NewTokenStore(app.kv), session.Options{
		Logger:   app.logger,
		Observer: app.metrics,
	})
	if err != nil {
		return err
	}

	rt, err := router.New(store, router.Options{
		Logger:   app.logger,
		Observer: app.metrics,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to build router: %w", err)
	}

	app.client.SetRefresher(store)
	store.SetNavigator(rt)

	app.session = store
	app.router = rt
	return nil
}

// Run executes one command line and blocks until it finishes or a shutdown
// signal arrives.
func (app *Application) Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := app.Execute(ctx, args)

	if ctx.Err() != nil {
		app.logger.Info("shutdown signal received")
	}
	if err := app.Shutdown(); err != nil {
		return errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	return runErr
}

// Execute restores the persisted session, lands on the home page and runs
// the command named by args[0].
func (app *Application) Execute(ctx context.Context, args []string) error {
	ctx = slogx.WithContext(ctx, app.logger)
	args = app.parseGlobalFlags(args)

	select {
	case <-app.session.Initialize(ctx):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := app.router.Replace(router.HomePath); err != nil {
		return err
	}

	if len(args) == 0 {
		app.printUsage()
		return nil
	}
	return app.dispatch(ctx, args)
}

// parseGlobalFlags strips flags accepted before any command.
func (app *Application) parseGlobalFlags(args []string) []string {
	rest := make([]string, 0, len(args))
	for _, arg := range args {
		switch arg {
		case "--json":
			app.jsonMode = true
		default:
			rest = append(rest, arg)
		}
	}
	return rest
}

// Shutdown stops background work and releases storage.
func (app *Application) Shutdown() error {
	app.logger.Debug("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if app.metricsServer != nil {
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error("graceful metrics shutdown failed", "error", err)
			_ = app.metricsServer.Close()
		}
	}

	app.session.Close()

	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing storage", "error", err)
		return err
	}
	return nil
}

// startMetrics serves /metrics when an address is configured.
func (app *Application) startMetrics() {
	if app.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())

	srv := &http.Server{
		Addr:              app.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	app.metricsServer = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("metrics server failed", "error", err)
		}
	}()
	app.logger.Info("serving metrics", "addr", app.cfg.MetricsAddr)
}
