// Package app wires the modelmixer subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds telemetry, the mixer,
// the HTTP routes and the optional config watcher, Run serves HTTP until
// the context ends, and Shutdown tears everything down in order.
//
// For testing, inject a listener and a provider caller via functional
// options (WithListener, WithCaller).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/modelmixer/internal/api"
	"github.com/MrWong99/modelmixer/internal/config"
	"github.com/MrWong99/modelmixer/internal/health"
	"github.com/MrWong99/modelmixer/internal/mcptools"
	"github.com/MrWong99/modelmixer/internal/observe"
	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// shutdownTimeout bounds the graceful shutdown started when Run's context
// ends.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes of a modelmixer server.
type App struct {
	logger     *slog.Logger
	level      *slog.LevelVar
	version    string
	configPath string
	caller     mixer.Caller
	listener   net.Listener

	telemetry *observe.Telemetry
	metrics   *observe.Metrics
	mixer     *mixer.Mixer
	server    *http.Server
	watcher   *config.Watcher

	mu  sync.Mutex
	cfg *config.Config

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce    sync.Once
	shutdownErr error
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger and the level variable that hot reload
// adjusts. Default: [slog.Default] and a private level.
func WithLogger(l *slog.Logger, level *slog.LevelVar) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
		if level != nil {
			a.level = level
		}
	}
}

// WithVersion sets the version reported in telemetry and over MCP.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithConfigPath enables hot reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithCaller replaces the HTTP caller the mixer uses to reach providers.
func WithCaller(c mixer.Caller) Option {
	return func(a *App) { a.caller = c }
}

// WithListener makes Run serve on ln instead of listening on
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. Nothing is served until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		logger:  slog.Default(),
		level:   new(slog.LevelVar),
		version: "dev",
		cfg:     cfg,
	}
	for _, o := range opts {
		o(a)
	}

	if lvl, err := observe.ParseLevel(string(cfg.Server.LogLevel)); err == nil {
		a.level.Set(lvl)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Mixer ─────────────────────────────────────────────────────────
	a.initMixer()

	// ── 3. HTTP routes ───────────────────────────────────────────────────
	a.initServer()

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.ApplyConfig)
		if err != nil {
			_ = a.Shutdown(ctx)
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
		a.closers = append([]func(context.Context) error{func(context.Context) error {
			w.Stop()
			return nil
		}}, a.closers...)
	}

	a.logger.Info("app initialised",
		"providers", len(cfg.Mixer.Providers),
		"strategy", cfg.Mixer.Strategy.Type,
		"mixer_enabled", cfg.Mixer.Enabled,
		"mcp", cfg.MCP.Enabled,
	)
	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: a.version,
	})
	if err != nil {
		return err
	}
	a.telemetry = tel
	a.closers = append(a.closers, tel.Shutdown)

	a.metrics, err = observe.NewMetrics(tel.MeterProvider)
	return err
}

func (a *App) initMixer() {
	opts := []mixer.Option{
		mixer.WithObserver(a.metrics),
		mixer.WithLogger(a.logger.With("component", "mixer")),
	}
	if a.caller != nil {
		opts = append(opts, mixer.WithCaller(a.caller))
	}
	a.mixer = mixer.New(a.cfg.Mixer, opts...)
	// The mixer stops before telemetry so late attempts are still recorded.
	a.closers = append([]func(context.Context) error{func(context.Context) error {
		a.mixer.Close()
		return nil
	}}, a.closers...)
}

func (a *App) initServer() {
	mux := http.NewServeMux()

	health.New(health.Ready("mixer", a.mixer)).Register(mux)
	api.New(a.mixer,
		api.WithLogger(a.logger.With("component", "api")),
		api.WithStatsInterval(a.cfg.Server.StatsPushInterval),
	).Register(mux)
	mux.Handle("GET "+a.cfg.Telemetry.MetricsPath, a.telemetry.Handler)

	if a.cfg.MCP.Enabled {
		mux.Handle(a.cfg.MCP.Path, mcptools.Handler(mcptools.NewServer(a.mixer, a.version)))
	}

	// Hijacked connections (stats streams) are not tracked by Shutdown; they
	// end when the base context is cancelled.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics, a.logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	a.server.RegisterOnShutdown(cancelBase)
	// The server drains first.
	a.closers = append([]func(context.Context) error{a.server.Shutdown}, a.closers...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Mixer returns the mixer served by a.
func (a *App) Mixer() *mixer.Mixer { return a.mixer }

// Handler returns the root HTTP handler, including middleware.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Config returns the configuration most recently applied.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the server fails, then shuts the
// App down.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.server.Addr); err != nil {
			_ = a.Shutdown(ctx)
			return fmt.Errorf("app: listen: %w", err)
		}
	}
	a.logger.Info("modelmixer listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.Shutdown(sctx)
	})
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig moves the running App from old to new. The log level and the
// mixer section apply immediately; runtime statistics survive for providers
// whose id is kept. Settings that need a restart are logged and ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged {
		lvl, err := observe.ParseLevel(string(d.NewLogLevel))
		if err != nil {
			a.logger.Warn("ignoring log level change", "err", err)
		} else {
			a.level.Set(lvl)
			a.logger.Info("log level changed", "level", lvl)
		}
	}

	if d.MixerChanged {
		a.mixer.UpdateConfig(withLiveStats(new.Mixer, a.mixer.Config()))
		a.logger.Info("mixer config reloaded",
			"strategy", new.Mixer.Strategy.Type,
			"enabled", new.Mixer.Enabled,
			"provider_changes", len(d.ProviderChanges),
		)
		for _, pc := range d.ProviderChanges {
			a.logger.Debug("provider changed", "id", pc.ID, "added", pc.Added, "removed", pc.Removed, "modified", pc.Modified)
		}
	}

	for _, setting := range d.RestartRequired {
		a.logger.Warn("config change requires a restart to take effect", "setting", setting)
	}

	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()
}

// withLiveStats returns a copy of next whose providers carry the runtime
// statistics of the provider with the same id in live.
func withLiveStats(next, live mixer.Config) mixer.Config {
	next = next.Clone()
	for i := range next.Providers {
		p := &next.Providers[i]
		if cur, ok := live.Provider(p.ID); ok {
			p.LastUsed = cur.LastUsed
			p.SuccessCount = cur.SuccessCount
			p.ErrorCount = cur.ErrorCount
			p.AvgResponseTime = cur.AvgResponseTime
		}
	}
	return next
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains the HTTP server, stops the watcher and the health sweep
// and flushes telemetry. Only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		var errs []error
		for _, closer := range a.closers {
			if err := closer(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.shutdownErr = errors.Join(errs...)
		if a.shutdownErr != nil {
			a.logger.Warn("shutdown finished with errors", "err", a.shutdownErr)
			return
		}
		a.logger.Info("shutdown complete")
	})
	return a.shutdownErr
}
