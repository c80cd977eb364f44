// Package mixer dispatches a single logical request across a dynamic set of
// HTTP model providers.
//
// A [Mixer] owns a [Config]: an ordered provider list, a [Strategy] and two
// switches. [Mixer.Call] filters the enabled providers, lets the strategy pick
// one (or, for failover, an ordering), performs the attempt through a
// [Caller] and, when allowed, falls back to the remaining providers. Every
// attempt updates the statistics of the provider it targeted. An independent
// health sweep probes enabled providers on a fixed interval.
//
// Attempts inside one call are strictly sequential and a provider is never
// retried within the same call. MaxRetries, RateLimit, MaxConcurrent and
// RetryDelay are accepted configuration that the mixer does not enforce.
//
// All methods are safe for concurrent use.
package mixer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/modelmixer/pkg/mixer"

// Result is a successful call.
type Result struct {
	// ProviderID and ProviderName identify the provider that answered.
	ProviderID   string
	ProviderName string

	// Body is the provider's JSON response, unmodified.
	Body json.RawMessage

	// Attempts counts the providers tried, including the successful one.
	Attempts int
}

// Attempt describes one finished provider attempt for an [Observer].
type Attempt struct {
	ProviderID   string
	ProviderName string
	Kind         Kind
	Probe        bool
	Duration     time.Duration
	Err          error
}

// CallOutcome describes one finished [Mixer.Call] for an [Observer].
type CallOutcome struct {
	Strategy   StrategyType
	ProviderID string
	Attempts   int
	Duration   time.Duration
	Err        error
}

// Observer receives attempt and call notifications. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
	ObserveCall(ctx context.Context, c CallOutcome)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(context.Context, Attempt)   {}
func (nopObserver) ObserveCall(context.Context, CallOutcome) {}

// Option configures a [Mixer].
type Option func(*Mixer)

// WithCaller replaces the default [HTTPCaller].
func WithCaller(c Caller) Option {
	return func(m *Mixer) {
		if c != nil {
			m.caller = c
		}
	}
}

// WithObserver registers an [Observer].
func WithObserver(o Observer) Option {
	return func(m *Mixer) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the logger used for diagnostics. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(m *Mixer) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces time.Now for statistics timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Mixer) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRand replaces the uniform [0, 1) source used by the weighted strategy.
func WithRand(rnd func() float64) Option {
	return func(m *Mixer) {
		if rnd != nil {
			m.rand = rnd
		}
	}
}

// Mixer is the facade over provider selection, execution and fallback.
type Mixer struct {
	caller   Caller
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	rand     func() float64
	tracer   trace.Tracer

	mu     sync.Mutex
	cfg    Config // Providers is always nil; the list lives in reg.
	reg    registry
	cursor int
	health *healthChecker
	closed bool
}

// New creates a Mixer for cfg and starts its health sweep. Call
// [Mixer.Close] to stop the sweep.
func New(cfg Config, opts ...Option) *Mixer {
	m := &Mixer{
		caller:   NewHTTPCaller(nil),
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
		rand:     rand.Float64,
		tracer:   otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(m)
	}

	m.mu.Lock()
	m.setConfigLocked(cfg)
	m.health = m.startHealthLocked()
	m.mu.Unlock()
	return m
}

// setConfigLocked installs a copy of cfg. Must be called with m.mu held.
func (m *Mixer) setConfigLocked(cfg Config) {
	m.reg.replace(slices.Clone(cfg.Providers))
	cfg.Providers = nil
	m.cfg = cfg
}

// Call sends prompt to a provider chosen by the configured strategy.
//
// It fails with an error wrapping [ErrConfiguration] when the mixer is
// disabled or has no enabled provider. Provider failures are returned as
// [*ProviderError]; when several providers were tried the error is an
// [*ExhaustedError] wrapping the provider error the strategy surfaces.
func (m *Mixer) Call(ctx context.Context, prompt string, opts Options) (*Result, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "mixer.Call")
	defer span.End()

	strategy, res, err := m.dispatch(ctx, prompt, opts)

	outcome := CallOutcome{Strategy: strategy, Duration: time.Since(start), Err: err}
	span.SetAttributes(attribute.String("mixer.strategy", string(strategy)))
	if err != nil {
		outcome.Attempts = attemptsOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		outcome.ProviderID = res.ProviderID
		outcome.Attempts = res.Attempts
		span.SetAttributes(
			attribute.String("mixer.provider.id", res.ProviderID),
			attribute.Int("mixer.attempts", res.Attempts),
		)
	}
	m.observer.ObserveCall(ctx, outcome)
	return res, err
}

// dispatch runs the SELECT → EXECUTE → FALLBACK state machine.
func (m *Mixer) dispatch(ctx context.Context, prompt string, opts Options) (StrategyType, *Result, error) {
	m.mu.Lock()
	strategy := m.cfg.Strategy
	if !m.cfg.Enabled {
		m.mu.Unlock()
		return strategy.Type, nil, ErrDisabled
	}
	cands := m.reg.listEnabled()
	if len(cands) == 0 {
		m.mu.Unlock()
		return strategy.Type, nil, ErrNoEnabledProviders
	}
	gen := m.reg.gen

	var first int
	switch strategy.Type {
	case StrategyFailover:
		m.mu.Unlock()
		res, err := m.callFailover(ctx, gen, failoverOrder(cands), prompt, opts)
		return strategy.Type, res, err
	case StrategyRoundRobin:
		first = selectRoundRobin(len(cands), &m.cursor)
	case StrategyWeighted:
		first = selectWeighted(cands, m.rand)
	case StrategyPriority:
		first = selectPriority(cands)
	case StrategyLoadBalance:
		first = selectLoadBalance(cands)
	default:
		first = 0
	}
	m.mu.Unlock()

	res, err := m.callWithFallback(ctx, gen, cands, first, strategy.FallbackEnabled, prompt, opts)
	return strategy.Type, res, err
}

// callFailover tries order front to back and surfaces the last error.
func (m *Mixer) callFailover(ctx context.Context, gen uint64, order []candidate, prompt string, opts Options) (*Result, error) {
	var (
		lastErr  error
		attempts int
	)
	for _, c := range order {
		if attempts > 0 && ctx.Err() != nil {
			break
		}
		attempts++
		body, err := m.attempt(ctx, gen, c, prompt, opts, false)
		if err == nil {
			return newResult(c, body, attempts), nil
		}
		lastErr = err
	}
	if attempts == 1 {
		return nil, lastErr
	}
	return nil, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// callWithFallback tries cands[first]; on failure, and when fallback is
// enabled, tries every other candidate in list order. The first failure is
// the one surfaced when everything fails.
func (m *Mixer) callWithFallback(ctx context.Context, gen uint64, cands []candidate, first int, fallback bool, prompt string, opts Options) (*Result, error) {
	primary := cands[first]
	body, firstErr := m.attempt(ctx, gen, primary, prompt, opts, false)
	if firstErr == nil {
		return newResult(primary, body, 1), nil
	}
	if !fallback {
		return nil, firstErr
	}

	attempts := 1
	for _, c := range cands {
		if c.provider.ID == primary.provider.ID {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		attempts++
		body, err := m.attempt(ctx, gen, c, prompt, opts, false)
		if err == nil {
			return newResult(c, body, attempts), nil
		}
	}
	if attempts == 1 {
		return nil, firstErr
	}
	return nil, &ExhaustedError{Attempts: attempts, Err: firstErr}
}

// attempt performs one call and records its outcome on the provider. The
// LastUsed stamp is written before the call and the response time is
// measured against the stored stamp afterwards.
func (m *Mixer) attempt(ctx context.Context, gen uint64, c candidate, prompt string, opts Options, probe bool) (json.RawMessage, error) {
	ctx, span := m.tracer.Start(ctx, "mixer.attempt", trace.WithAttributes(
		attribute.String("mixer.provider.id", c.provider.ID),
		attribute.String("mixer.provider.kind", string(c.provider.Type)),
		attribute.Bool("mixer.probe", probe),
	))
	defer span.End()

	started := m.now()
	m.mu.Lock()
	if p := m.reg.lookup(gen, c); p != nil {
		p.LastUsed = started.UnixMilli()
	}
	m.mu.Unlock()

	wall := time.Now()
	body, err := m.caller.Call(ctx, c.provider, prompt, opts)
	took := time.Since(wall)
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{ProviderID: c.provider.ID, ProviderName: c.provider.Name, Err: err}
		}
	}
	finished := m.now()

	// A probe cut short by the sweep being stopped says nothing about the
	// provider.
	if probe && err != nil && ctx.Err() != nil {
		return nil, err
	}

	var responseMs float64
	m.mu.Lock()
	logging := m.cfg.Logging
	if p := m.reg.lookup(gen, c); p != nil {
		if err == nil {
			responseMs = float64(finished.UnixMilli() - p.LastUsed)
			p.recordSuccess(responseMs)
		} else {
			p.recordFailure()
		}
	}
	m.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.observer.ObserveAttempt(ctx, Attempt{
		ProviderID:   c.provider.ID,
		ProviderName: c.provider.Name,
		Kind:         c.provider.Type,
		Probe:        probe,
		Duration:     took,
		Err:          err,
	})

	if logging && !probe {
		if err == nil {
			m.logger.Info("provider attempt", "provider", c.provider.Name, "outcome", "success", "response_time_ms", responseMs)
		} else {
			m.logger.Info("provider attempt", "provider", c.provider.Name, "outcome", "error", "response_time_ms", 0, "err", err)
		}
	}
	return body, err
}

// UpdateConfig replaces the whole configuration. The round-robin cursor is
// kept. The health sweep is restarted only when the interval changed.
func (m *Mixer) UpdateConfig(cfg Config) {
	_ = m.modify(func(c *Config) error {
		*c = cfg
		return nil
	})
}

// modify applies fn to a copy of the current configuration and installs the
// result unless fn fails. It restarts the health sweep when the interval
// changed.
func (m *Mixer) modify(fn func(*Config) error) error {
	m.mu.Lock()
	cur := m.cfg
	cur.Providers = slices.Clone(m.reg.providers)
	oldInterval := cur.Strategy.HealthCheckInterval
	if err := fn(&cur); err != nil {
		m.mu.Unlock()
		return err
	}
	m.setConfigLocked(cur)

	var stale *healthChecker
	restart := cur.Strategy.HealthCheckInterval != oldInterval
	if restart && !m.closed {
		stale = m.health
		m.health = m.startHealthLocked()
	}
	m.mu.Unlock()

	// Stopped outside the lock: in-flight probes need it to record stats.
	stale.stop()
	m.logger.Debug("mixer config updated",
		"providers", len(cur.Providers),
		"strategy", cur.Strategy.Type,
		"enabled", cur.Enabled,
		"health_interval_changed", restart)
	return nil
}

// Config returns a deep copy of the current configuration, including live
// statistics.
func (m *Mixer) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.cfg
	cfg.Providers = slices.Clone(m.reg.providers)
	return cfg
}

// ExportConfig renders the current configuration as pretty-printed JSON.
func (m *Mixer) ExportConfig() ([]byte, error) {
	return MarshalConfig(m.Config())
}

// ImportConfig parses data and replaces the whole configuration with it. A
// malformed document returns an [*ImportError] and leaves the current
// configuration untouched.
func (m *Mixer) ImportConfig(data []byte) error {
	cfg, err := UnmarshalConfig(data)
	if err != nil {
		m.logger.Warn("mixer config import rejected", "err", err)
		return err
	}
	m.UpdateConfig(cfg)
	return nil
}

// ResetStats zeroes the runtime statistics of every provider.
func (m *Mixer) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reg.providers {
		m.reg.providers[i].resetStats()
	}
}

// Ready reports whether Call could currently dispatch. It returns the same
// configuration errors Call would.
func (m *Mixer) Ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.Enabled {
		return ErrDisabled
	}
	if len(m.reg.listEnabled()) == 0 {
		return ErrNoEnabledProviders
	}
	return nil
}

// Close stops the health sweep and waits for it to exit. Calls keep working
// after Close; only the background sweep is gone. Close is idempotent.
func (m *Mixer) Close() {
	m.mu.Lock()
	hc := m.health
	m.health = nil
	m.closed = true
	m.mu.Unlock()
	hc.stop()
}

func newResult(c candidate, body json.RawMessage, attempts int) *Result {
	return &Result{
		ProviderID:   c.provider.ID,
		ProviderName: c.provider.Name,
		Body:         body,
		Attempts:     attempts,
	}
}

// attemptsOf derives the attempt count from a Call error.
func attemptsOf(err error) int {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return 1
	}
	return 0
}
