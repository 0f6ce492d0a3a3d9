package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/notify"
	"github.com/upb/threatprofile-gateway/profile"
	"github.com/upb/threatprofile-gateway/tokens"
)

// DefaultRevalidateInterval is how often a mounted guard re-checks the tokens
const DefaultRevalidateInterval = 5 * time.Minute

// Metrics records guard outcomes
type Metrics interface {
	RecordGuardDecision(route, state string)
	RecordTokenCleanup()
}

// Config holds guard settings shared by every mount
type Config struct {
	Targets            Targets
	RevalidateInterval time.Duration
	ValidatorOptions   []tokens.Option
}

// Guard creates mounts. It holds no per-session state and is safe for concurrent use.
type Guard struct {
	cfg     Config
	logger  *zap.Logger
	metrics Metrics
}

// New creates a guard. Zero config fields fall back to defaults.
func New(cfg Config, logger *zap.Logger, metrics Metrics) *Guard {
	if cfg.Targets == (Targets{}) {
		cfg.Targets = DefaultTargets()
	}
	if cfg.RevalidateInterval <= 0 {
		cfg.RevalidateInterval = DefaultRevalidateInterval
	}
	return &Guard{cfg: cfg, logger: logger, metrics: metrics}
}

// Targets returns the redirect paths in use
func (g *Guard) Targets() Targets {
	return g.cfg.Targets
}

// MountOption configures a single mount
type MountOption func(*Mount)

// WithName labels the mount in logs and metrics
func WithName(name string) MountOption {
	return func(m *Mount) {
		m.name = name
	}
}

// WithNotifier sets where user notifications go. Defaults to the log.
func WithNotifier(n notify.Notifier) MountOption {
	return func(m *Mount) {
		m.notifier = n
	}
}

// WithoutRevalidation skips the periodic re-validation ticker
func WithoutRevalidation() MountOption {
	return func(m *Mount) {
		m.periodic = false
	}
}

// OnRevalidate is called after every periodic re-validation of a live mount
func OnRevalidate(fn func(valid bool)) MountOption {
	return func(m *Mount) {
		m.onRevalidate = fn
	}
}

// OnCleanup is called whenever the mount clears the session's tokens
func OnCleanup(fn func()) MountOption {
	return func(m *Mount) {
		m.onCleanup = fn
	}
}

// Mount is the lifetime of one guarded view. Tokens are validated when the
// mount is created and then periodically until Unmount.
type Mount struct {
	guard     *Guard
	route     Route
	store     tokens.Store
	validator *tokens.Validator
	logger    *zap.Logger

	name         string
	notifier     notify.Notifier
	periodic     bool
	onRevalidate func(bool)
	onCleanup    func()

	mu       sync.Mutex
	hydrated bool
	notified bool
	expired  bool
	last     Decision

	inFlight  atomic.Bool
	unmounted atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
}

// Mount starts guarding route over store. The first token validation runs
// before Mount returns.
func (g *Guard) Mount(ctx context.Context, route Route, store tokens.Store, opts ...MountOption) *Mount {
	m := &Mount{
		guard:    g,
		route:    route,
		store:    store,
		name:     "unnamed",
		periodic: true,
		done:     make(chan struct{}),
		last:     Decision{State: Initializing},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = g.logger.With(zap.String("route", m.name))
	if m.notifier == nil {
		m.notifier = notify.NewLog(m.logger)
	}
	m.validator = tokens.NewValidator(store, m.logger, g.cfg.ValidatorOptions...)

	authenticated := store.HasAuthTokens(ctx)
	if authenticated {
		authenticated = m.validate(ctx)
	}

	if !m.periodic || !authenticated {
		close(m.done)
		m.cancel = func() {}
		return m
	}

	tickCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.run(tickCtx)
	return m
}

func (m *Mount) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.guard.cfg.RevalidateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			valid := m.Revalidate(ctx)
			if m.unmounted.Load() {
				return
			}
			if m.onRevalidate != nil {
				m.onRevalidate(valid)
			}
			if !valid {
				// Not authenticated anymore; the ticker is released until a new mount.
				return
			}
		}
	}
}

// Revalidate checks the tokens now, clearing both when either is invalid.
// It returns false only when a validation ran and failed. A call made while
// another validation is in flight returns true without validating.
func (m *Mount) Revalidate(ctx context.Context) bool {
	if !m.inFlight.CompareAndSwap(false, true) {
		return true
	}
	defer m.inFlight.Store(false)
	return m.validate(ctx)
}

func (m *Mount) validate(ctx context.Context) bool {
	if m.validator.ValidateAndCleanup(ctx) {
		return true
	}
	if m.unmounted.Load() {
		return false
	}

	m.logger.Info("session tokens invalid, cleared")
	m.mu.Lock()
	m.expired = true
	m.mu.Unlock()
	if m.onCleanup != nil {
		m.onCleanup()
	}
	return false
}

// Evaluate decides the route's state for the given profile snapshot and
// performs the associated side effects: clearing tokens when the profile
// fetch failed, and at most one notification per loading cycle.
func (m *Mount) Evaluate(ctx context.Context, snap profile.Snapshot) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unmounted.Load() {
		return m.last
	}

	// The caller went away; the session itself is fine.
	if snap.Error != nil && (ctx.Err() != nil || errors.Is(snap.Error, context.Canceled)) {
		m.logger.Debug("profile fetch abandoned by caller", zap.Error(snap.Error))
		return m.last
	}

	notified := false
	if snap.Error != nil {
		m.logger.Warn("profile fetch failed, clearing session", zap.Error(snap.Error))
		if err := m.store.RemoveAuthTokens(ctx); err != nil {
			m.logger.Error("failed to remove auth tokens", zap.Error(err))
		} else if m.guard.metrics != nil {
			m.guard.metrics.RecordTokenCleanup()
		}
		if m.onCleanup != nil {
			m.onCleanup()
		}
		if !m.notified {
			m.notifier.Error(ctx, MessageProfileFetchFailed)
			m.notified = true
			notified = true
		}
		snap.Data = nil
	}

	if snap.Settled() {
		m.hydrated = true
	}

	state := Decide(Inputs{
		Route:         m.route,
		TokensPresent: m.store.HasAuthTokens(ctx),
		Profile:       snap.Data,
		Loading:       snap.IsLoading,
		Hydrated:      m.hydrated,
	})

	if state.IsLoading() {
		m.notified = false
	}

	decision := Decision{
		State:    state,
		Redirect: m.guard.cfg.Targets.For(state),
		Message:  m.message(state),
		Notified: notified,
	}
	if snap.Error != nil && state.IsRedirect() {
		decision.Message = MessageProfileFetchFailed
	}
	if state.notifies() && !m.notified {
		m.notifier.Error(ctx, decision.Message)
		m.notified = true
		decision.Notified = true
	}

	if decision.State != m.last.State {
		m.logger.Debug("guard state changed",
			zap.Stringer("from", m.last.State),
			zap.Stringer("to", decision.State),
		)
	}
	if m.guard.metrics != nil {
		m.guard.metrics.RecordGuardDecision(m.name, state.String())
	}

	m.last = decision
	return decision
}

func (m *Mount) message(s State) string {
	switch s {
	case RedirectUnauthenticated:
		if m.expired {
			return MessageSessionExpired
		}
		return MessageUnauthenticated
	case RedirectInactive:
		return MessageInactive
	case RedirectForbidden:
		return MessageForbidden
	default:
		return ""
	}
}

// Last returns the most recent decision
func (m *Mount) Last() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Done is closed once the re-validation ticker has stopped
func (m *Mount) Done() <-chan struct{} {
	return m.done
}

// Unmount stops re-validation and discards the result of any validation
// still in flight. It is safe to call more than once.
func (m *Mount) Unmount() {
	m.stopOnce.Do(func() {
		m.unmounted.Store(true)
		m.cancel()
		<-m.done
	})
}
