package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry holds plugins and dispatches hooks. Implemented hook interfaces
// are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onProducerRegistered    []OnProducerRegistered
	onStakeSlashed          []OnStakeSlashed
	onProducerStatusChanged []OnProducerStatusChanged
	onReputationChanged     []OnReputationChanged
	onEventScheduled        []OnEventScheduled
	onResultSubmitted       []OnResultSubmitted
	onResultFinalized       []OnResultFinalized
	onResultInvalidated     []OnResultInvalidated
	onDisputeCreated        []OnDisputeCreated
	onDisputeResolved       []OnDisputeResolved
	onBalanceDeposited      []OnBalanceDeposited
	onQueryCharged          []OnQueryCharged
	onWithdrawal            []OnWithdrawal
	onPoolPayout            []OnPoolPayout
	onParamsUpdated         []OnParamsUpdated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default(), timeout: DefaultHookTimeout}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

func collect[T any](p Plugin, list []T) []T {
	if v, ok := p.(T); ok {
		return append(list, v)
	}
	return list
}

// Register adds a plugin. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	r.onInit = collect(p, r.onInit)
	r.onShutdown = collect(p, r.onShutdown)
	r.onProducerRegistered = collect(p, r.onProducerRegistered)
	r.onStakeSlashed = collect(p, r.onStakeSlashed)
	r.onProducerStatusChanged = collect(p, r.onProducerStatusChanged)
	r.onReputationChanged = collect(p, r.onReputationChanged)
	r.onEventScheduled = collect(p, r.onEventScheduled)
	r.onResultSubmitted = collect(p, r.onResultSubmitted)
	r.onResultFinalized = collect(p, r.onResultFinalized)
	r.onResultInvalidated = collect(p, r.onResultInvalidated)
	r.onDisputeCreated = collect(p, r.onDisputeCreated)
	r.onDisputeResolved = collect(p, r.onDisputeResolved)
	r.onBalanceDeposited = collect(p, r.onBalanceDeposited)
	r.onQueryCharged = collect(p, r.onQueryCharged)
	r.onWithdrawal = collect(p, r.onWithdrawal)
	r.onPoolPayout = collect(p, r.onPoolPayout)
	r.onParamsUpdated = collect(p, r.onParamsUpdated)

	r.logger.Debug("plugin registered", "plugin", p.Name())
	return nil
}

// Get returns the plugin registered under name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// emit calls fn for every hook implementation, logging failures.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, list []T, fn func(T) error) {
	r.mu.RLock()
	hooks := append([]T(nil), list...)
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error { return fn(h) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", h.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(r, ctx, "OnInit", r.onInit, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitProducerRegistered(ctx context.Context, pr *producer.Producer) {
	emit(r, ctx, "OnProducerRegistered", r.onProducerRegistered, func(p OnProducerRegistered) error {
		return p.OnProducerRegistered(ctx, pr)
	})
}

func (r *Registry) EmitStakeSlashed(ctx context.Context, pr *producer.Producer, slashed types.Money, reason string) {
	emit(r, ctx, "OnStakeSlashed", r.onStakeSlashed, func(p OnStakeSlashed) error {
		return p.OnStakeSlashed(ctx, pr, slashed, reason)
	})
}

func (r *Registry) EmitProducerStatusChanged(ctx context.Context, pr *producer.Producer, reason string) {
	emit(r, ctx, "OnProducerStatusChanged", r.onProducerStatusChanged, func(p OnProducerStatusChanged) error {
		return p.OnProducerStatusChanged(ctx, pr, reason)
	})
}

func (r *Registry) EmitReputationChanged(ctx context.Context, pr *producer.Producer, previous int) {
	emit(r, ctx, "OnReputationChanged", r.onReputationChanged, func(p OnReputationChanged) error {
		return p.OnReputationChanged(ctx, pr, previous)
	})
}

func (r *Registry) EmitEventScheduled(ctx context.Context, e *producer.Event) {
	emit(r, ctx, "OnEventScheduled", r.onEventScheduled, func(p OnEventScheduled) error {
		return p.OnEventScheduled(ctx, e)
	})
}

func (r *Registry) EmitResultSubmitted(ctx context.Context, res *result.Result) {
	emit(r, ctx, "OnResultSubmitted", r.onResultSubmitted, func(p OnResultSubmitted) error {
		return p.OnResultSubmitted(ctx, res)
	})
}

func (r *Registry) EmitResultFinalized(ctx context.Context, res *result.Result) {
	emit(r, ctx, "OnResultFinalized", r.onResultFinalized, func(p OnResultFinalized) error {
		return p.OnResultFinalized(ctx, res)
	})
}

func (r *Registry) EmitResultInvalidated(ctx context.Context, res *result.Result) {
	emit(r, ctx, "OnResultInvalidated", r.onResultInvalidated, func(p OnResultInvalidated) error {
		return p.OnResultInvalidated(ctx, res)
	})
}

func (r *Registry) EmitDisputeCreated(ctx context.Context, d *dispute.Dispute) {
	emit(r, ctx, "OnDisputeCreated", r.onDisputeCreated, func(p OnDisputeCreated) error {
		return p.OnDisputeCreated(ctx, d)
	})
}

func (r *Registry) EmitDisputeResolved(ctx context.Context, d *dispute.Dispute) {
	emit(r, ctx, "OnDisputeResolved", r.onDisputeResolved, func(p OnDisputeResolved) error {
		return p.OnDisputeResolved(ctx, d)
	})
}

func (r *Registry) EmitBalanceDeposited(ctx context.Context, d *billing.Deposit) {
	emit(r, ctx, "OnBalanceDeposited", r.onBalanceDeposited, func(p OnBalanceDeposited) error {
		return p.OnBalanceDeposited(ctx, d)
	})
}

func (r *Registry) EmitQueryCharged(ctx context.Context, c *billing.Charge) {
	emit(r, ctx, "OnQueryCharged", r.onQueryCharged, func(p OnQueryCharged) error {
		return p.OnQueryCharged(ctx, c)
	})
}

func (r *Registry) EmitWithdrawal(ctx context.Context, w *billing.Withdrawal) {
	emit(r, ctx, "OnWithdrawal", r.onWithdrawal, func(p OnWithdrawal) error {
		return p.OnWithdrawal(ctx, w)
	})
}

func (r *Registry) EmitPoolPayout(ctx context.Context, po *billing.Payout) {
	emit(r, ctx, "OnPoolPayout", r.onPoolPayout, func(p OnPoolPayout) error {
		return p.OnPoolPayout(ctx, po)
	})
}

func (r *Registry) EmitParamsUpdated(ctx context.Context, pa *params.Params) {
	emit(r, ctx, "OnParamsUpdated", r.onParamsUpdated, func(p OnParamsUpdated) error {
		return p.OnParamsUpdated(ctx, pa)
	})
}

// callWithTimeout runs fn, giving up after the registry timeout so a slow
// plugin cannot stall the engine.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
