package verity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/verity/metadata"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/plugin"
	"github.com/xraph/verity/schema"
	"github.com/xraph/verity/store"
	"github.com/xraph/verity/types"
)

// Engine runs the four cooperating ledgers: registry, submission pipeline,
// dispute engine and billing engine.
//
// Every public operation is serialized behind a single guard and executed
// in one store transaction, so no partial state is ever observable and no
// two operations interleave.
type Engine struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	now       func() time.Time
	transfer  Transferer
	collect   Collector
	validator SchemaValidator
	metadata  MetadataStore
	defaults  *params.Params

	guard chan struct{}
}

// New creates an engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		plugins:   plugin.NewRegistry(),
		logger:    slog.Default(),
		now:       time.Now,
		transfer:  NopTransferer{},
		collect:   NopCollector{},
		validator: schema.NewValidator(),
		metadata:  metadata.NewMemory(),
		defaults:  params.Default(),
		guard:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTransferer sets the outbound value-transfer collaborator.
func WithTransferer(t Transferer) Option {
	return func(e *Engine) { e.transfer = t }
}

// WithCollector sets the inbound value-collection collaborator. It is
// required whenever WithTransferer installs a real transferer.
func WithCollector(c Collector) Option {
	return func(e *Engine) { e.collect = c }
}

// WithSchemaValidator replaces the JSON Schema oracle.
func WithSchemaValidator(v SchemaValidator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithMetadataStore replaces the in-memory metadata store.
func WithMetadataStore(m MetadataStore) Option {
	return func(e *Engine) { e.metadata = m }
}

// WithParams sets the initial parameters. They are persisted by the first
// Start against an empty store; afterwards the stored version wins and
// changes go through UpdateParams. Start logs a warning when the two differ.
// WithAdmins and WithResolvers follow the same rule.
func WithParams(p *params.Params) Option {
	return func(e *Engine) { e.defaults = p.Clone() }
}

// WithAdmins adds administrative principals to the initial parameters.
func WithAdmins(admins ...types.Principal) Option {
	return func(e *Engine) { e.defaults.Admins = append(e.defaults.Admins, admins...) }
}

// WithResolvers adds allow-listed dispute resolvers to the initial parameters.
func WithResolvers(resolvers ...types.Principal) Option {
	return func(e *Engine) { e.defaults.Resolvers = append(e.defaults.Resolvers, resolvers...) }
}

// Start migrates the store, persists the initial parameters if none exist
// and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	_, bookOnlyOut := e.transfer.(NopTransferer)
	_, bookOnlyIn := e.collect.(NopCollector)
	if !bookOnlyOut && bookOnlyIn {
		return ErrUnfundedPayouts
	}
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}
	if err := e.defaults.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	stored, err := e.store.GetParams(ctx)
	switch {
	case err == nil:
		if diff := stored.Diff(e.defaults); len(diff) > 0 {
			e.logger.Warn("configured params ignored; stored params take precedence",
				"version", stored.Version,
				"differs", diff,
			)
		}
	case IsNotFound(err):
		p := e.defaults.Clone()
		p.UpdatedAt = e.now().UTC()
		p.UpdatedBy = types.System
		if err := e.store.SaveParams(ctx, p); err != nil {
			return fmt.Errorf("verity: seed params: %w", err)
		}
	case err != nil:
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("verity started",
		"plugins", e.plugins.Count(),
		"currency", e.defaults.Currency,
	)
	return nil
}

// Stop shuts plugins down and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Serialization
// ──────────────────────────────────────────────────

type guardKey struct{}

// enter takes the engine guard. A context already holding it belongs to a
// call nested inside a running operation and is rejected.
func (e *Engine) enter(ctx context.Context) (context.Context, func(), error) {
	if held, _ := ctx.Value(guardKey{}).(*Engine); held == e {
		return nil, nil, ErrReentrantCall
	}
	select {
	case e.guard <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return context.WithValue(ctx, guardKey{}, e), func() { <-e.guard }, nil
}

// outbox collects plugin notifications; they are sent only after commit.
type outbox []func(context.Context)

func (o *outbox) add(fn func(context.Context)) { *o = append(*o, fn) }

func (o outbox) flush(ctx context.Context) {
	for _, fn := range o {
		fn(ctx)
	}
}

// run executes fn under the guard inside one store transaction with the
// current parameters. Notifications queued on the outbox are delivered on
// success with the caller's context.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context, p *params.Params, out *outbox) error) error {
	gctx, release, err := e.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	var out outbox
	err = e.store.RunInTx(gctx, func(tx context.Context) error {
		p, err := e.currentParams(tx)
		if err != nil {
			return err
		}
		return fn(tx, p, &out)
	})
	if err != nil {
		return err
	}
	out.flush(ctx)
	return nil
}

func (e *Engine) currentParams(ctx context.Context) (*params.Params, error) {
	p, err := e.store.GetParams(ctx)
	if IsNotFound(err) {
		return e.defaults.Clone(), nil
	}
	return p, err
}

// pay performs an outbound transfer inside the running transaction.
func (e *Engine) pay(ctx context.Context, to types.Principal, amount types.Money, memo string) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := e.transfer.Transfer(ctx, to, amount, memo); err != nil {
		if errors.Is(err, ErrReentrantCall) {
			return err
		}
		return fmt.Errorf("%w: %s to %s: %v", ErrTransferFailed, amount, to, err)
	}
	return nil
}

// fund performs an inbound collection inside the running transaction.
func (e *Engine) fund(ctx context.Context, from types.Principal, amount types.Money, memo string) error {
	if err := e.collect.Collect(ctx, from, amount, memo); err != nil {
		if errors.Is(err, ErrReentrantCall) {
			return err
		}
		return fmt.Errorf("%w: %s from %s: %v", ErrCollectionFailed, amount, from, err)
	}
	return nil
}

func requireMoney(p *params.Params, field string, m types.Money) error {
	if m.Currency != p.Currency {
		return fmt.Errorf("%w: %s in %q, expected %q", ErrCurrencyMismatch, field, m.Currency, p.Currency)
	}
	if !m.IsPositive() {
		return ValidationError{Field: field, Message: "must be positive"}
	}
	if m.Amount > types.MaxAmount {
		return fmt.Errorf("%w: %s %d > %d", ErrAmountTooLarge, field, m.Amount, types.MaxAmount)
	}
	return nil
}

func requirePrincipal(p types.Principal) error {
	if p.IsZero() {
		return ErrMissingPrincipal
	}
	return nil
}
