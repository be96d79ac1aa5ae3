package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/verity"
	"github.com/xraph/verity/plugin"
	"github.com/xraph/verity/store"
)

// Option configures the Verity Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from a grove database. The backend is chosen
// from the grove driver name ("pg" or "mongo").
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) { e.grove = db }
}

// WithEngineOption passes a verity.Option through to the underlying engine.
func WithEngineOption(opt verity.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a verity plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, verity.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithAdmins appends to the admin allow-list.
func WithAdmins(admins ...string) Option {
	return func(e *Extension) { e.config.Admins = append(e.config.Admins, admins...) }
}

// WithResolvers appends to the dispute resolver allow-list.
func WithResolvers(resolvers ...string) Option {
	return func(e *Extension) { e.config.Resolvers = append(e.config.Resolvers, resolvers...) }
}

// WithChallengeWindow sets the dispute window.
func WithChallengeWindow(d time.Duration) Option {
	return func(e *Extension) { e.config.ChallengeWindow = d }
}

// WithQueryFee sets the per-event read fee in minor units.
func WithQueryFee(minor int64) Option {
	return func(e *Extension) { e.config.QueryFee = minor }
}
