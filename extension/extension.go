// Package extension provides the Forge extension adapter for Verity.
//
// It implements the forge.Extension interface to integrate the verity
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.verity" or "verity" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/verity"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/store"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/store/mongo"
	"github.com/xraph/verity/store/postgres"
	"github.com/xraph/verity/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "verity"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Verifiable data publication with staked producers, disputes and pay-per-read billing"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

var _ forge.Extension = (*Extension)(nil)

// Extension adapts Verity as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *verity.Engine
	store      store.Store
	grove      *grove.DB
	engineOpts []verity.Option
}

// New creates a new Verity Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *verity.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil && e.grove != nil {
		s, err := storeFor(e.grove)
		if err != nil {
			return err
		}
		e.store = s
	}
	if e.store == nil {
		e.store = memory.New()
	}

	s := e.store
	if e.config.DisableMigrate {
		s = noMigrate{s}
	}
	e.engine = verity.New(s, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*verity.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("verity: extension not initialized")
	}
	if err := e.engine.Start(ctx); err != nil {
		return err
	}
	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("verity: store not initialized")
	}
	return e.store.Ping(ctx)
}

// storeFor picks the store backend matching the grove driver.
func storeFor(db *grove.DB) (store.Store, error) {
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("verity: unsupported grove driver %q", name)
	}
}

// noMigrate leaves the schema alone on Start.
type noMigrate struct{ store.Store }

func (noMigrate) Migrate(context.Context) error { return nil }

// buildEngineOpts constructs verity.Option values from the resolved config.
// Config-derived params come first so pass-through options can refine them.
func (e *Extension) buildEngineOpts() []verity.Option {
	p := params.Default()
	if e.config.ChallengeWindow > 0 {
		p.ChallengeWindow = e.config.ChallengeWindow
	}
	if e.config.QueryFee > 0 {
		p.QueryFee = types.New(e.config.QueryFee, p.Currency)
	}

	opts := make([]verity.Option, 0, len(e.engineOpts)+3)
	opts = append(opts,
		verity.WithParams(p),
		verity.WithAdmins(principals(e.config.Admins)...),
		verity.WithResolvers(principals(e.config.Resolvers)...),
	)
	return append(opts, e.engineOpts...)
}

func principals(names []string) []types.Principal {
	out := make([]types.Principal, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, types.Principal(n))
		}
	}
	return out
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("verity: configuration is required but not found in config files; " +
				"ensure 'extensions.verity' or 'verity' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("verity: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("admins", len(e.config.Admins)),
		forge.F("resolvers", len(e.config.Resolvers)),
		forge.F("challenge_window", e.config.ChallengeWindow),
		forge.F("query_fee", e.config.QueryFee),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.verity", "verity"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("verity: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("verity: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ChallengeWindow == 0 {
		cfg.ChallengeWindow = defaults.ChallengeWindow
	}
	if cfg.QueryFee == 0 {
		cfg.QueryFee = defaults.QueryFee
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML takes precedence for scalar fields; allow-lists are unioned.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.ChallengeWindow == 0 {
		yamlConfig.ChallengeWindow = programmaticConfig.ChallengeWindow
	}
	if yamlConfig.QueryFee == 0 {
		yamlConfig.QueryFee = programmaticConfig.QueryFee
	}
	yamlConfig.Admins = union(yamlConfig.Admins, programmaticConfig.Admins)
	yamlConfig.Resolvers = union(yamlConfig.Resolvers, programmaticConfig.Resolvers)

	return mergeWithDefaults(yamlConfig)
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
