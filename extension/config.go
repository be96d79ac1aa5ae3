package extension

import "time"

// Config holds the Verity extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.verity" or "verity" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Admins seeds the admin allow-list of the first params version.
	Admins []string `json:"admins" mapstructure:"admins" yaml:"admins"`

	// Resolvers seeds the dispute resolver allow-list.
	Resolvers []string `json:"resolvers" mapstructure:"resolvers" yaml:"resolvers"`

	// ChallengeWindow is how long a submitted result stays open to
	// disputes before it can be finalized (default: 15m).
	ChallengeWindow time.Duration `json:"challenge_window" mapstructure:"challenge_window" yaml:"challenge_window"`

	// QueryFee is the per-event read fee in minor units (default: 100).
	QueryFee int64 `json:"query_fee" mapstructure:"query_fee" yaml:"query_fee"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChallengeWindow: 15 * time.Minute,
		QueryFee:        100,
	}
}
