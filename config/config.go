// Package config loads the verityd configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xraph/verity/params"
	"github.com/xraph/verity/types"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Params    ParamsConfig    `toml:"params"`
	Redis     RedisConfig     `toml:"redis"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Archive   ArchiveConfig   `toml:"archive"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	// FinalizeInterval is how often the daemon sweeps results whose window
	// has elapsed. Zero disables the sweep.
	FinalizeInterval time.Duration `toml:"finalize_interval"`
}

// StoreConfig selects the backend: memory, sqlite, postgres or mongo.
type StoreConfig struct {
	Driver   string `toml:"driver"`
	DSN      string `toml:"dsn"`
	Database string `toml:"database"` // mongo; defaults to the DSN path
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
}

// RateLimitConfig is a per-principal token bucket.
type RateLimitConfig struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// ParamsConfig overrides the stock protocol parameters for the first
// params version. Money values are minor units of Currency. Zero values
// keep the defaults.
type ParamsConfig struct {
	Currency        string        `toml:"currency"`
	MinStake        int64         `toml:"min_stake"`
	ChallengeStake  int64         `toml:"challenge_stake"`
	SlashAmount     int64         `toml:"slash_amount"`
	QueryFee        int64         `toml:"query_fee"`
	ChallengeWindow time.Duration `toml:"challenge_window"`

	ProducerBps   int64 `toml:"producer_bps"`
	ProtocolBps   int64 `toml:"protocol_bps"`
	ChallengerBps int64 `toml:"challenger_bps"`

	BonusTiers []params.BonusTier `toml:"bonus_tiers"`

	FreeQuota   *int   `toml:"free_quota"`
	QuotaPolicy string `toml:"quota_policy"`
	Forfeit     string `toml:"forfeit"`

	Admins    []string `toml:"admins"`
	Resolvers []string `toml:"resolvers"`
}

// RedisConfig enables the Redis metadata store when Addr is set.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// KafkaConfig enables the lifecycle stream when Brokers is set.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// ArchiveConfig enables the S3 archive when Bucket is set.
type ArchiveConfig struct {
	Bucket      string `toml:"bucket"`
	Prefix      string `toml:"prefix"`
	Invalidated bool   `toml:"invalidated"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8080",
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			FinalizeInterval: time.Minute,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "data/verity.db",
		},
		Auth: AuthConfig{
			JWTSecret: "change-me-in-production",
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
		Kafka: KafkaConfig{
			Topic: "verity.lifecycle",
		},
		Redis: RedisConfig{
			Prefix: "verity:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over Default. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres", "mongo":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret must not be empty"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// Build returns the protocol parameters: the defaults with every non-zero
// override applied, validated.
func (c ParamsConfig) Build() (*params.Params, error) {
	p := params.Default()
	if c.Currency != "" {
		cur := strings.ToLower(c.Currency)
		p.Currency = cur
		for _, m := range []*types.Money{&p.MinStake, &p.ChallengeStake, &p.SlashAmount, &p.QueryFee, &p.ReferralCap} {
			m.Currency = cur
		}
	}
	set := func(dst *types.Money, minor int64) {
		if minor != 0 {
			*dst = types.New(minor, p.Currency)
		}
	}
	set(&p.MinStake, c.MinStake)
	set(&p.ChallengeStake, c.ChallengeStake)
	set(&p.SlashAmount, c.SlashAmount)
	set(&p.QueryFee, c.QueryFee)

	if c.ChallengeWindow != 0 {
		p.ChallengeWindow = c.ChallengeWindow
	}
	if c.ProducerBps != 0 || c.ProtocolBps != 0 || c.ChallengerBps != 0 {
		p.ProducerBps, p.ProtocolBps, p.ChallengerBps = c.ProducerBps, c.ProtocolBps, c.ChallengerBps
	}
	if len(c.BonusTiers) > 0 {
		p.BonusTiers = c.BonusTiers
	}
	if c.FreeQuota != nil {
		p.FreeQuota = *c.FreeQuota
	}
	if c.QuotaPolicy != "" {
		p.QuotaPolicy = params.QuotaPolicy(c.QuotaPolicy)
	}
	if c.Forfeit != "" {
		p.Forfeit = params.ForfeitPolicy(c.Forfeit)
	}
	for _, a := range c.Admins {
		p.Admins = append(p.Admins, types.Principal(a))
	}
	for _, r := range c.Resolvers {
		p.Resolvers = append(p.Resolvers, types.Principal(r))
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	return p, nil
}

// Handler builds the slog handler described by the log section.
func (c LogConfig) Handler(w io.Writer) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
