package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhi-yo/formify/core"
	"github.com/abhi-yo/formify/engine"
	"github.com/abhi-yo/formify/limiter"
)

// ErrInvalidConfig is returned when configuration is invalid
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the service configuration. Every policy constant of the
// pipeline lives here so nothing is re-derived per call site.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080"
	Listen string `yaml:"listen,omitempty"`

	// Redis holds the shared counter store settings. An empty address means
	// no shared store: rate limiting degrades to process-local counters.
	Redis RedisConfig `yaml:"redis,omitempty"`

	// IdentitySalt is the process-wide salt for caller identity hashing,
	// loaded once and never changed for the process lifetime.
	IdentitySalt string `yaml:"identity_salt,omitempty"`

	// Limits maps operation classes (submit, project_create, export,
	// upload) to their window/limit pairs.
	Limits map[string]LimitConfig `yaml:"limits,omitempty"`

	// Score is the heuristic weight table and threshold.
	Score ScoreConfig `yaml:"score,omitempty"`

	// Pow holds the proof-of-work gate policy.
	Pow PowConfig `yaml:"pow,omitempty"`

	// MinSubmissionAge / MaxSubmissionAge bound the declared timestamp.
	// Duration strings, e.g. "2s", "5m".
	MinSubmissionAge string `yaml:"min_submission_age,omitempty"`
	MaxSubmissionAge string `yaml:"max_submission_age,omitempty"`
}

// RedisConfig holds the counter store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// LimitConfig is one operation class's rate limit policy.
type LimitConfig struct {
	Limit  int64  `yaml:"limit"`
	Window string `yaml:"window"`
}

// ScoreConfig mirrors core.ScorePolicy in YAML form. Zero values fall back
// to the defaults, so a config file only lists what it overrides.
type ScoreConfig struct {
	Threshold           int `yaml:"threshold,omitempty"`
	SuspiciousUserAgent int `yaml:"suspicious_user_agent,omitempty"`
	BotUserAgent        int `yaml:"bot_user_agent,omitempty"`
	MissingProvenance   int `yaml:"missing_provenance,omitempty"`
	EmptySubmission     int `yaml:"empty_submission,omitempty"`
	TooManyFields       int `yaml:"too_many_fields,omitempty"`
	ExcessiveText       int `yaml:"excessive_text,omitempty"`
	SuspiciousContent   int `yaml:"suspicious_content,omitempty"`
	HighFrequency       int `yaml:"high_frequency,omitempty"`
}

// PowConfig holds the proof-of-work gate policy.
type PowConfig struct {
	// VolumeThreshold is the prior accepted count above which submissions
	// must carry a proof of work.
	VolumeThreshold int64 `yaml:"volume_threshold,omitempty"`
}

// New creates a Config with production defaults: the original per-operation
// limits (submit 10/min, project_create 5/h, export 3/min, upload 20/min),
// the default weight table and the 50-submission proof-of-work threshold.
func New() *Config {
	return &Config{
		Listen:       ":8080",
		IdentitySalt: "default-salt",
		Limits: map[string]LimitConfig{
			"submit":         {Limit: 10, Window: "1m"},
			"project_create": {Limit: 5, Window: "1h"},
			"export":         {Limit: 3, Window: "1m"},
			"upload":         {Limit: 20, Window: "1m"},
		},
		Pow:              PowConfig{VolumeThreshold: 50},
		MinSubmissionAge: "2s",
		MaxSubmissionAge: "5m",
	}
}

// Load reads a YAML config file and applies defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	for name, lc := range c.Limits {
		if lc.Limit <= 0 {
			return fmt.Errorf("%w: limit for %s must be positive", ErrInvalidConfig, name)
		}
		if _, err := time.ParseDuration(lc.Window); err != nil {
			return fmt.Errorf("%w: invalid window for %s: %v", ErrInvalidConfig, name, err)
		}
	}
	if c.Pow.VolumeThreshold < 0 {
		return fmt.Errorf("%w: pow volume threshold cannot be negative", ErrInvalidConfig)
	}
	for name, v := range map[string]string{
		"min_submission_age": c.MinSubmissionAge,
		"max_submission_age": c.MaxSubmissionAge,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// LimitPolicy returns the limiter policy for an operation class, falling
// back to the submit policy when the class is not configured.
func (c *Config) LimitPolicy(operation string) limiter.Policy {
	lc, ok := c.Limits[operation]
	if !ok {
		lc = c.Limits["submit"]
	}
	window, err := time.ParseDuration(lc.Window)
	if err != nil {
		window = time.Minute
	}
	return limiter.Policy{Limit: lc.Limit, Window: window}
}

// ScorePolicy converts the YAML weights into the engine's policy, keeping
// defaults for unset values.
func (c *Config) ScorePolicy() core.ScorePolicy {
	p := core.DefaultScorePolicy()
	s := c.Score

	apply := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	apply(&p.Threshold, s.Threshold)
	apply(&p.SuspiciousUserAgent, s.SuspiciousUserAgent)
	apply(&p.BotUserAgent, s.BotUserAgent)
	apply(&p.MissingProvenance, s.MissingProvenance)
	apply(&p.EmptySubmission, s.EmptySubmission)
	apply(&p.TooManyFields, s.TooManyFields)
	apply(&p.ExcessiveText, s.ExcessiveText)
	apply(&p.SuspiciousContent, s.SuspiciousContent)
	apply(&p.HighFrequency, s.HighFrequency)

	return p
}

// EngineConfig assembles the engine policy constants.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Score = c.ScorePolicy()
	if c.Pow.VolumeThreshold > 0 {
		cfg.PowVolumeThreshold = c.Pow.VolumeThreshold
	}
	if d, err := time.ParseDuration(c.MinSubmissionAge); err == nil {
		cfg.MinSubmissionAge = d
	}
	if d, err := time.ParseDuration(c.MaxSubmissionAge); err == nil {
		cfg.MaxSubmissionAge = d
	}
	return cfg
}
