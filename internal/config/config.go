// Package config loads run settings from defaults, an optional YAML file,
// VERAMATRIX_* environment variables, and bound CLI flags, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/engine"
	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/tech"
	"github.com/talgya/veramatrix/internal/world"
)

// EnvPrefix is prepended to every environment override, e.g. VERAMATRIX_RULES_EVENT.
const EnvPrefix = "VERAMATRIX"

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid config")

// Config is the complete set of run settings.
type Config struct {
	Seed            uint64        `mapstructure:"seed"`              // 0 = crypto/rand
	Days            int           `mapstructure:"days"`              // 0 = random whole years in [1,10]
	Population      int           `mapstructure:"population"`        // 0 = random in [10,100]
	StartOffsetDays int           `mapstructure:"start_offset_days"` // -1 = random in [0,3650]
	Pace            time.Duration `mapstructure:"pace"`

	DBPath       string `mapstructure:"db_path"`  // Empty = no storage
	APIPort      int    `mapstructure:"api_port"` // 0 = no API
	AdminKey     string `mapstructure:"admin_key"`
	RandomOrgKey string `mapstructure:"random_org_key"`
	LogLevel     string `mapstructure:"log_level"`

	Technologies []string       `mapstructure:"technologies"`
	Regions      []world.Region `mapstructure:"regions"`
	Rules        agents.Rules   `mapstructure:"rules"`
	Rates        engine.Rates   `mapstructure:"rates"`
}

// SetDefaults registers every key so environment overrides resolve.
func SetDefaults(v *viper.Viper) {
	rules := agents.DefaultRules()
	rates := engine.DefaultRates()

	v.SetDefault("seed", 0)
	v.SetDefault("days", 0)
	v.SetDefault("population", 0)
	v.SetDefault("start_offset_days", -1)
	v.SetDefault("pace", "0s")
	v.SetDefault("db_path", "veramatrix.db")
	v.SetDefault("api_port", 0)
	v.SetDefault("admin_key", "")
	v.SetDefault("random_org_key", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("technologies", tech.DefaultNames)
	v.SetDefault("rules.awareness", rules.Awareness)
	v.SetDefault("rules.mortality", rules.Mortality)
	v.SetDefault("rules.event", rules.Event)
	v.SetDefault("rules.health_decay", rules.HealthDecay)
	v.SetDefault("rates.growth", rates.Growth)
	v.SetDefault("rates.discovery", rates.Discovery)
}

// Load reads configuration into a Config. A nil v uses a fresh viper instance;
// an empty path skips the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Debug("config file loaded", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = world.DefaultRegions()
	}
	return &cfg, nil
}

// Validate checks ranges and that the locality tree is well formed.
func (c *Config) Validate() error {
	probs := map[string]float64{
		"rules.awareness": c.Rules.Awareness,
		"rules.mortality": c.Rules.Mortality,
		"rules.event":     c.Rules.Event,
		"rates.growth":    c.Rates.Growth,
		"rates.discovery": c.Rates.Discovery,
	}
	for key, p := range probs {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: %s = %v, want [0,1]", ErrInvalid, key, p)
		}
	}

	switch {
	case c.Rules.HealthDecay < 0:
		return fmt.Errorf("%w: rules.health_decay must not be negative", ErrInvalid)
	case c.Days < 0:
		return fmt.Errorf("%w: days must not be negative", ErrInvalid)
	case c.Population < 0:
		return fmt.Errorf("%w: population must not be negative", ErrInvalid)
	case c.StartOffsetDays < -1:
		return fmt.Errorf("%w: start_offset_days must be -1 or more", ErrInvalid)
	case c.Pace < 0 || c.Pace > engine.MaxInterval:
		return fmt.Errorf("%w: pace must be between 0 and %s", ErrInvalid, engine.MaxInterval)
	case c.APIPort < 0 || c.APIPort > 65535:
		return fmt.Errorf("%w: api_port %d out of range", ErrInvalid, c.APIPort)
	}

	seen := make(map[string]bool, len(c.Technologies))
	for _, name := range c.Technologies {
		if name == "" || seen[name] {
			return fmt.Errorf("%w: technology names must be unique and non-empty", ErrInvalid)
		}
		seen[name] = true
	}

	if _, err := c.Hierarchy(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Hierarchy builds the locality tree from Regions.
func (c *Config) Hierarchy() (*world.Hierarchy, error) {
	return world.NewHierarchy(c.Regions)
}

// Dice returns the configured random source: random.org when a key is set,
// otherwise PCG seeded with Seed (crypto/rand when Seed is 0).
func (c *Config) Dice() entropy.Dice {
	if c.RandomOrgKey != "" {
		return entropy.NewRoller(entropy.NewClient(c.RandomOrgKey))
	}
	return entropy.NewSeeded(c.Seed)
}

// Level maps LogLevel onto slog, defaulting to Info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Plan is a run with every random default settled.
type Plan struct {
	Days       int
	Population int
	Start      time.Time
}

// Plan resolves the zero-valued settings against d. Start is midnight UTC of
// today minus the offset.
func (c *Config) Plan(d entropy.Dice, now time.Time) Plan {
	p := Plan{Days: c.Days, Population: c.Population}
	if p.Days == 0 {
		p.Days = 365 * (1 + d.IntN(10))
	}
	if p.Population == 0 {
		p.Population = 10 + d.IntN(91)
	}
	offset := c.StartOffsetDays
	if offset < 0 {
		offset = d.IntN(3651)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	p.Start = today.AddDate(0, 0, -offset)
	return p
}
