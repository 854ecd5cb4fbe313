// Package config loads run settings from an optional YAML file, SHOPSIM_*
// environment variables, and .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/talgya/shopfloor/internal/agents"
	"github.com/talgya/shopfloor/internal/engine"
)

// EnvPrefix namespaces environment overrides, e.g. SHOPSIM_STORE_CUSTOMERS.
const EnvPrefix = "SHOPSIM"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full set of run settings.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Run     RunConfig     `mapstructure:"run"`
	Journal JournalConfig `mapstructure:"journal"`
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`
}

// StoreConfig sizes the opening population.
type StoreConfig struct {
	Customers int `mapstructure:"customers"`
	Employees int `mapstructure:"employees"`
	Books     int `mapstructure:"books"`
}

// RunConfig controls simulated time.
type RunConfig struct {
	Hours         int           `mapstructure:"hours"`
	Steps         uint64        `mapstructure:"steps"`
	Seed          int64         `mapstructure:"seed"`
	StartDay      int           `mapstructure:"start_day"`
	ShiftTicks    int           `mapstructure:"shift_ticks"`
	Interval      time.Duration `mapstructure:"interval"`
	KeepMailboxes bool          `mapstructure:"keep_mailboxes"`
}

// JournalConfig enables the SQLite run journal. An empty path disables it.
type JournalConfig struct {
	Path            string `mapstructure:"path"`
	CheckpointEvery uint64 `mapstructure:"checkpoint_every"`
}

// APIConfig controls the read-only HTTP API. Port 0 disables it.
type APIConfig struct {
	Port          int      `mapstructure:"port"`
	RatePerSecond float64  `mapstructure:"rate_per_second"`
	Burst         int      `mapstructure:"burst"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	def := engine.DefaultConfig()
	v.SetDefault("store.customers", def.Customers)
	v.SetDefault("store.employees", def.Employees)
	v.SetDefault("store.books", def.Books)

	v.SetDefault("run.hours", def.Hours)
	v.SetDefault("run.steps", 0)
	v.SetDefault("run.seed", 0)
	v.SetDefault("run.start_day", 0)
	v.SetDefault("run.shift_ticks", agents.DefaultShiftTicks)
	v.SetDefault("run.interval", time.Duration(0))
	v.SetDefault("run.keep_mailboxes", false)

	v.SetDefault("journal.path", "")
	v.SetDefault("journal.checkpoint_every", engine.TicksPerSimHour)

	v.SetDefault("api.port", 0)
	v.SetDefault("api.rate_per_second", 5.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("api.cors_origins", []string{})

	v.SetDefault("log.level", "info")
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// Load reads path (if non-empty) and SHOPSIM_* environment variables over the
// defaults, then validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads the first .env file found among paths, or ./.env when
// none are given. Existing environment variables win. It reports the file
// it loaded.
func LoadDotEnv(paths ...string) (string, bool) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Validate rejects settings the simulation cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Store.Customers >= 0, "store.customers must not be negative (got %d)", c.Store.Customers)
	check(c.Store.Employees >= 0, "store.employees must not be negative (got %d)", c.Store.Employees)
	check(c.Store.Books >= 0, "store.books must not be negative (got %d)", c.Store.Books)
	check(c.Run.Hours >= 0, "run.hours must not be negative (got %d)", c.Run.Hours)
	check(c.Run.StartDay >= 0 && c.Run.StartDay <= 365, "run.start_day must be within 0..365 (got %d)", c.Run.StartDay)
	check(c.Run.ShiftTicks > 0, "run.shift_ticks must be positive (got %d)", c.Run.ShiftTicks)
	check(c.Run.Interval >= 0, "run.interval must not be negative (got %s)", c.Run.Interval)
	check(c.Journal.CheckpointEvery > 0, "journal.checkpoint_every must be positive")
	check(c.API.Port >= 0 && c.API.Port <= 65535, "api.port out of range (got %d)", c.API.Port)
	check(c.API.RatePerSecond > 0, "api.rate_per_second must be positive (got %g)", c.API.RatePerSecond)
	check(c.API.Burst > 0, "api.burst must be positive (got %d)", c.API.Burst)

	var lvl slog.Level
	check(lvl.UnmarshalText([]byte(c.Log.Level)) == nil, "log.level %q not recognised", c.Log.Level)

	return errors.Join(errs...)
}

// SlogLevel returns the configured level, or info if it does not parse.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Engine converts the settings into a simulation config.
func (c Config) Engine() engine.Config {
	return engine.Config{
		Customers:     c.Store.Customers,
		Employees:     c.Store.Employees,
		Books:         c.Store.Books,
		Hours:         c.Run.Hours,
		Steps:         c.Run.Steps,
		Seed:          c.Run.Seed,
		StartDay:      c.Run.StartDay,
		ShiftTicks:    c.Run.ShiftTicks,
		Interval:      c.Run.Interval,
		KeepMailboxes: c.Run.KeepMailboxes,
	}
}
