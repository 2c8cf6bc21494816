// Package config loads stockscan settings. Sources are applied in order, each
// overriding the previous: built-in defaults, a YAML file, a .env file,
// STOCKSCAN_* environment variables and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
)

// Config is the complete application configuration.
type Config struct {
	Database    Database    `yaml:"database"`
	Server      Server      `yaml:"server"`
	Log         Log         `yaml:"log"`
	Scan        Scan        `yaml:"scan"`
	Persistence Persistence `yaml:"persistence"`
}

type Database struct {
	Path      string `yaml:"path"`
	AdminUser string `yaml:"admin_user"`
}

type Server struct {
	Addr        string        `yaml:"addr"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// Log configures the optional log file. Console output is always on.
type Log struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Debug      bool   `yaml:"debug"`
}

// Scan holds the scanning thresholds and session defaults.
type Scan struct {
	Cooldown           time.Duration `yaml:"cooldown"`
	IdleWindow         time.Duration `yaml:"idle_window"`
	MinLength          int           `yaml:"min_length"`
	CaptureMinLength   int           `yaml:"capture_min_length"`
	DefaultTarget      string        `yaml:"default_target"`
	DefaultInputMethod string        `yaml:"default_input_method"`
	Bell               bool          `yaml:"bell"`
}

// Persistence selects where the active scan session is mirrored.
type Persistence struct {
	Driver   string        `yaml:"driver"`
	RedisURL string        `yaml:"redis_url"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Default returns the built-in configuration.
func Default() Config {
	kb := scan.DefaultKeyboardConfig()
	return Config{
		Database: Database{Path: "stockscan.sqlite3", AdminUser: "Admin"},
		Server:   Server{Addr: ":8080", TokenExpiry: 7 * 24 * time.Hour},
		Log:      Log{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		Scan: Scan{
			Cooldown:           1500 * time.Millisecond,
			IdleWindow:         kb.IdleWindow,
			MinLength:          kb.MinLength,
			CaptureMinLength:   kb.CaptureMinLength,
			DefaultTarget:      model.TargetUnits,
			DefaultInputMethod: model.InputBoth,
			Bell:               true,
		},
		Persistence: Persistence{Driver: DriverSQLite, Key: scan.DefaultKey},
	}
}

// Sources names the optional files to read. Empty names are skipped.
type Sources struct {
	File    string
	EnvFile string
}

// Load builds the configuration from defaults, files and the environment.
// A missing .env file is not an error; a missing YAML file that was asked for is.
func Load(src Sources) (Config, error) {
	cfg := Default()

	if src.File != "" {
		data, err := os.ReadFile(src.File)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", src.File, err)
		}
	}

	if src.EnvFile != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(src.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("loading %s: %w", src.EnvFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	str("STOCKSCAN_DB", &cfg.Database.Path)
	str("STOCKSCAN_ADMIN_USER", &cfg.Database.AdminUser)
	str("STOCKSCAN_ADDR", &cfg.Server.Addr)
	dur("STOCKSCAN_TOKEN_EXPIRY", &cfg.Server.TokenExpiry)
	str("STOCKSCAN_LOG_FILE", &cfg.Log.File)
	flag("STOCKSCAN_LOG_DEBUG", &cfg.Log.Debug)
	dur("STOCKSCAN_SCAN_COOLDOWN", &cfg.Scan.Cooldown)
	dur("STOCKSCAN_SCAN_IDLE_WINDOW", &cfg.Scan.IdleWindow)
	num("STOCKSCAN_SCAN_MIN_LENGTH", &cfg.Scan.MinLength)
	num("STOCKSCAN_SCAN_CAPTURE_MIN_LENGTH", &cfg.Scan.CaptureMinLength)
	str("STOCKSCAN_SCAN_TARGET", &cfg.Scan.DefaultTarget)
	str("STOCKSCAN_SCAN_INPUT", &cfg.Scan.DefaultInputMethod)
	flag("STOCKSCAN_SCAN_BELL", &cfg.Scan.Bell)
	str("STOCKSCAN_PERSISTENCE", &cfg.Persistence.Driver)
	str("STOCKSCAN_REDIS_URL", &cfg.Persistence.RedisURL)
	str("STOCKSCAN_SESSION_KEY", &cfg.Persistence.Key)
	dur("STOCKSCAN_SESSION_TTL", &cfg.Persistence.TTL)

	return errors.Join(errs...)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Scan.Cooldown < 0 || c.Scan.IdleWindow <= 0 {
		errs = append(errs, errors.New("scan.cooldown must not be negative and scan.idle_window must be positive"))
	}
	if c.Scan.MinLength < 1 || c.Scan.CaptureMinLength < 1 {
		errs = append(errs, errors.New("scan.min_length and scan.capture_min_length must be at least 1"))
	}
	if !model.ValidTarget(c.Scan.DefaultTarget) {
		errs = append(errs, fmt.Errorf("scan.default_target %q is not one of units, sets, both", c.Scan.DefaultTarget))
	}
	if !model.ValidInputMethod(c.Scan.DefaultInputMethod) {
		errs = append(errs, fmt.Errorf("scan.default_input_method %q is not one of camera, hardware, both", c.Scan.DefaultInputMethod))
	}
	switch c.Persistence.Driver {
	case DriverSQLite:
	case DriverRedis:
		if c.Persistence.RedisURL == "" {
			errs = append(errs, errors.New("persistence.redis_url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("persistence.driver %q is not one of sqlite, redis", c.Persistence.Driver))
	}
	if c.Persistence.Key == "" {
		errs = append(errs, errors.New("persistence.key is required"))
	}
	return errors.Join(errs...)
}

// Keyboard returns the keystroke heuristic thresholds.
func (s Scan) Keyboard() scan.KeyboardConfig {
	return scan.KeyboardConfig{
		IdleWindow:       s.IdleWindow,
		MinLength:        s.MinLength,
		CaptureMinLength: s.CaptureMinLength,
	}
}
