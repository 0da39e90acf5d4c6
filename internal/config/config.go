// Package config loads statekeep settings from the environment.
//
// Values come from STATEKEEP_* variables, optionally seeded from dotenv
// files. Variables already set in the process environment win over dotenv
// values. CLI flags override both.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into Config.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrLoadingEnvFile is returned when an explicitly named dotenv file cannot be read.
	ErrLoadingEnvFile = errors.New("failed to load env file")

	// ErrInvalidLogLevel is returned for a log level slog does not know.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Config holds runtime settings.
type Config struct {
	// DB is the default journal path for run, trace and replay.
	DB string `env:"STATEKEEP_DB"`

	LogLevel  string `env:"STATEKEEP_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"STATEKEEP_LOG_FORMAT" envDefault:"text"`

	// Strict makes unhandled events fail instead of being ignored.
	Strict bool `env:"STATEKEEP_STRICT" envDefault:"false"`

	// MailboxSize is the initial capacity of each actor's mailbox.
	MailboxSize int `env:"STATEKEEP_MAILBOX_SIZE" envDefault:"64"`

	// Tracer is the OpenTelemetry instrumentation name.
	Tracer string `env:"STATEKEEP_TRACER" envDefault:"statekeep"`
}

// Load reads dotenv files, then parses the environment into a Config.
//
// With no paths, ".env" in the working directory is loaded if present.
// Named paths must exist.
func Load(paths ...string) (Config, error) {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Join(ErrLoadingEnvFile, err)
		}
	} else if err := godotenv.Load(paths...); err != nil {
		return Config{}, errors.Join(ErrLoadingEnvFile, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad(paths ...string) Config {
	cfg, err := Load(paths...)
	if err != nil {
		panic(fmt.Sprintf("Failed to load required configuration: %v", err))
	}
	return cfg
}

// Level parses LogLevel ("debug", "info", "warn", "error", any case).
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return level, nil
}

// NewLogger builds a slog logger writing to w in LogFormat at Level.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
}
