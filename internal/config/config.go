// Package config loads bus settings from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/casualjim/notebus"
	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvName           = "NOTEBUS_NAME"
	EnvMaxConcurrency = "NOTEBUS_MAX_CONCURRENCY"
	EnvHandlerTimeout = "NOTEBUS_HANDLER_TIMEOUT"
	EnvLogLevel       = "NOTEBUS_LOG_LEVEL"
	EnvLogEmissions   = "NOTEBUS_LOG_EMISSIONS"
)

type Config struct {
	Name           string
	MaxConcurrency int
	HandlerTimeout time.Duration
	LogLevel       slog.Level
	// LogEmissions installs notebus.LoggingHook on the bus.
	LogEmissions bool
}

func Default() Config {
	return Config{
		Name:     "notebus",
		LogLevel: slog.LevelInfo,
	}
}

// Load reads the given .env files, later files overriding earlier ones, then
// lets the process environment override both. Missing files are skipped.
func Load(files ...string) (Config, error) {
	env := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("reading %s: %w", file, err)
		}
		maps.Copy(env, values)
	}
	for _, key := range []string{EnvName, EnvMaxConcurrency, EnvHandlerTimeout, EnvLogLevel, EnvLogEmissions} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return parse(env)
}

func parse(env map[string]string) (Config, error) {
	cfg := Default()
	var err error

	if v := env[EnvName]; v != "" {
		cfg.Name = v
	}
	if v := env[EnvMaxConcurrency]; v != "" {
		n, perr := strconv.Atoi(v)
		switch {
		case perr != nil:
			err = errors.Join(err, fmt.Errorf("%s: %w", EnvMaxConcurrency, perr))
		case n < 0:
			err = errors.Join(err, fmt.Errorf("%s: must not be negative, got %d", EnvMaxConcurrency, n))
		default:
			cfg.MaxConcurrency = n
		}
	}
	if v := env[EnvHandlerTimeout]; v != "" {
		d, perr := time.ParseDuration(v)
		switch {
		case perr != nil:
			err = errors.Join(err, fmt.Errorf("%s: %w", EnvHandlerTimeout, perr))
		case d < 0:
			err = errors.Join(err, fmt.Errorf("%s: must not be negative, got %s", EnvHandlerTimeout, d))
		default:
			cfg.HandlerTimeout = d
		}
	}
	if v := env[EnvLogLevel]; v != "" {
		if perr := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); perr != nil {
			err = errors.Join(err, fmt.Errorf("%s: %w", EnvLogLevel, perr))
		}
	}
	if v := env[EnvLogEmissions]; v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("%s: %w", EnvLogEmissions, perr))
		}
		cfg.LogEmissions = b
	}

	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BusOptions converts the configuration into bus options. logger may be nil.
func (c Config) BusOptions(logger *slog.Logger) []notebus.Option {
	options := []notebus.Option{
		notebus.Name(c.Name),
		notebus.MaxConcurrency(c.MaxConcurrency),
		notebus.HandlerTimeout(c.HandlerTimeout),
	}
	if logger != nil {
		options = append(options, notebus.WithLogger(logger))
	}
	if c.LogEmissions {
		options = append(options, notebus.WithHook(notebus.LoggingHook(logger)))
	}
	return options
}
