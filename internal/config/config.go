// Package config loads gesturejump settings from defaults, an optional YAML
// file, .env files and GESTUREJUMP_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/gesturejump/internal/recognizer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GESTUREJUMP_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Sentry     SentryConfig     `yaml:"sentry"`
	Camera     CameraConfig     `yaml:"camera"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Recorder   RecorderConfig   `yaml:"recorder"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

type CameraConfig struct {
	Device int `yaml:"device"`
	// RefreshRate is the frame loop rate in Hz.
	RefreshRate int `yaml:"refresh_rate"`
}

type RecognizerConfig struct {
	Model          string        `yaml:"model"`
	CacheDir       string        `yaml:"cache_dir"`
	Delegate       string        `yaml:"delegate"`
	NumHands       int           `yaml:"num_hands"`
	Python         string        `yaml:"python"`
	Script         string        `yaml:"script"`
	RuntimeVersion string        `yaml:"runtime_version"`
	InitTimeout    time.Duration `yaml:"init_timeout"`
}

type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type RecorderConfig struct {
	Workers int `yaml:"workers"`
}

// Dir returns the per-user data directory, ~/.gesturejump.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gesturejump"
	}
	return filepath.Join(home, ".gesturejump")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := recognizer.DefaultOptions()
	dir := Dir()
	return &Config{
		Log: LogConfig{Level: "info"},
		Camera: CameraConfig{
			Device:      0,
			RefreshRate: 60,
		},
		Recognizer: RecognizerConfig{
			Model:          opts.ModelPath,
			CacheDir:       filepath.Join(dir, "models"),
			Delegate:       opts.Delegate,
			NumHands:       opts.NumHands,
			RuntimeVersion: opts.RuntimeVersion,
			InitTimeout:    opts.InitTimeout,
		},
		Server: ServerConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:8080",
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Store:    StoreConfig{Path: filepath.Join(dir, "gesturejump.db")},
		Recorder: RecorderConfig{Workers: 4},
	}
}

// Load builds the configuration. path names a YAML file; when empty the
// default path is used if it exists. Environment overrides are applied
// last and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath()); err == nil {
			path = DefaultPath()
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// skipped. With no arguments ./.env is tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a number", ErrInvalid, EnvPrefix, key, v)
		}
		*dst = n
		return nil
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("SENTRY_DSN", &c.Sentry.DSN)
	str("SENTRY_ENVIRONMENT", &c.Sentry.Environment)
	str("RECOGNIZER_MODEL", &c.Recognizer.Model)
	str("RECOGNIZER_CACHE_DIR", &c.Recognizer.CacheDir)
	str("RECOGNIZER_DELEGATE", &c.Recognizer.Delegate)
	str("RECOGNIZER_PYTHON", &c.Recognizer.Python)
	str("RECOGNIZER_SCRIPT", &c.Recognizer.Script)
	str("SERVER_ADDR", &c.Server.Addr)
	str("STORE_PATH", &c.Store.Path)

	if err := num("CAMERA_DEVICE", &c.Camera.Device); err != nil {
		return err
	}
	if err := num("CAMERA_REFRESH_RATE", &c.Camera.RefreshRate); err != nil {
		return err
	}
	if err := num("RECOGNIZER_NUM_HANDS", &c.Recognizer.NumHands); err != nil {
		return err
	}

	if v, ok := lookup(EnvPrefix + "SERVER_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sSERVER_ENABLED=%q is not a boolean", ErrInvalid, EnvPrefix, v)
		}
		c.Server.Enabled = b
	}
	if v, ok := lookup(EnvPrefix + "RECOGNIZER_INIT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sRECOGNIZER_INIT_TIMEOUT=%q: %v", ErrInvalid, EnvPrefix, v, err)
		}
		c.Recognizer.InitTimeout = d
	}
	return nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	if c.Camera.Device < 0 {
		return fmt.Errorf("%w: camera.device must not be negative", ErrInvalid)
	}
	if c.Camera.RefreshRate <= 0 {
		return fmt.Errorf("%w: camera.refresh_rate must be positive", ErrInvalid)
	}
	if c.Recognizer.Model == "" {
		return fmt.Errorf("%w: recognizer.model is required", ErrInvalid)
	}
	switch strings.ToUpper(c.Recognizer.Delegate) {
	case recognizer.DelegateGPU, recognizer.DelegateCPU:
	default:
		return fmt.Errorf("%w: recognizer.delegate %q must be GPU or CPU", ErrInvalid, c.Recognizer.Delegate)
	}
	if c.Recognizer.NumHands < 1 {
		return fmt.Errorf("%w: recognizer.num_hands must be at least 1", ErrInvalid)
	}
	if c.Recognizer.InitTimeout <= 0 {
		return fmt.Errorf("%w: recognizer.init_timeout must be positive", ErrInvalid)
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required when the server is enabled", ErrInvalid)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalid)
	}
	if c.Recorder.Workers < 1 {
		return fmt.Errorf("%w: recorder.workers must be at least 1", ErrInvalid)
	}
	return nil
}

// LogLevel returns the parsed log level, info if unparseable.
func (c *Config) LogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// RecognizerOptions converts the recognizer section.
func (c *Config) RecognizerOptions() recognizer.Options {
	return recognizer.Options{
		ModelPath:      c.Recognizer.Model,
		CacheDir:       c.Recognizer.CacheDir,
		Delegate:       strings.ToUpper(c.Recognizer.Delegate),
		NumHands:       c.Recognizer.NumHands,
		Python:         c.Recognizer.Python,
		Script:         c.Recognizer.Script,
		RuntimeVersion: c.Recognizer.RuntimeVersion,
		InitTimeout:    c.Recognizer.InitTimeout,
	}
}
