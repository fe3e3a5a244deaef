// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it (dependency injection).
type AppConfig struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	DevServer DevServerConfig `mapstructure:"devserver"`
}

// ServiceConfig locates the remote workflow-building service.
type ServiceConfig struct {
	RESTURL        string        `mapstructure:"rest_url"`
	StreamURL      string        `mapstructure:"stream_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StreamConfig tunes the progress WebSocket connection.
type StreamConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"` // 0 disables the idle read deadline
	ReadLimit        int64         `mapstructure:"read_limit"`
}

// ReconnectConfig bounds the reconnection backoff.
type ReconnectConfig struct {
	Floor   time.Duration `mapstructure:"floor"`
	Ceiling time.Duration `mapstructure:"ceiling"`
}

// LogConfig holds comprehensive logging configuration
type LogConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	Output   []LogOutputConfig `mapstructure:"output"`
	Levels   map[string]string `mapstructure:"levels"`
	Context  LogContextConfig  `mapstructure:"context"`
	Sampling LogSamplingConfig `mapstructure:"sampling"`
}

// LogOutputConfig defines where logs are written
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file", "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`   // For file output
	Rotate  LogRotateConfig `mapstructure:"rotate"` // For file output
}

// LogRotateConfig defines log rotation settings
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// LogContextConfig defines what context to include in logs
type LogContextConfig struct {
	IncludeCaller     bool   `mapstructure:"include_caller"`
	IncludeTimestamp  bool   `mapstructure:"include_timestamp"`
	IncludeStackTrace string `mapstructure:"include_stack_trace"`
}

// LogSamplingConfig defines log sampling settings
type LogSamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Initial    uint32        `mapstructure:"initial"`
	Thereafter uint32        `mapstructure:"thereafter"`
	Tick       time.Duration `mapstructure:"tick"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// DevServerConfig configures the local simulated workflow service.
type DevServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"` // Empty = allow all (development)
	StageDelay     time.Duration `mapstructure:"stage_delay"`
}

// NewConfig creates a new AppConfig by reading from a file, environment variables,
// and applying defaults.
func NewConfig(configPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/wfbuilder/")
		v.AddConfigPath("$HOME/.wfbuilder")
	}

	v.SetEnvPrefix("WFBUILDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	// Read the config file. It's okay if it doesn't exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath != "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnv registers the keys that are commonly overridden from the
// environment. AutomaticEnv alone only applies to keys viper already knows,
// and with struct defaults most keys are unknown to it.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"service.rest_url",
		"service.stream_url",
		"service.request_timeout",
		"reconnect.floor",
		"reconnect.ceiling",
		"log.level",
		"telemetry.enabled",
		"telemetry.endpoint",
		"devserver.host",
		"devserver.port",
		"devserver.stage_delay",
	} {
		_ = v.BindEnv(key)
	}
}

// defaultConfig returns an AppConfig with default values.
func defaultConfig() AppConfig {
	return AppConfig{
		Service: ServiceConfig{
			RESTURL:        "http://localhost:8000",
			StreamURL:      "ws://localhost:8000/ws/progress",
			RequestTimeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			HandshakeTimeout: 10 * time.Second,
			WriteWait:        10 * time.Second,
			ReadTimeout:      0,
			ReadLimit:        1 << 20,
		},
		Reconnect: ReconnectConfig{
			Floor:   time.Second,
			Ceiling: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
			Output: []LogOutputConfig{
				{
					Type:    "file",
					Enabled: true,
					Path:    "./logs/wfbuilder.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  50,
						MaxBackups: 5,
						MaxAgeDays: 14,
						Compress:   true,
					},
				},
				{
					Type:    "console",
					Enabled: false, // Disabled by default, the progress view owns the terminal
				},
			},
			Levels: map[string]string{
				"stream":    "INFO",
				"hub":       "INFO",
				"progress":  "INFO",
				"session":   "INFO",
				"api":       "INFO",
				"devserver": "INFO",
				"cli":       "INFO",
				"tui":       "WARN",
			},
			Context: LogContextConfig{
				IncludeCaller:     true,
				IncludeTimestamp:  true,
				IncludeStackTrace: "ERROR",
			},
			Sampling: LogSamplingConfig{
				Enabled:    false,
				Initial:    100,
				Thereafter: 100,
				Tick:       time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "wfbuilder",
		},
		DevServer: DevServerConfig{
			Host:       "127.0.0.1",
			Port:       8000,
			StageDelay: 400 * time.Millisecond,
		},
	}
}

// expandPaths expands ~ and environment variables in log file paths
func (c *AppConfig) expandPaths() {
	for i := range c.Log.Output {
		if c.Log.Output[i].Path != "" {
			c.Log.Output[i].Path = expandPath(c.Log.Output[i].Path)
		}
	}
}

// expandPath expands ~ to home directory and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// validate checks if the configuration is valid.
func (c *AppConfig) validate() error {
	if err := validateURL("service.rest_url", c.Service.RESTURL); err != nil {
		return err
	}
	if err := validateURL("service.stream_url", c.Service.StreamURL); err != nil {
		return err
	}

	if c.Reconnect.Floor <= 0 {
		return fmt.Errorf("reconnect.floor must be positive, got: %s", c.Reconnect.Floor)
	}
	if c.Reconnect.Ceiling < c.Reconnect.Floor {
		return fmt.Errorf("reconnect.ceiling (%s) must not be below reconnect.floor (%s)",
			c.Reconnect.Ceiling, c.Reconnect.Floor)
	}

	validLogLevels := map[string]bool{
		"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true, "PANIC": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.DevServer.Port <= 0 || c.DevServer.Port > 65535 {
		return fmt.Errorf("invalid devserver port: %d", c.DevServer.Port)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}

	return nil
}

// validateURL only checks that the value can serve as a connection target.
func validateURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must include scheme and host, got: %s", key, raw)
	}
	return nil
}

// Addr returns the listen address of the development service.
func (c *DevServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
