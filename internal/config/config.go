// Package config loads daemon configuration from an optional YAML file with
// REPSYNC_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	DB    DBConfig    `yaml:"db"`
	API   APIConfig   `yaml:"api"`
	HTTP  HTTPConfig  `yaml:"http"`
	Sync  SyncConfig  `yaml:"sync"`
	Email EmailConfig `yaml:"email"`
	Log   LogConfig   `yaml:"log"`
}

// DBConfig locates the local draft database.
type DBConfig struct {
	Path string `yaml:"path"`
}

// APIConfig points at the remote coaching API.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// HTTPConfig controls the local JSON API.
type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"` // empty disables auth
}

// SyncConfig controls the background drain schedule.
type SyncConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
}

// Interval returns the drain period as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// InitialDelay returns the deferred first drain as a duration.
func (s SyncConfig) InitialDelay() time.Duration {
	return time.Duration(s.InitialDelaySeconds) * time.Second
}

// EmailConfig controls the coach summary email.
type EmailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"` // empty uses the noop sender
	From         string `yaml:"from"`
	CoachEmail   string `yaml:"coach_email"` // empty skips the summary
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file and no env are present.
func Default() Config {
	return Config{
		DB:   DBConfig{Path: "repsync.db"},
		API:  APIConfig{BaseURL: "http://localhost:3000"},
		HTTP: HTTPConfig{Addr: "127.0.0.1:7421"},
		Sync: SyncConfig{
			IntervalSeconds:     10,
			InitialDelaySeconds: 2,
			MaxAttempts:         5,
		},
		Email: EmailConfig{From: "RepSync <noreply@repsync.app>"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads a YAML config file and applies environment overrides. A missing
// file is not an error; an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DB.Path, "REPSYNC_DB_PATH")
	setString(&cfg.API.BaseURL, "REPSYNC_API_URL")
	setString(&cfg.API.Token, "REPSYNC_API_TOKEN")
	setString(&cfg.HTTP.Addr, "REPSYNC_HTTP_ADDR")
	setString(&cfg.HTTP.AuthToken, "REPSYNC_HTTP_TOKEN")
	setInt(&cfg.Sync.IntervalSeconds, "REPSYNC_SYNC_INTERVAL_S")
	setInt(&cfg.Sync.MaxAttempts, "REPSYNC_SYNC_MAX_ATTEMPTS")
	setString(&cfg.Email.ResendAPIKey, "REPSYNC_RESEND_KEY")
	setString(&cfg.Email.From, "REPSYNC_RESEND_FROM")
	setString(&cfg.Email.CoachEmail, "REPSYNC_COACH_EMAIL")
	setString(&cfg.Log.Level, "REPSYNC_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
