package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type ServerConfig struct {
	Port int `toml:"port"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type MediaConfig struct {
	Folder string `toml:"folder"`
}

type SyncConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	// StoppedRetryAfterSeconds, when positive, gives system-stopped
	// accounts another attempt after the cool-down. Zero keeps them
	// stopped until manual re-authorization.
	StoppedRetryAfterSeconds int `toml:"stopped_retry_after_seconds"`
}

type TrackingConfig struct {
	BaseURL string `toml:"base_url"`
}

type JWTConfig struct {
	Secret string `toml:"secret"`
}

type OAuthProviderConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
}

type Config struct {
	Server    ServerConfig        `toml:"server"`
	Database  DatabaseConfig      `toml:"database"`
	Media     MediaConfig         `toml:"media"`
	Sync      SyncConfig          `toml:"sync"`
	Tracking  TrackingConfig      `toml:"tracking"`
	JWT       JWTConfig           `toml:"jwt"`
	Google    OAuthProviderConfig `toml:"google"`
	Microsoft OAuthProviderConfig `toml:"microsoft"`
}

func LoadConfig(filepath string) (*Config, error) {
	var config Config

	// Set default values
	config.Server.Port = 3000
	config.Server.LogLevel = "info"
	config.Database.Path = "./mailbridge.db"
	config.Media.Folder = "./media"
	config.Sync.IntervalSeconds = 120
	config.Google.TokenURL = "https://oauth2.googleapis.com/token"
	config.Microsoft.TokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

	_, err := toml.DecodeFile(filepath, &config)
	if err != nil {
		return nil, err
	}

	if config.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	if config.Sync.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("sync.interval_seconds must be positive")
	}

	return &config, nil
}

// SyncInterval returns the scheduler tick interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// StoppedRetryAfter returns the cool-down before a stopped account is
// retried, zero when the policy is disabled.
func (c *Config) StoppedRetryAfter() time.Duration {
	return time.Duration(c.Sync.StoppedRetryAfterSeconds) * time.Second
}
