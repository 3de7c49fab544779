// Package config handles qkdctl configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (QKDCTL_*)
//  2. Config file (<user config dir>/qkdctl/config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/QKD-VITAP/qkdctl/internal/paths"
)

const (
	// DefaultAPIURL is the default simulation API endpoint.
	DefaultAPIURL = "http://localhost:8000"
	// DefaultWSURL is the default push-channel endpoint.
	DefaultWSURL = "ws://localhost:8000/ws"
	// DefaultPollIntervalMs is the default status re-poll interval.
	DefaultPollIntervalMs = 2000
	// DefaultInitialPollDelayMs is the delay before the first status poll.
	DefaultInitialPollDelayMs = 1000
)

// Config holds the qkdctl configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	// Set defaults
	v.SetDefault("api.url", DefaultAPIURL)
	v.SetDefault("ws.url", DefaultWSURL)
	v.SetDefault("auth.required", true)
	v.SetDefault("simulate.poll_interval_ms", DefaultPollIntervalMs)
	v.SetDefault("simulate.initial_delay_ms", DefaultInitialPollDelayMs)

	// Config file location
	if configDir, err := paths.ConfigRoot(); err == nil {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Environment variables
	v.SetEnvPrefix("QKDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, but warn on other errors)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v}
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	c.v.Set(key, value)

	configDir, err := paths.ConfigRoot()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	return c.v.WriteConfigAs(configDir + "/config.yaml")
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// APIURL returns the configured REST API base URL.
func (c *Config) APIURL() string {
	return c.GetString("api.url")
}

// WSURL returns the configured push-channel URL.
func (c *Config) WSURL() string {
	return c.GetString("ws.url")
}

// AuthRequired reports whether this deployment requires authentication.
// Self-hosted development servers commonly run with auth disabled.
func (c *Config) AuthRequired() bool {
	return c.GetBool("auth.required")
}

// PollInterval returns the status re-poll interval in milliseconds.
func (c *Config) PollInterval() int {
	return c.GetInt("simulate.poll_interval_ms")
}

// InitialPollDelay returns the delay before the first status poll in milliseconds.
func (c *Config) InitialPollDelay() int {
	return c.GetInt("simulate.initial_delay_ms")
}
