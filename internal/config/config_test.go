package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Load()

	if got := cfg.APIURL(); got != DefaultAPIURL {
		t.Errorf("APIURL() = %q, want %q", got, DefaultAPIURL)
	}

	if got := cfg.WSURL(); got != DefaultWSURL {
		t.Errorf("WSURL() = %q, want %q", got, DefaultWSURL)
	}

	if !cfg.AuthRequired() {
		t.Error("AuthRequired() = false, want true by default")
	}

	if got := cfg.PollInterval(); got != DefaultPollIntervalMs {
		t.Errorf("PollInterval() = %d, want %d", got, DefaultPollIntervalMs)
	}

	if got := cfg.InitialPollDelay(); got != DefaultInitialPollDelayMs {
		t.Errorf("InitialPollDelay() = %d, want %d", got, DefaultInitialPollDelayMs)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("QKDCTL_API_URL", "https://qkd.example.edu")
	t.Setenv("QKDCTL_AUTH_REQUIRED", "false")

	cfg := Load()

	if got := cfg.APIURL(); got != "https://qkd.example.edu" {
		t.Errorf("APIURL() = %q, want env override", got)
	}

	if cfg.AuthRequired() {
		t.Error("AuthRequired() = true, want env override false")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	cfgRoot := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgRoot)

	dir := filepath.Join(cfgRoot, "qkdctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}

	content := "api:\n  url: http://sim.lab:9000\nsimulate:\n  poll_interval_ms: 5000\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()

	if got := cfg.APIURL(); got != "http://sim.lab:9000" {
		t.Errorf("APIURL() = %q, want file value", got)
	}

	if got := cfg.PollInterval(); got != 5000 {
		t.Errorf("PollInterval() = %d, want 5000", got)
	}
}

func TestSet_PersistsToConfigFile(t *testing.T) {
	cfgRoot := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgRoot)

	cfg := Load()
	if err := cfg.Set("api.url", "http://written.example"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfgRoot, "qkdctl", "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	// Fresh load sees the persisted value.
	reloaded := Load()
	if got := reloaded.APIURL(); got != "http://written.example" {
		t.Errorf("reloaded APIURL() = %q, want persisted value", got)
	}
}

func TestAll_ContainsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	all := Load().All()

	if _, ok := all["api"]; !ok {
		t.Errorf("All() missing api section: %v", all)
	}
}
