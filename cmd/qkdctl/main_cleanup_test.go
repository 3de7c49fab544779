package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestWrapNamedPostRunCleanup_ErrorIncludesCleanupName(t *testing.T) {
	wrapped := wrapNamedPostRunCleanup(nil, "telemetry resources", func() error {
		return errors.New("boom")
	})

	err := wrapped(&cobra.Command{}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !strings.Contains(err.Error(), "cleanup telemetry resources") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestWrapPostRunCleanup_UsesLoggerResourcesLabel(t *testing.T) {
	wrapped := wrapPostRunCleanup(nil, func() error {
		return errors.New("boom")
	})

	err := wrapped(&cobra.Command{}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !strings.Contains(err.Error(), "cleanup logger resources") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestWrapNamedPostRunCleanup_CleansUpWhenPostRunFails(t *testing.T) {
	cleanupCalled := false
	postErr := errors.New("post-run failed")
	wrapped := wrapNamedPostRunCleanup(
		func(*cobra.Command, []string) error {
			return postErr
		},
		"telemetry resources",
		func() error {
			cleanupCalled = true
			return nil
		},
	)

	err := wrapped(&cobra.Command{}, nil)
	if !errors.Is(err, postErr) {
		t.Fatalf("expected post-run error, got %v", err)
	}

	if !cleanupCalled {
		t.Error("cleanup should run even when post-run fails")
	}
}

func TestShouldBackgroundCheck_SkipsExemptCommands(t *testing.T) {
	tests := []struct {
		name    string
		cmdName string
		version string
		quiet   bool
		jsonOut bool
		want    bool
	}{
		{"regular command", "simulate", "1.2.3", false, false, true},
		{"dev build", "simulate", "dev", false, false, false},
		{"quiet mode", "simulate", "1.2.3", true, false, false},
		{"json mode", "simulate", "1.2.3", false, true, false},
		{"update command", "update", "1.2.3", false, false, false},
		{"version command", "version", "1.2.3", false, false, false},
		{"completion command", "completion", "1.2.3", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: tt.cmdName}

			got := shouldBackgroundCheck(cmd, tt.version, tt.quiet, tt.jsonOut)
			if got != tt.want {
				t.Errorf("shouldBackgroundCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}
