package update

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/QKD-VITAP/qkdctl/internal/paths"
)

// checkInterval is the minimum age of a cached check before the
// background check runs again.
const checkInterval = 24 * time.Hour

// State caches the result of the last release check so startup does
// not hit the release API on every invocation.
type State struct {
	LastCheckedAt  time.Time `json:"last_checked_at"`
	LatestVersion  string    `json:"latest_version,omitempty"`
	CurrentVersion string    `json:"current_version,omitempty"`
	ReleaseURL     string    `json:"release_url,omitempty"`
}

// LoadState reads the cached check state. A missing, unreadable path
// or corrupted file degrades to an empty state.
func LoadState() *State {
	path, err := paths.UpdateStateFile()
	if err != nil {
		return &State{}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from controlled state directory
	if err != nil {
		return &State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return &State{}
	}

	return &state
}

// SaveState writes the check state atomically via a temp file rename.
func SaveState(state *State) error {
	path, err := paths.UpdateStateFile()
	if err != nil {
		return fmt.Errorf("resolve update state path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal update state: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	tmp := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmp)

		return fmt.Errorf("write temp state file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace update state file: %w", err)
	}

	return nil
}

// ShouldCheck reports whether the cached check is stale.
func (s *State) ShouldCheck() bool {
	if s.LastCheckedAt.IsZero() {
		return true
	}

	return time.Since(s.LastCheckedAt) >= checkInterval
}

// HasUpdate reports whether the cached latest version is newer than
// currentVersion. Unparseable versions report false.
func (s *State) HasUpdate(currentVersion string) bool {
	if s.LatestVersion == "" || currentVersion == "" {
		return false
	}

	current, err := semver.NewVersion(currentVersion)
	if err != nil {
		return false
	}

	latest, err := semver.NewVersion(s.LatestVersion)
	if err != nil {
		return false
	}

	return latest.GreaterThan(current)
}
