// Package update checks for and applies new qkdctl releases.
//
// Releases are fetched from GitHub with checksum verification; the
// result of the last check is cached on disk so the startup path can
// surface "update available" without a network call.
package update

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	selfupdate "github.com/creativeprojects/go-selfupdate"
)

const repoSlug = "QKD-VITAP/qkdctl"

// IsDisabled reports whether update checks are disabled via
// QKDCTL_UPDATE_DISABLED.
func IsDisabled() bool {
	v := os.Getenv("QKDCTL_UPDATE_DISABLED")
	return v == "1" || strings.EqualFold(v, "true")
}

// Info is the outcome of one release check.
type Info struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateAvailable bool   `json:"update_available"`
	ReleaseURL      string `json:"release_url,omitempty"`

	// Release is the underlying release metadata, nil when the check
	// found nothing newer.
	Release *selfupdate.Release `json:"-"`
}

// Updater checks for and applies releases.
type Updater struct {
	updater *selfupdate.Updater
}

// NewUpdater creates an Updater bound to the project's GitHub releases.
func NewUpdater() (*Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{
		APIToken: os.Getenv("GITHUB_TOKEN"),
	})
	if err != nil {
		return nil, fmt.Errorf("create github source: %w", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:    source,
		Validator: &selfupdate.ChecksumValidator{UniqueFilename: "checksums.txt"},
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	return &Updater{updater: updater}, nil
}

// CheckLatest queries the release source and compares against
// currentVersion.
func (u *Updater) CheckLatest(ctx context.Context, currentVersion string) (*Info, error) {
	latest, found, err := u.updater.DetectLatest(ctx, selfupdate.ParseSlug(repoSlug))
	if err != nil {
		return nil, fmt.Errorf("detect latest release: %w", err)
	}

	info := &Info{CurrentVersion: currentVersion}

	if !found {
		info.LatestVersion = currentVersion
		return info, nil
	}

	info.LatestVersion = latest.Version()
	info.ReleaseURL = latest.URL
	info.Release = latest
	info.UpdateAvailable = newerThan(latest.Version(), currentVersion)

	return info, nil
}

// CheckAndRecord runs CheckLatest and persists the outcome to the
// state cache. Persistence failure does not fail the check.
func (u *Updater) CheckAndRecord(ctx context.Context, currentVersion string) (*Info, error) {
	info, err := u.CheckLatest(ctx, currentVersion)
	if err != nil {
		return nil, err
	}

	_ = SaveState(&State{
		LastCheckedAt:  time.Now(),
		LatestVersion:  info.LatestVersion,
		CurrentVersion: currentVersion,
		ReleaseURL:     info.ReleaseURL,
	})

	return info, nil
}

// Apply replaces the running binary with the given release.
func (u *Updater) Apply(ctx context.Context, release *selfupdate.Release) error {
	execPath, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("find executable path: %w", err)
	}

	if err := u.updater.UpdateTo(ctx, release, execPath); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	return nil
}

// ApplyVersion installs a specific released version.
func (u *Updater) ApplyVersion(ctx context.Context, version string) (*selfupdate.Release, error) {
	release, found, err := u.updater.DetectVersion(ctx, selfupdate.ParseSlug(repoSlug), version)
	if err != nil {
		return nil, fmt.Errorf("detect version %s: %w", version, err)
	}

	if !found {
		return nil, fmt.Errorf("version %s not found", version)
	}

	if err := u.Apply(ctx, release); err != nil {
		return nil, err
	}

	return release, nil
}

// newerThan reports whether candidate is a strictly newer semantic
// version than current. An unparseable current version (e.g. "dev")
// counts as out of date; an unparseable candidate does not.
func newerThan(candidate, current string) bool {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return true
	}

	cand, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}

	return cand.GreaterThan(cur)
}
