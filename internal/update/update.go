// Package update provides version checking and self-update functionality.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

const (
	repoOwner     = "visorcraft"
	repoName      = "anton"
	checkInterval = 24 * time.Hour
)

// updateCache stores the last update check result.
type updateCache struct {
	LastCheck       time.Time `json:"last_check"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

func cacheDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "anton")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "anton")
}

func cachePath() string {
	dir := cacheDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "update-cache.json")
}

func loadCache() *updateCache {
	path := cachePath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cache updateCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return &cache
}

func saveCache(cache *updateCache) {
	path := cachePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}

// InstallMethod represents how anton was installed.
type InstallMethod int

const (
	// InstallUnknown means we couldn't determine the install method.
	InstallUnknown InstallMethod = iota
	// InstallHomebrew means anton was installed via Homebrew.
	InstallHomebrew
	// InstallScript means anton was installed via shell script or go install.
	InstallScript
)

func (m InstallMethod) String() string {
	switch m {
	case InstallHomebrew:
		return "homebrew"
	case InstallScript:
		return "script"
	default:
		return "unknown"
	}
}

// DetectInstallMethod determines how anton was installed by examining
// the binary path.
func DetectInstallMethod() InstallMethod {
	exe, err := os.Executable()
	if err != nil {
		return InstallUnknown
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return InstallUnknown
	}

	// Homebrew keeps kegs under a Cellar directory on every platform.
	if strings.Contains(exe, "/Cellar/") {
		return InstallHomebrew
	}
	if strings.HasPrefix(exe, "/opt/homebrew/") ||
		strings.HasPrefix(exe, "/usr/local/Homebrew/") ||
		strings.Contains(exe, "linuxbrew") {
		return InstallHomebrew
	}

	return InstallScript
}

// Release represents information about a release.
type Release struct {
	Version    string
	ReleaseURL string
}

// isDev reports whether the version names an unreleased build that
// update checks should skip.
func isDev(version string) bool {
	v := strings.TrimPrefix(version, "v")
	return v == "dev" || v == ""
}

func detectLatest(ctx context.Context) (*selfupdate.Updater, *selfupdate.Release, bool, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: source})
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create updater: %w", err)
	}
	latest, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to detect latest version: %w", err)
	}
	return updater, latest, found, nil
}

// CheckForUpdate checks if a newer version is available. Returns the
// latest release info and whether an update is available.
func CheckForUpdate(currentVersion string) (*Release, bool, error) {
	if isDev(currentVersion) {
		return nil, false, nil
	}
	current := strings.TrimPrefix(currentVersion, "v")

	_, latest, found, err := detectLatest(context.Background())
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	release := &Release{
		Version:    latest.Version(),
		ReleaseURL: latest.ReleaseNotes,
	}
	if strings.TrimPrefix(latest.Version(), "v") == current {
		return release, false, nil
	}
	return release, latest.GreaterThan(current), nil
}

// Apply downloads and installs the latest version over the running
// binary. Homebrew installs are refused; brew owns those files.
func Apply(currentVersion string) error {
	if DetectInstallMethod() == InstallHomebrew {
		return fmt.Errorf("anton was installed via Homebrew. Please run: brew upgrade %s/tap/%s", repoOwner, repoName)
	}
	if isDev(currentVersion) {
		return fmt.Errorf("cannot update dev builds")
	}
	current := strings.TrimPrefix(currentVersion, "v")

	updater, latest, found, err := detectLatest(context.Background())
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no releases found")
	}
	if !latest.GreaterThan(current) {
		return fmt.Errorf("already at latest version (%s)", currentVersion)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if err := updater.UpdateTo(context.Background(), latest, exe); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	return nil
}

// UpdateInstructions returns instructions for updating based on install method.
func UpdateInstructions(method InstallMethod) string {
	switch method {
	case InstallHomebrew:
		return fmt.Sprintf("Run: brew upgrade %s/tap/%s", repoOwner, repoName)
	case InstallScript:
		if runtime.GOOS == "windows" {
			return fmt.Sprintf("Run: anton upgrade\nOr reinstall: irm https://raw.githubusercontent.com/%s/%s/main/scripts/install.ps1 | iex", repoOwner, repoName)
		}
		return fmt.Sprintf("Run: anton upgrade\nOr reinstall: curl -fsSL https://raw.githubusercontent.com/%s/%s/main/scripts/install.sh | sh", repoOwner, repoName)
	default:
		return "Run: anton upgrade"
	}
}

// CheckPeriodically checks for updates at most once per day. Returns a
// notice string if an update is available, empty string otherwise.
// Designed to be called at the start of common commands.
func CheckPeriodically(currentVersion string) string {
	if isDev(currentVersion) {
		return ""
	}
	current := strings.TrimPrefix(currentVersion, "v")

	cache := loadCache()
	if cache != nil && time.Since(cache.LastCheck) < checkInterval {
		// The user may have upgraded since the cache was saved, so the
		// cached latest must still beat the running version.
		if cache.UpdateAvailable && cache.LatestVersion != "" {
			cachedLatest := strings.TrimPrefix(cache.LatestVersion, "v")
			if cachedLatest != current && isNewerVersion(cachedLatest, current) {
				return formatUpdateNotice(currentVersion, cache.LatestVersion, DetectInstallMethod())
			}
		}
		return ""
	}

	release, hasUpdate, err := CheckForUpdate(currentVersion)

	newCache := &updateCache{
		LastCheck:       time.Now(),
		UpdateAvailable: hasUpdate && err == nil,
	}
	if release != nil {
		newCache.LatestVersion = release.Version
	}
	saveCache(newCache)

	if err != nil || !hasUpdate {
		return ""
	}
	return formatUpdateNotice(currentVersion, release.Version, DetectInstallMethod())
}

// isNewerVersion returns true if version a is newer than version b.
// Compares major.minor.patch numerically.
func isNewerVersion(a, b string) bool {
	aMajor, aMinor, aPatch := parseVersion(a)
	bMajor, bMinor, bPatch := parseVersion(b)

	if aMajor != bMajor {
		return aMajor > bMajor
	}
	if aMinor != bMinor {
		return aMinor > bMinor
	}
	return aPatch > bPatch
}

func parseVersion(v string) (int, int, int) {
	v = strings.TrimPrefix(v, "v")
	parts := strings.Split(v, ".")
	var major, minor, patch int
	if len(parts) >= 1 {
		_, _ = fmt.Sscanf(parts[0], "%d", &major)
	}
	if len(parts) >= 2 {
		_, _ = fmt.Sscanf(parts[1], "%d", &minor)
	}
	if len(parts) >= 3 {
		_, _ = fmt.Sscanf(parts[2], "%d", &patch)
	}
	return major, minor, patch
}

func formatUpdateNotice(current, latest string, method InstallMethod) string {
	cmd := "anton upgrade"
	if method == InstallHomebrew {
		cmd = fmt.Sprintf("brew upgrade %s/tap/%s", repoOwner, repoName)
	}
	return fmt.Sprintf("Update available: %s -> %s (run: %s)", current, latest, cmd)
}
