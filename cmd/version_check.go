package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
)

// ErrVersionCheckFailed is returned when the release API answers with an error status
var ErrVersionCheckFailed = errors.New("version check failed")

const (
	githubAPIURL        = "https://api.github.com/repos/airframesio/pgactivity-collector/releases/latest"
	versionCheckTimeout = 5 * time.Second
	cacheExpiry         = 24 * time.Hour
)

// GitHubRelease is the part of GitHub's latest release response we read
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// VersionCheckResult contains the result of checking for updates
type VersionCheckResult struct {
	UpdateAvailable bool      `json:"update_available"`
	CurrentVersion  string    `json:"-"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseURL      string    `json:"release_url"`
	CheckedAt       time.Time `json:"checked_at"`
}

// versionChecker looks up the latest release, caching the answer for a day
type versionChecker struct {
	url       string
	client    *http.Client
	cachePath string
	now       func() time.Time
}

func newVersionChecker() *versionChecker {
	return &versionChecker{
		url:       githubAPIURL,
		client:    &http.Client{Timeout: versionCheckTimeout},
		cachePath: filepath.Join(stateDir(), "version_check.json"),
		now:       time.Now,
	}
}

// Check compares current against the latest published release.
// Development builds are never reported as outdated.
func (c *versionChecker) Check(ctx context.Context, current string) (VersionCheckResult, error) {
	result := VersionCheckResult{CurrentVersion: current}

	currentVersion, err := semver.NewVersion(current)
	if err != nil {
		return result, nil
	}

	if cached, ok := c.cached(); ok {
		cached.CurrentVersion = current
		cached.UpdateAvailable = isNewer(cached.LatestVersion, currentVersion)
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}
	// GitHub API requires a User-Agent
	req.Header.Set("User-Agent", "pgactivity-collector/"+current)

	resp, err := c.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("%w: status %d", ErrVersionCheckFailed, resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return result, fmt.Errorf("failed to decode response: %w", err)
	}

	latest, err := semver.NewVersion(release.TagName)
	if err != nil {
		return result, fmt.Errorf("%w: release tag %q: %v", ErrVersionCheckFailed, release.TagName, err)
	}

	result.LatestVersion = latest.String()
	result.ReleaseURL = release.HTMLURL
	result.UpdateAvailable = latest.GreaterThan(currentVersion)
	result.CheckedAt = c.now()
	c.save(result)

	return result, nil
}

func isNewer(latest string, current *semver.Version) bool {
	v, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}
	return v.GreaterThan(current)
}

func (c *versionChecker) cached() (VersionCheckResult, bool) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return VersionCheckResult{}, false
	}
	var result VersionCheckResult
	if err := json.Unmarshal(data, &result); err != nil {
		return VersionCheckResult{}, false
	}
	if c.now().Sub(result.CheckedAt) >= cacheExpiry {
		return VersionCheckResult{}, false
	}
	return result, true
}

func (c *versionChecker) save(result VersionCheckResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = writeStateFile(c.cachePath, data)
}

// formatUpdateMessage creates a user-friendly update notification message
func formatUpdateMessage(result VersionCheckResult) string {
	return fmt.Sprintf("Update available: %s -> v%s (visit %s)",
		result.CurrentVersion,
		result.LatestVersion,
		result.ReleaseURL,
	)
}
