// Package release checks GitHub for newer mylibrary releases.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// LatestURL is the GitHub endpoint for the newest published release.
const LatestURL = "https://api.github.com/repos/naveenspark/mylibrary/releases/latest"

// Checker looks up the latest release.
type Checker struct {
	URL        string
	HTTPClient *http.Client
}

// NewChecker returns a Checker for LatestURL with a short timeout.
func NewChecker() *Checker {
	return &Checker{URL: LatestURL, HTTPClient: &http.Client{Timeout: 5 * time.Second}}
}

// Latest returns the tag of the newest release, without the "v" prefix.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", fmt.Errorf("release.Latest: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("release.Latest: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release.Latest: GitHub API returned %s", resp.Status)
	}
	var rel struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("release.Latest: parse release: %w", err)
	}
	return strings.TrimPrefix(rel.TagName, "v"), nil
}

// Check reports the latest version when it is newer than current. Dev builds
// never check.
func (c *Checker) Check(ctx context.Context, current string) (latest string, newer bool, err error) {
	if current == "" || current == "dev" {
		return "", false, nil
	}
	latest, err = c.Latest(ctx)
	if err != nil {
		return "", false, err
	}
	return latest, IsNewer(latest, current), nil
}

// IsNewer returns true if latest is a newer semver than current.
func IsNewer(latest, current string) bool {
	lMaj, lMin, lPatch := parse(latest)
	cMaj, cMin, cPatch := parse(current)
	if lMaj != cMaj {
		return lMaj > cMaj
	}
	if lMin != cMin {
		return lMin > cMin
	}
	return lPatch > cPatch
}

func parse(v string) (maj, minor, patch int) {
	v = strings.TrimPrefix(v, "v")
	parts := strings.SplitN(v, ".", 3)
	atoi := func(s string) int {
		s, _, _ = strings.Cut(s, "-")
		n, _ := strconv.Atoi(s) //nolint:errcheck // zero-value on parse failure is desired
		return n
	}
	if len(parts) > 0 {
		maj = atoi(parts[0])
	}
	if len(parts) > 1 {
		minor = atoi(parts[1])
	}
	if len(parts) > 2 {
		patch = atoi(parts[2])
	}
	return maj, minor, patch
}
