// Package version reports build information and checks GitHub for newer
// releases.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X github.com/mrz1836/paycart/internal/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // ldflags targets
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

const (
	// DefaultBaseURL is the GitHub API root.
	DefaultBaseURL = "https://api.github.com"
	// DefaultTimeout bounds one release lookup.
	DefaultTimeout = 10 * time.Second
	// Owner and Repo identify the release feed.
	Owner = "mrz1836"
	Repo  = "paycart"

	maxBodySize = 64 * 1024
)

// ErrReleaseLookup is returned when GitHub does not answer with a release.
var ErrReleaseLookup = errors.New("release lookup failed")

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the build info, falling back to the module's VCS stamp
// when ldflags were not set.
func Current() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "" {
				b.BuildDate = s.Value
			}
		}
	}
	return b
}

// String renders a one-line summary.
func (b Build) String() string {
	s := "paycart " + b.Version
	if b.Commit != "" {
		commit := b.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		s += " (" + commit + ")"
	}
	return s + " " + b.GoVersion + " " + b.Platform
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("paycart/%s (%s/%s)", Current().Version, runtime.GOOS, runtime.GOARCH)
}

// Release is the subset of a GitHub release we read.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Checker looks up the latest published release.
type Checker struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewChecker returns a checker against the public GitHub API.
func NewChecker() *Checker {
	return &Checker{BaseURL: DefaultBaseURL, HTTPClient: &http.Client{Timeout: DefaultTimeout}}
}

// Latest fetches the latest release of paycart.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	url := strings.TrimSuffix(c.BaseURL, "/") + "/repos/" + Owner + "/" + Repo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTPClient.Do(req) //nolint:gosec // fixed GitHub endpoint
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReleaseLookup, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxBodySize)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrReleaseLookup, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var r Release
	if err = json.NewDecoder(body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrReleaseLookup, err)
	}
	return &r, nil
}

// Compare orders two versions: -1, 0 or 1. Development builds ("dev",
// empty, or a bare commit hash) sort before every release.
func Compare(a, b string) int {
	da, db := isDevelopment(a), isDevelopment(b)
	switch {
	case da && db:
		return 0
	case da:
		return -1
	case db:
		return 1
	}
	pa, pb := numericParts(a), numericParts(b)
	for i := range 3 {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// IsNewer reports whether latest is a newer release than current.
func IsNewer(current, latest string) bool {
	return Compare(latest, current) > 0
}

// Normalize strips whitespace, any leading v and pre-release or build
// suffixes.
func Normalize(v string) string {
	v = strings.TrimLeft(strings.TrimSpace(v), "vV")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	return v
}

func numericParts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(Normalize(v), ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out[i] = n
	}
	return out
}

func isDevelopment(v string) bool {
	v = strings.TrimSuffix(Normalize(v), "-dirty")
	if v == "" || v == "dev" {
		return true
	}
	return looksLikeCommit(v)
}

// looksLikeCommit matches 7-40 hex digits with at least one letter, so
// numeric versions such as 20240101 are not mistaken for hashes.
func looksLikeCommit(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	letter := false
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
			letter = true
		default:
			return false
		}
	}
	return letter
}
