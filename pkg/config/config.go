/*
Copyright 2026 The Modvault Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config holds the application's persistent state layout and its
// tunable knobs (spec.md §6), behind a single-writer-many-reader lock per
// spec.md §5: reads are frequent and brief, writes only on user-initiated
// config changes. Its directory-discovery functions follow the OS-specific
// convention-finding style of the teacher's pkg/osutil.
package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"modvault.dev/modvault/pkg/digest"
)

// Defaults mirror spec.md §4.7/§5: P=4 fetch parallelism, an inbox bound
// of 8 for the reader pool, and a 500ms VP actor idle timeout.
const (
	DefaultFetchParallelism = 4
	DefaultInboxSize        = 8
	DefaultVPIdleTimeout    = 500 * time.Millisecond
)

// AppDir returns the OS-conventional per-user application directory,
// honoring MODVAULT_APP_DIR as an override.
func AppDir() string {
	if d := os.Getenv("MODVAULT_APP_DIR"); d != "" {
		return d
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "Modvault")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "modvault")
	}
	return filepath.Join(homeDir(), ".local", "share", "modvault")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("USERPROFILE")
	}
	return os.Getenv("HOME")
}

// CatalogPath is the path to the embedded relational engine's database
// file within the application directory.
func CatalogPath(appDir string) string { return filepath.Join(appDir, "mods.db") }

// RepoCacheDir is where the last successfully downloaded manifest for
// each repository URL, plus its ETag sibling file, is kept.
func RepoCacheDir(appDir string) string { return filepath.Join(appDir, "repo-cache") }

// TempDir is the root of the fetched-content staging area.
func TempDir(appDir string) string { return filepath.Join(appDir, "temp") }

// TempPathForDigest computes the deterministic staging path for a fetched
// blob, keyed by its digest as <hex[0:2]>/<hex[2:4]>/<hex[4:]> (spec.md
// §6), so two fetches of the same content always land at the same path.
func TempPathForDigest(appDir string, d digest.Digest) string {
	hx := hex.EncodeToString(d.Bytes())
	return filepath.Join(TempDir(appDir), hx[0:2], hx[2:4], hx[4:])
}

// AppConfig is the process's live, mutable configuration: the install
// root and the tunable knobs governing fetch/read concurrency. It is
// shared across goroutines behind a RWMutex (spec.md §5: "single-writer
// many-reader lock").
type AppConfig struct {
	mu sync.RWMutex

	appDir             string
	installRoot        string
	fetchParallelism   int
	inboxSize          int
	vpIdleTimeout      time.Duration
	fetchRateLimitKBps int // 0 disables rate limiting
	repoURLs           []string
}

// New returns an AppConfig with spec-mandated defaults, rooted at appDir.
func New(appDir, installRoot string) *AppConfig {
	return &AppConfig{
		appDir:           appDir,
		installRoot:      installRoot,
		fetchParallelism: DefaultFetchParallelism,
		inboxSize:        DefaultInboxSize,
		vpIdleTimeout:    DefaultVPIdleTimeout,
	}
}

func (c *AppConfig) AppDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appDir
}

func (c *AppConfig) InstallRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.installRoot
}

// SetInstallRoot is the one user-initiated config write most deployments
// will ever make after first run.
func (c *AppConfig) SetInstallRoot(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installRoot = path
}

func (c *AppConfig) FetchParallelism() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchParallelism
}

func (c *AppConfig) SetFetchParallelism(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchParallelism = n
}

func (c *AppConfig) InboxSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inboxSize
}

func (c *AppConfig) VPIdleTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vpIdleTimeout
}

// FetchRateLimitKBps returns the configured fetch rate cap in KB/s, or 0
// if unset (no limiting). Unset is the default; operators needing to cap
// bandwidth on a shared connection can enable this knob explicitly.
func (c *AppConfig) FetchRateLimitKBps() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchRateLimitKBps
}

func (c *AppConfig) SetFetchRateLimitKBps(kbps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchRateLimitKBps = kbps
}

// RepoURLs returns the configured repository manifest URLs, tried in
// order by pkg/repoingest until one answers (spec.md §4.8).
func (c *AppConfig) RepoURLs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.repoURLs))
	copy(out, c.repoURLs)
	return out
}

func (c *AppConfig) SetRepoURLs(urls []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repoURLs = append([]string(nil), urls...)
}

// EnsureDirs creates every directory AppConfig's paths depend on.
func (c *AppConfig) EnsureDirs() error {
	appDir := c.AppDir()
	for _, d := range []string{appDir, RepoCacheDir(appDir), TempDir(appDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
