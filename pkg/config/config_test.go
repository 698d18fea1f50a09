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

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modvault.dev/modvault/pkg/digest"
)

func TestAppDirHonorsOverride(t *testing.T) {
	t.Setenv("MODVAULT_APP_DIR", "/custom/app/dir")
	assert.Equal(t, "/custom/app/dir", AppDir())
}

func TestTempPathForDigestIsSharded(t *testing.T) {
	d := digest.FromBytes([]byte("abc"))
	hx := d.String()
	got := TempPathForDigest("/app", d)
	want := filepath.Join("/app", "temp", hx[0:2], hx[2:4], hx[4:])
	assert.Equal(t, want, got)
}

func TestDefaults(t *testing.T) {
	c := New("/app", "/installs")
	assert.Equal(t, DefaultFetchParallelism, c.FetchParallelism())
	assert.Equal(t, DefaultInboxSize, c.InboxSize())
	assert.Equal(t, DefaultVPIdleTimeout, c.VPIdleTimeout())
	assert.Equal(t, "/installs", c.InstallRoot())
}

func TestSettersAreConcurrencySafe(t *testing.T) {
	c := New("/app", "/installs")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.SetFetchParallelism(i % 8)
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		_ = c.FetchParallelism()
	}
	<-done
}

func TestEnsureDirsCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	c := New(filepath.Join(dir, "app"), filepath.Join(dir, "installs"))
	require.NoError(t, c.EnsureDirs())
}

func TestRepoURLsCopyIsolatesCaller(t *testing.T) {
	c := New("/app", "/installs")
	c.SetRepoURLs([]string{"https://a.example/repo.json"})
	got := c.RepoURLs()
	got[0] = "mutated"
	assert.Equal(t, []string{"https://a.example/repo.json"}, c.RepoURLs())
}
