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

package repoingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modvault.dev/modvault/pkg/catalog"
)

const testManifest = `{
  "mods": [
    {
      "id": "retail-fs2",
      "title": "Freespace 2",
      "version": "1.0.0",
      "type": "tc",
      "packages": [
        {
          "name": "Root",
          "status": "required",
          "is_vp": true,
          "dependencies": [
            {"id": "fso-engine", "version": "23.0.0", "packages": ["binaries"]}
          ],
          "files": [
            {
              "filename": "root_fs2.vp",
              "checksum": ["sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"],
              "filesize": 10,
              "urls": ["https://cdn.example/root_fs2.vp"]
            }
          ],
          "filelist": [
            {
              "filename": "data/tables/ships.tbl",
              "archive": "root_fs2.vp",
              "orig_name": "data/tables/ships.tbl",
              "checksum": ["sha256", "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"]
            }
          ]
        }
      ]
    }
  ]
}`

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "mods.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestIngestFirstImportsAndAnalyzes(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(testManifest))
	}))
	defer srv.Close()

	cat := openTestCatalog(t)
	in := New(cat, t.TempDir(), srv.Client())

	url, err := in.IngestFirst(context.Background(), []string{srv.URL})
	require.NoError(t, err)
	assert.Equal(t, srv.URL, url)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	require.NoError(t, cat.WithTx(context.Background(), func(tx *catalog.Tx) error {
		releases, err := tx.GetReleases()
		require.NoError(t, err)
		require.Len(t, releases, 1)
		assert.Equal(t, "retail-fs2", releases[0].Name)
		assert.Equal(t, catalog.ReleaseTC, releases[0].Type)

		pkg, ok, err := tx.GetPackage(releases[0].ID, "Root")
		require.NoError(t, err)
		require.True(t, ok)

		deps, err := tx.DependenciesByPackage(pkg.ID)
		require.NoError(t, err)
		require.Len(t, deps, 1)
		assert.Equal(t, "fso-engine", deps[0].ModID)
		assert.Equal(t, "23.0.0", deps[0].Version)
		assert.Equal(t, []string{"binaries"}, deps[0].Packages)
		return nil
	}))
}

func TestIngestFirstTriesNextURLOnFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testManifest))
	}))
	defer good.Close()

	cat := openTestCatalog(t)
	in := New(cat, t.TempDir(), good.Client())

	url, err := in.IngestFirst(context.Background(), []string{bad.URL, good.URL})
	require.NoError(t, err)
	assert.Equal(t, good.URL, url)
}

func TestIngestFirstAllURLsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	cat := openTestCatalog(t)
	in := New(cat, t.TempDir(), bad.Client())

	_, err := in.IngestFirst(context.Background(), []string{bad.URL})
	assert.Error(t, err)
}

func TestFetchReusesCacheOn304(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(testManifest))
	}))
	defer srv.Close()

	cat := openTestCatalog(t)
	in := New(cat, t.TempDir(), srv.Client())

	_, err := in.fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	in2 := New(cat, in.cacheDir, srv.Client())
	m, err := in2.fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, m.Mods, 1)
	assert.Equal(t, 2, calls)
}
