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

// Package repoingest fetches a repository JSON manifest (trying each
// configured URL in order until one answers), caches it on disk with
// ETag-aware conditional requests, and translates it into catalog rows
// (spec.md §4.8). Concurrent ingests of the same URL are collapsed with
// go4.org/syncutil/singleflight, mirroring the teacher's
// pkg/cacher.CachingFetcher fault-in pattern.
package repoingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go4.org/syncutil/singleflight"

	"modvault.dev/modvault/internal/manifestjson"
	"modvault.dev/modvault/pkg/catalog"
	"modvault.dev/modvault/pkg/digest"
)

// Ingester fetches and imports repository manifests into a Catalog.
type Ingester struct {
	cat       *catalog.Catalog
	cacheDir  string
	client    *http.Client
	fetchOnce singleflight.Group
}

// New returns an Ingester that caches fetched manifests under cacheDir
// (spec.md §6's repo-cache subdirectory) and imports into cat.
func New(cat *catalog.Catalog, cacheDir string, client *http.Client) *Ingester {
	if client == nil {
		client = http.DefaultClient
	}
	return &Ingester{cat: cat, cacheDir: cacheDir, client: client}
}

// IngestFirst tries each URL in order until one responds, imports the
// resulting manifest into the catalog inside a single transaction, and
// refreshes query-planner statistics. It returns the URL that answered.
func (in *Ingester) IngestFirst(ctx context.Context, urls []string) (string, error) {
	var lastErr error
	for _, url := range urls {
		m, err := in.fetch(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		if err := in.Import(ctx, m); err != nil {
			return "", fmt.Errorf("repoingest: import %s: %w", url, err)
		}
		return url, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("repoingest: no repository URLs configured")
	}
	return "", fmt.Errorf("repoingest: no repository answered: %w", lastErr)
}

// fetch downloads (or reuses a cached copy of) the manifest at url.
// Concurrent callers fetching the same url share one in-flight request.
func (in *Ingester) fetch(ctx context.Context, url string) (*manifestjson.Manifest, error) {
	v, err := in.fetchOnce.Do(url, func() (interface{}, error) {
		return in.fetchUncached(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*manifestjson.Manifest), nil
}

func (in *Ingester) fetchUncached(ctx context.Context, url string) (*manifestjson.Manifest, error) {
	body, etag, cachePath, err := in.cachedBody(url)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("repoingest: build request for %s: %w", url, err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := in.client.Do(req)
	if err != nil {
		if body != nil {
			return manifestjson.Parse(body)
		}
		return nil, fmt.Errorf("repoingest: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if body == nil {
			return nil, fmt.Errorf("repoingest: %s answered 304 but no cached copy exists", url)
		}
		return manifestjson.Parse(body)
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("repoingest: read %s: %w", url, err)
		}
		if err := writeCached(cachePath, data, resp.Header.Get("ETag")); err != nil {
			return nil, err
		}
		return manifestjson.Parse(data)
	default:
		if body != nil {
			return manifestjson.Parse(body)
		}
		return nil, fmt.Errorf("repoingest: %s returned HTTP %d", url, resp.StatusCode)
	}
}

// cachedBody returns the previously cached manifest body and ETag for
// url, if any, plus the path the next successful fetch should be written
// to. A missing cache entry is not an error: body is nil.
func (in *Ingester) cachedBody(url string) (body []byte, etag string, cachePath string, err error) {
	cachePath = filepath.Join(in.cacheDir, cacheKey(url)+".json")
	etagPath := cachePath + ".etag"

	body, readErr := os.ReadFile(cachePath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, "", cachePath, nil
		}
		return nil, "", cachePath, fmt.Errorf("repoingest: read cache %s: %w", cachePath, readErr)
	}
	etagBytes, err := os.ReadFile(etagPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, "", cachePath, fmt.Errorf("repoingest: read cache etag %s: %w", etagPath, err)
	}
	return body, string(etagBytes), cachePath, nil
}

func writeCached(cachePath string, data []byte, etag string) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return fmt.Errorf("repoingest: mkdir %s: %w", filepath.Dir(cachePath), err)
	}
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		return fmt.Errorf("repoingest: write cache %s: %w", cachePath, err)
	}
	if etag != "" {
		if err := os.WriteFile(cachePath+".etag", []byte(etag), 0o644); err != nil {
			return fmt.Errorf("repoingest: write cache etag: %w", err)
		}
	}
	return nil
}

func cacheKey(url string) string {
	return digest.FromBytes([]byte(url)).String()
}

// Import translates a parsed manifest into release/package/file/source
// rows, all inside one transaction, and refreshes the embedded engine's
// query-planner statistics on success (spec.md §4.8).
func (in *Ingester) Import(ctx context.Context, m *manifestjson.Manifest) error {
	return in.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		for _, mod := range m.Mods {
			releaseID, err := tx.InsertRelease(catalog.Release{
				Name:    mod.ID,
				Version: mod.Version,
				Type:    releaseType(mod.Type),
				Parent:  mod.Parent,
			})
			if err != nil {
				return err
			}
			if err := importPackages(tx, releaseID, mod.Packages); err != nil {
				return err
			}
		}
		return tx.Analyze()
	})
}

func releaseType(t manifestjson.ModType) catalog.ReleaseType {
	switch t {
	case manifestjson.ModTypeTC:
		return catalog.ReleaseTC
	case manifestjson.ModTypeEngine:
		return catalog.ReleaseBuild
	default:
		return catalog.ReleaseMod
	}
}

func importPackages(tx *catalog.Tx, releaseID int64, pkgs []manifestjson.Package) error {
	for _, p := range pkgs {
		status, ok := catalog.ParsePackageStatus(string(p.Status))
		if !ok {
			status = catalog.StatusRequired
		}
		packageID, err := tx.InsertPackage(catalog.Package{
			ReleaseID: releaseID,
			Name:      p.Name,
			Folder:    p.Folder,
			IsVP:      p.IsVP,
			Status:    status,
		})
		if err != nil {
			return err
		}

		deps := make([]catalog.PackageDependency, len(p.Dependencies))
		for i, d := range p.Dependencies {
			deps[i] = catalog.PackageDependency{
				ModID:    d.ID,
				Version:  d.Version,
				Packages: d.Packages,
			}
		}
		if err := tx.InsertPackageDependencies(packageID, deps); err != nil {
			return fmt.Errorf("repoingest: package %s dependencies: %w", p.Name, err)
		}

		archiveBlobs := make(map[string]digest.BlobID, len(p.Files))
		for _, fa := range p.Files {
			d, err := checksumDigest(fa.Checksum)
			if err != nil {
				return fmt.Errorf("repoingest: file %s: %w", fa.Filename, err)
			}
			ids, err := tx.UpsertDigests([]digest.Digest{d})
			if err != nil {
				return err
			}
			blob := ids[0]
			archiveBlobs[fa.Filename] = blob

			sources := make([]catalog.Source, 0, len(fa.URLs))
			for _, url := range fa.URLs {
				sources = append(sources, catalog.Source{
					Blob:     blob,
					Location: catalog.FSN,
					Path:     url,
					Format:   archiveFormat(fa.Filename),
					Size:     fa.Filesize,
				})
			}
			if err := tx.InsertSources(sources); err != nil {
				return err
			}
		}

		for _, fe := range p.FileList {
			d, err := checksumDigest(fe.Checksum)
			if err != nil {
				return fmt.Errorf("repoingest: filelist entry %s: %w", fe.Filename, err)
			}
			ids, err := tx.UpsertDigests([]digest.Digest{d})
			if err != nil {
				return err
			}
			if err := tx.InsertFile(catalog.File{
				PackageID:   packageID,
				Blob:        ids[0],
				InstallPath: fe.Filename,
			}); err != nil {
				return err
			}

			if archiveBlob, ok := archiveBlobs[fe.Archive]; ok {
				if err := tx.InsertArchiveEntries([]catalog.ArchiveEntry{{
					Child:     ids[0],
					Parent:    archiveBlob,
					InnerPath: fe.OrigName,
					Kind:      archiveEntryKind(fe.Archive),
				}}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checksumDigest(c manifestjson.Checksum) (digest.Digest, error) {
	b, err := c.Bytes()
	if err != nil {
		return digest.Digest{}, fmt.Errorf("decode checksum: %w", err)
	}
	if len(b) != digest.Size {
		return digest.Digest{}, fmt.Errorf("checksum has %d bytes, want %d", len(b), digest.Size)
	}
	var d digest.Digest
	copy(d[:], b)
	return d, nil
}

func archiveFormat(filename string) catalog.Format {
	switch ext(filename) {
	case ".vp":
		return catalog.VP
	case ".7z":
		return catalog.SevenZip
	default:
		return catalog.Raw
	}
}

func archiveEntryKind(filename string) catalog.ArchiveKind {
	if ext(filename) == ".7z" {
		return catalog.KindSevenZip
	}
	return catalog.KindVP
}

func ext(name string) string {
	return strings.ToLower(path.Ext(name))
}
