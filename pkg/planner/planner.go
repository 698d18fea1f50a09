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

// Package planner drives the end-to-end install flow: resolving a
// manifest selection to required digests, walking the containment DAG to
// discover what's already local, solving for the cheapest remote cover of
// what's missing, fetching and re-indexing it, and materializing the
// final install tree (spec.md §4.7).
package planner

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"modvault.dev/modvault/pkg/catalog"
	"modvault.dev/modvault/pkg/config"
	"modvault.dev/modvault/pkg/containment"
	"modvault.dev/modvault/pkg/digest"
	"modvault.dev/modvault/pkg/indexer"
	"modvault.dev/modvault/pkg/readerpool"
	"modvault.dev/modvault/pkg/sevenzip"
	"modvault.dev/modvault/pkg/solver"
)

// Request names one install: a release, optionally scoped to a subset of
// its packages (empty means every "required" or "recommended" package the
// release declares; see packageNamesForRelease).
type Request struct {
	ReleaseName    string
	ReleaseVersion string
	PackageNames   []string
	InstallRoot    string
}

// Planner executes install requests against a catalog. One Planner is
// typically shared for the life of a process; it owns the reader pool
// that materialization streams through and the in-memory quarantine list
// transient hash mismatches accumulate into.
type Planner struct {
	cat    *catalog.Catalog
	cfg    *config.AppConfig
	client *http.Client
	pool   *readerpool.Pool

	mu          sync.Mutex
	quarantined map[string]bool
}

// New returns a Planner backed by cat and cfg. It starts its own reader
// pool, stopped when ctx is cancelled.
func New(ctx context.Context, cat *catalog.Catalog, cfg *config.AppConfig, client *http.Client) *Planner {
	client = newRateLimitedClient(client, cfg.FetchRateLimitKBps())
	p := &Planner{
		cat:         cat,
		cfg:         cfg,
		client:      client,
		quarantined: make(map[string]bool),
	}
	p.pool = readerpool.New(NewCatalogResolver(cat), cfg.InboxSize())
	p.pool.Start(ctx)
	return p
}

// requiredFile is one file the install needs materialized, with the
// package-declared folder it belongs under.
type requiredFile struct {
	file   catalog.File
	folder string
}

// Plan executes the full install flow for req and writes every resulting
// file under req.InstallRoot.
func (p *Planner) Plan(ctx context.Context, req Request) error {
	release, required, err := p.requiredFiles(ctx, req)
	if err != nil {
		return err
	}
	if len(required) == 0 {
		return nil
	}

	blobIDs := make([]digest.BlobID, len(required))
	for i, rf := range required {
		blobIDs[i] = rf.file.Blob
	}

	dag, err := p.buildDAG(ctx, blobIDs)
	if err != nil {
		return err
	}

	missing, err := p.missingSet(ctx, dag, blobIDs)
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		if err := p.acquire(ctx, dag, missing); err != nil {
			return err
		}
	}

	return p.materialize(ctx, req.InstallRoot, release, required)
}

// requiredFiles resolves req to the release row and the flattened list of
// files every selected package declares (spec.md §4.7 step 1).
func (p *Planner) requiredFiles(ctx context.Context, req Request) (catalog.Release, []requiredFile, error) {
	var release catalog.Release
	var out []requiredFile
	err := p.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		r, ok, err := tx.GetReleaseByName(req.ReleaseName, req.ReleaseVersion)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
		}
		if !ok {
			return fmt.Errorf("planner: unknown release %s-%s", req.ReleaseName, req.ReleaseVersion)
		}
		release = r

		names := req.PackageNames
		if len(names) == 0 {
			names, err = packageNamesForRelease(tx, r.ID)
			if err != nil {
				return err
			}
		}

		for _, name := range names {
			pkg, ok, err := tx.GetPackage(r.ID, name)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
			}
			if !ok {
				return fmt.Errorf("planner: unknown package %s in release %s-%s", name, r.Name, r.Version)
			}
			files, err := tx.FilesByPackage(pkg.ID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
			}
			for _, f := range files {
				out = append(out, requiredFile{file: f, folder: pkg.Folder})
			}
		}
		return nil
	})
	return release, out, err
}

// packageNamesForRelease implements the default package selection when a
// Request names no packages explicitly: every "required" or
// "recommended" package, matching the manifest's status field (spec.md
// §6). "optional" packages are installed only when named explicitly.
func packageNamesForRelease(tx *catalog.Tx, releaseID int64) ([]string, error) {
	pkgs, err := tx.PackagesByRelease(releaseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	var names []string
	for _, p := range pkgs {
		if p.Status == catalog.StatusRequired || p.Status == catalog.StatusRecommended {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("planner: release %d has no required/recommended packages; specify PackageNames explicitly", releaseID)
	}
	return names, nil
}

// buildDAG iteratively queries parents_by_blob_ids over a growing
// frontier until no new parents appear (spec.md §4.7 step 3).
func (p *Planner) buildDAG(ctx context.Context, required []digest.BlobID) (*containment.DAG, error) {
	dag := containment.New()
	for _, id := range required {
		dag.Add(id)
	}

	frontier := append([]digest.BlobID(nil), required...)
	for len(frontier) > 0 {
		var entries []catalog.ArchiveEntry
		err := p.cat.WithTx(ctx, func(tx *catalog.Tx) error {
			var err error
			entries, err = tx.ParentsByBlobIDs(frontier)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
		}

		var next []digest.BlobID
		for _, e := range entries {
			_, hadParent := dagHasNode(dag, e.Parent)
			dag.AddEdge(e.Child, e.Parent, containment.EdgeLabel{
				Kind:      containment.ArchiveKind(e.Kind),
				InnerPath: e.InnerPath,
			})
			if !hadParent {
				next = append(next, e.Parent)
			}
		}
		frontier = next
	}
	return dag, nil
}

func dagHasNode(dag *containment.DAG, node digest.BlobID) (digest.BlobID, bool) {
	for _, n := range dag.Nodes() {
		if n == node {
			return n, true
		}
	}
	return 0, false
}

// missingSet computes step 4: start from required, mark every descendant
// of a locally-sourced node as available, and return what's left.
func (p *Planner) missingSet(ctx context.Context, dag *containment.DAG, required []digest.BlobID) ([]digest.BlobID, error) {
	missing := make(map[digest.BlobID]struct{}, len(required))
	for _, id := range required {
		missing[id] = struct{}{}
	}

	nodes := dag.Nodes()
	err := p.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		sources, err := tx.SourcesByBlobIDs(nodes)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
		}
		for _, s := range sources {
			if !s.Location.IsLocal() {
				continue
			}
			delete(missing, s.Blob)
			for d := range dag.Descendants(s.Blob) {
				delete(missing, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]digest.BlobID, 0, len(missing))
	for id := range missing {
		out = append(out, id)
	}
	return out, nil
}

// acquire runs steps 5-9: gather remote candidates, solve, fetch,
// extract, and re-index, retrying on quarantine until the missing set is
// satisfied or no candidates remain.
func (p *Planner) acquire(ctx context.Context, dag *containment.DAG, missing []digest.BlobID) error {
	var lastMismatch error
	for {
		candidates, bySourceKey, err := p.remoteCandidates(ctx, dag, missing)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			if lastMismatch != nil {
				return fmt.Errorf("%w: %v", ErrUnsatisfiableCoverage, lastMismatch)
			}
			return ErrUnsatisfiableCoverage
		}

		var chosen []solver.SourceID
		err = runOnWorker(func() error {
			var solveErr error
			chosen, solveErr = solver.Solve(candidates, missing)
			return solveErr
		})
		if err != nil {
			if err == solver.ErrUnsatisfiable {
				if lastMismatch != nil {
					return fmt.Errorf("%w: %v", ErrUnsatisfiableCoverage, lastMismatch)
				}
				return ErrUnsatisfiableCoverage
			}
			return err
		}

		mismatches, err := p.fetchAndReindex(ctx, chosen, bySourceKey)
		if err != nil {
			return err
		}
		if len(mismatches) == 0 {
			return nil
		}
		// One or more fetched sources failed hash verification and
		// were quarantined; loop to re-solve against the remaining
		// candidates, which no longer offer the bad sources. Keep
		// the last mismatch around so a final exhaustion reports why,
		// rather than just "no coverage" with no cause.
		lastMismatch = mismatches[len(mismatches)-1]
	}
}

type sourceRef struct {
	blob digest.BlobID
	src  catalog.Source
}

// remoteCandidates implements step 5: for every missing blob, gather its
// ancestors, collect non-local sources among them, and key each by a
// stable SourceID the solver can return.
func (p *Planner) remoteCandidates(ctx context.Context, dag *containment.DAG, missing []digest.BlobID) ([]solver.Source, map[solver.SourceID]sourceRef, error) {
	ancestorSet := make(map[digest.BlobID]struct{})
	for _, m := range missing {
		ancestorSet[m] = struct{}{}
		for a := range dag.Ancestors(m) {
			ancestorSet[a] = struct{}{}
		}
	}
	ids := make([]digest.BlobID, 0, len(ancestorSet))
	for id := range ancestorSet {
		ids = append(ids, id)
	}

	var allSources []catalog.Source
	err := p.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		var err error
		allSources, err = tx.SourcesByBlobIDs(ids)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}

	missingSet := make(map[digest.BlobID]struct{}, len(missing))
	for _, m := range missing {
		missingSet[m] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var out []solver.Source
	refs := make(map[solver.SourceID]sourceRef)
	for i, s := range allSources {
		if s.Location.IsLocal() || p.quarantined[s.Path] {
			continue
		}
		covers := map[digest.BlobID]struct{}{}
		for d := range dag.Descendants(s.Blob) {
			if _, ok := missingSet[d]; ok {
				covers[d] = struct{}{}
			}
		}
		if _, ok := missingSet[s.Blob]; ok {
			covers[s.Blob] = struct{}{}
		}
		if len(covers) == 0 {
			continue
		}
		id := solver.SourceID(fmt.Sprintf("src-%d-%s", i, s.Path))
		out = append(out, solver.Source{ID: id, Size: s.Size, Covers: covers})
		refs[id] = sourceRef{blob: s.Blob, src: s}
	}
	return out, refs, nil
}

// fetchAndReindex runs steps 7-9 for the sources the solver chose. It
// returns the hash-mismatch error for every source that failed
// verification and was quarantined this round, if any.
func (p *Planner) fetchAndReindex(ctx context.Context, chosen []solver.SourceID, refs map[solver.SourceID]sourceRef) ([]error, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FetchParallelism())

	var mu sync.Mutex
	var mismatches []error

	for _, id := range chosen {
		ref := refs[id]
		g.Go(func() error {
			mismatch, err := p.fetchOne(gctx, ref)
			if err != nil {
				return err
			}
			if mismatch != nil {
				mu.Lock()
				mismatches = append(mismatches, mismatch)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mismatches, nil
}

// fetchOne downloads ref's bytes, verifies them against the digest the
// catalog already expects at ref.blob, and — only once verified — extracts
// (for 7z) and re-indexes the result as Temp content (spec.md §4.7 steps
// 7-9). Verification applies to every source format uniformly: a
// corrupted or malicious 7z response is caught before it is ever trusted
// enough to extract and re-index, the same as a plain file fetch (spec.md
// §4.7 failure semantics, scenario 5).
//
// It returns a non-nil *ContentHashMismatch (never a non-nil err
// alongside it) when the source was quarantined for a bad hash, so the
// caller can re-solve rather than abort the whole install.
func (p *Planner) fetchOne(ctx context.Context, ref sourceRef) (mismatch error, err error) {
	expected, _, err := p.digestOf(ctx, ref.blob)
	if err != nil {
		return nil, err
	}
	destPath := config.TempPathForDigest(p.cfg.AppDir(), expected)
	if err := downloadFile(ctx, p.client, ref.src.Path, destPath); err != nil {
		return nil, &NetworkFailure{URL: ref.src.Path, Err: err}
	}

	if !expected.Zero() {
		got, err := hashFile(destPath)
		if err != nil {
			return nil, &IOFailure{Path: destPath, Err: err}
		}
		if got != expected {
			hashErr := &ContentHashMismatch{Want: expected, Got: got, Path: ref.src.Path}
			log.Printf("planner: %v; quarantining and retrying with an alternative source", hashErr)
			p.quarantine(ref.src.Path)
			return hashErr, nil
		}
	}

	reindexPath := destPath
	if ref.src.Format == catalog.SevenZip {
		extractDir := destPath + ".extract"
		if err := sevenzip.ExtractAll(destPath, extractDir); err != nil {
			return nil, &IOFailure{Path: destPath, Err: err}
		}
		reindexPath = extractDir
	}

	err = p.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		if ref.src.Format == catalog.SevenZip {
			return indexer.IndexDirectory(ctx, p.cat, reindexPath, catalog.Temp, p.cfg.FetchParallelism())
		}
		_, err := indexer.IndexFile(tx, reindexPath, catalog.Temp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}

	return nil, nil
}

// hashFile computes the SHA-256 digest of the file at path.
func hashFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, err
	}
	defer f.Close()
	d, _, err := digest.HashReader(f)
	return d, err
}

func (p *Planner) digestOf(ctx context.Context, blob digest.BlobID) (digest.Digest, bool, error) {
	var d digest.Digest
	var ok bool
	err := p.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		var err error
		d, ok, err = tx.DigestForBlobID(blob)
		return err
	})
	return d, ok, err
}

func (p *Planner) quarantine(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quarantined[path] = true
}

// materialize runs step 10: for each required file, compute its final
// install path and stream the bytes through the reader pool.
func (p *Planner) materialize(ctx context.Context, installRoot string, release catalog.Release, required []requiredFile) error {
	for _, rf := range required {
		d, ok, err := p.digestForBlob(ctx, rf.file.Blob)
		if err != nil {
			return err
		}
		if !ok {
			return &UnknownContent{Digest: d}
		}

		dest := installPath(installRoot, rf, release)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return &IOFailure{Path: dest, Err: err}
		}

		sink := make(chan readerpool.Chunk)
		if err := p.pool.Submit(ctx, readerpool.Request{Target: d, Sink: sink}); err != nil {
			return err
		}
		if err := writeSink(dest, sink); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) digestForBlob(ctx context.Context, blob digest.BlobID) (digest.Digest, bool, error) {
	var d digest.Digest
	var ok bool
	err := p.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		var err error
		d, ok, err = tx.DigestForBlobID(blob)
		return err
	})
	return d, ok, err
}

// installPath computes spec.md §6's final layout:
// <install_root>/<parent or "">/<release_name>/<release_name>-<version>/<file...>
// A non-empty package folder is inserted between the release directory
// and the file's own relative path (design-notes §9: folder == "" or
// unset both mean "install at the package's release root").
func installPath(installRoot string, rf requiredFile, release catalog.Release) string {
	return filepath.Join(
		installRoot,
		release.Parent,
		release.Name,
		fmt.Sprintf("%s-%s", release.Name, release.Version),
		rf.folder,
		rf.file.InstallPath,
	)
}

func writeSink(dest string, sink <-chan readerpool.Chunk) error {
	f, err := os.Create(dest)
	if err != nil {
		return &IOFailure{Path: dest, Err: err}
	}
	defer f.Close()

	for c := range sink {
		if c.Err != nil {
			return &IOFailure{Path: dest, Err: c.Err}
		}
		if _, err := f.Write(c.Data); err != nil {
			return &IOFailure{Path: dest, Err: err}
		}
	}
	return nil
}

// downloadFile streams url to destPath, writing atomically via a
// sibling temp file renamed into place on success.
func downloadFile(ctx context.Context, client *http.Client, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}

	tmp := destPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}

// runOnWorker runs fn synchronously; it exists as the single seam where
// the solver's CPU-bound search is handed to a blocking worker rather
// than run inline on the caller's goroutine (spec.md §4.7 step 6, §5).
func runOnWorker(fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return <-done
}
