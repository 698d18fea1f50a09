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

// Package indexer walks local content and records it in the catalog:
// every regular file becomes a digest, a blob ID and a Raw source, and
// every VP container additionally becomes a set of child digests joined
// to it by VPEntry archive edges (spec.md §4.6).
//
// Hashing reads files directly rather than through pkg/readerpool: the
// pool's Resolver resolves a digest to a DataPath by consulting the
// catalog, which is exactly what indexing is in the middle of populating.
// Routing through the pool here would be circular for no benefit, since
// indexing always already knows the concrete filesystem path it is
// hashing.
package indexer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"modvault.dev/modvault/pkg/catalog"
	"modvault.dev/modvault/pkg/digest"
	"modvault.dev/modvault/pkg/vpfile"
)

// DefaultWalkConcurrency bounds how many files a directory walk indexes
// concurrently.
const DefaultWalkConcurrency = 8

// Result summarizes what IndexFile discovered, for callers (the planner,
// mainly) that need the root blob ID without a second catalog round trip.
type Result struct {
	Digest digest.Digest
	Blob   digest.BlobID
	// Children holds the digests of every entry indexed out of a VP
	// container, in flatten order. Empty for a non-VP file.
	Children []digest.Digest
}

// IndexFile hashes path, records it in the catalog as a Raw source at the
// given location, and — if path looks like a VP container — recurses into
// its entries, recording each as a child blob with a VPEntry edge back to
// the parent.
//
// ".vpc" (compressed VP) containers are not yet supported; indexing one
// records the outer file only. TODO: implement once a production sample
// of the compressed-VP header variant is available to validate against.
func IndexFile(tx *catalog.Tx, path string, loc catalog.LocationKind) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("indexer: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("indexer: stat %s: %w", path, err)
	}

	h := digest.NewHasher()
	if _, err := io.Copy(h, f); err != nil {
		return Result{}, fmt.Errorf("indexer: hash %s: %w", path, err)
	}
	d := h.Sum()

	ids, err := tx.UpsertDigests([]digest.Digest{d})
	if err != nil {
		return Result{}, err
	}
	blob := ids[0]

	if err := tx.InsertSources([]catalog.Source{{
		Blob:     blob,
		Location: loc,
		Path:     path,
		Format:   catalog.Raw,
		Size:     info.Size(),
	}}); err != nil {
		return Result{}, err
	}

	res := Result{Digest: d, Blob: blob}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".vp":
		children, err := indexVP(tx, f, blob, path)
		if err != nil {
			return Result{}, err
		}
		res.Children = children
	case ".vpc":
		log.Printf("indexer: %s is a compressed VP (.vpc); indexing its entries is not yet supported", path)
	}

	return res, nil
}

func indexVP(tx *catalog.Tx, f *os.File, parent digest.BlobID, path string) ([]digest.Digest, error) {
	tree, err := vpfile.Index(f)
	if err != nil {
		return nil, fmt.Errorf("indexer: index VP %s: %w", path, err)
	}
	flat := tree.Flatten()

	digests := make([]digest.Digest, len(flat))
	for i, e := range flat {
		raw, err := vpfile.ReadEntry(f, e.Offset, e.Size)
		if err != nil {
			return nil, fmt.Errorf("indexer: read %s in %s: %w", e.Path, path, err)
		}
		data, err := vpfile.MaybeDecompress(raw)
		if err != nil {
			return nil, fmt.Errorf("indexer: decompress %s in %s: %w", e.Path, path, err)
		}
		h := digest.NewHasher()
		h.Write(data)
		digests[i] = h.Sum()
	}

	ids, err := tx.UpsertDigests(digests)
	if err != nil {
		return nil, err
	}

	entries := make([]catalog.ArchiveEntry, len(flat))
	for i, e := range flat {
		entries[i] = catalog.ArchiveEntry{
			Child:     ids[i],
			Parent:    parent,
			InnerPath: e.Path,
			Kind:      catalog.KindVP,
		}
	}
	if err := tx.InsertArchiveEntries(entries); err != nil {
		return nil, err
	}

	return digests, nil
}

// IndexDirectory walks root recursively and indexes every regular file it
// finds, up to concurrency files at a time (spec.md §4.6). concurrency <=
// 0 uses DefaultWalkConcurrency.
//
// Each file is indexed inside its own transaction: a directory walk can
// span tens of thousands of files, and holding one transaction open for
// the whole walk would make a single bad file roll back everything
// indexed before it.
func IndexDirectory(ctx context.Context, cat *catalog.Catalog, root string, loc catalog.LocationKind, concurrency int) error {
	if concurrency <= 0 {
		concurrency = DefaultWalkConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("indexer: walk %s: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}
		g.Go(func() error {
			return cat.WithTx(ctx, func(tx *catalog.Tx) error {
				_, err := IndexFile(tx, path, loc)
				return err
			})
		})
		return nil
	})
	if err != nil {
		return err
	}
	return g.Wait()
}
