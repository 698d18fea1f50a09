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

package planner

import (
	"context"
	"fmt"

	"modvault.dev/modvault/pkg/catalog"
	"modvault.dev/modvault/pkg/digest"
	"modvault.dev/modvault/pkg/readerpool"
)

// CatalogResolver implements readerpool.Resolver over the catalog: it
// prefers a direct local Raw source (ranked Temp, Local, Unmanaged per
// spec.md §2) and otherwise falls back to the cheapest local archive
// that contains the digest as a VP entry (spec.md §4.5 point 1).
//
// SevenZip containment is never returned here: by the time materialize
// runs, any needed 7z has already been extracted to loose files by the
// planner's acquisition stage, so its contents surface as ordinary local
// Raw sources instead.
type CatalogResolver struct {
	cat *catalog.Catalog
}

// NewCatalogResolver returns a readerpool.Resolver backed by cat, usable
// directly by CLI adapters that only need to stream bytes (e.g. `modvault
// cat`) without driving a full install.
func NewCatalogResolver(cat *catalog.Catalog) *CatalogResolver {
	return &CatalogResolver{cat: cat}
}

func (r *CatalogResolver) Resolve(ctx context.Context, d digest.Digest) (readerpool.DataPath, error) {
	var out readerpool.DataPath
	err := r.cat.WithTx(ctx, func(tx *catalog.Tx) error {
		blobID, ok, err := tx.BlobIDForDigest(d)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
		}
		if !ok {
			return &UnknownContent{Digest: d}
		}

		sources, err := tx.SourcesByBlobIDs([]digest.BlobID{blobID})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
		}
		if best, ok := bestLocalRawSource(sources); ok {
			out = readerpool.Raw(best.Path)
			return nil
		}

		path, inner, ok, err := r.resolveViaLocalParent(tx, blobID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("planner: no local source resolves digest %s", d)
		}
		out = readerpool.VPEntry(path, inner)
		return nil
	})
	return out, err
}

func bestLocalRawSource(sources []catalog.Source) (catalog.Source, bool) {
	var best catalog.Source
	found := false
	for _, s := range sources {
		if !s.Location.IsLocal() || s.Format != catalog.Raw {
			continue
		}
		if !found || s.Location < best.Location {
			best, found = s, true
		}
	}
	return best, found
}

// resolveViaLocalParent finds the archive-entry parent of blobID with the
// cheapest local Raw source among those connected by a VP edge.
func (r *CatalogResolver) resolveViaLocalParent(tx *catalog.Tx, blobID digest.BlobID) (path, inner string, ok bool, err error) {
	entries, err := tx.ParentsByBlobIDs([]digest.BlobID{blobID})
	if err != nil {
		return "", "", false, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}

	var bestSize int64 = -1
	for _, e := range entries {
		if e.Kind != catalog.KindVP {
			continue
		}
		parentSources, err := tx.SourcesByBlobIDs([]digest.BlobID{e.Parent})
		if err != nil {
			return "", "", false, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
		}
		src, found := bestLocalRawSource(parentSources)
		if !found {
			continue
		}
		if bestSize < 0 || src.Size < bestSize {
			bestSize = src.Size
			path, inner, ok = src.Path, e.InnerPath, true
		}
	}
	return path, inner, ok, nil
}
