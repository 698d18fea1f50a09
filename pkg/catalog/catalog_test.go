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

package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modvault.dev/modvault/pkg/digest"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "mods.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUpsertDigestsIdempotent(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	d1 := digest.FromBytes([]byte("a"))
	d2 := digest.FromBytes([]byte("b"))

	var first, second []digest.BlobID
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		first, err = tx.UpsertDigests([]digest.Digest{d1, d2})
		return err
	}))
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		second, err = tx.UpsertDigests([]digest.Digest{d2, d1})
		return err
	}))

	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])
	assert.NotEqual(t, first[0], first[1])
}

func TestInsertSourcesIdempotentOnTriple(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	d := digest.FromBytes([]byte("hello\n"))

	var id digest.BlobID
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		ids, err := tx.UpsertDigests([]digest.Digest{d})
		if err != nil {
			return err
		}
		id = ids[0]
		return tx.InsertSources([]Source{
			{Blob: id, Location: Local, Path: "/x/foo", Format: Raw, Size: 6},
		})
	}))

	// Re-inserting the identical triple twice more must not duplicate rows.
	for i := 0; i < 2; i++ {
		require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
			return tx.InsertSources([]Source{
				{Blob: id, Location: Local, Path: "/x/foo", Format: Raw, Size: 6},
			})
		}))
	}

	var sources []Source
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		sources, err = tx.SourcesByDigest(d)
		return err
	}))
	assert.Len(t, sources, 1)
}

func TestParentsByBlobIDsWalksFrontier(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	dChild := digest.FromBytes([]byte("child"))
	dParent := digest.FromBytes([]byte("parent"))
	dGrandparent := digest.FromBytes([]byte("grandparent"))

	var child, parent, grandparent digest.BlobID
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		ids, err := tx.UpsertDigests([]digest.Digest{dChild, dParent, dGrandparent})
		if err != nil {
			return err
		}
		child, parent, grandparent = ids[0], ids[1], ids[2]
		return tx.InsertArchiveEntries([]ArchiveEntry{
			{Child: child, Parent: parent, InnerPath: "data/x.tbl", Kind: KindVP},
			{Child: parent, Parent: grandparent, InnerPath: "v.vp", Kind: KindSevenZip},
		})
	}))

	var firstHop, secondHop []ArchiveEntry
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		firstHop, err = tx.ParentsByBlobIDs([]digest.BlobID{child})
		if err != nil {
			return err
		}
		secondHop, err = tx.ParentsByBlobIDs([]digest.BlobID{parent})
		return err
	}))

	require.Len(t, firstHop, 1)
	assert.Equal(t, parent, firstHop[0].Parent)
	require.Len(t, secondHop, 1)
	assert.Equal(t, grandparent, secondHop[0].Parent)

	var noParents []ArchiveEntry
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		noParents, err = tx.ParentsByBlobIDs([]digest.BlobID{grandparent})
		return err
	}))
	assert.Empty(t, noParents)
}

func TestReleasePackageFileRoundTrip(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	d := digest.FromBytes([]byte("payload"))

	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		ids, err := tx.UpsertDigests([]digest.Digest{d})
		if err != nil {
			return err
		}
		relID, err := tx.InsertRelease(Release{Name: "freespace-open", Version: "23.0.0", Type: ReleaseBuild})
		if err != nil {
			return err
		}
		pkgID, err := tx.InsertPackage(Package{ReleaseID: relID, Name: "core"})
		if err != nil {
			return err
		}
		return tx.InsertFile(File{PackageID: pkgID, Blob: ids[0], InstallPath: "data/x.tbl"})
	}))

	var releases []Release
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		releases, err = tx.GetReleases()
		return err
	}))
	require.Len(t, releases, 1)
	assert.Equal(t, "freespace-open", releases[0].Name)
}

func TestPackageDependenciesRoundTrip(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	var packageID int64
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		relID, err := tx.InsertRelease(Release{Name: "mediavps", Version: "2022", Type: ReleaseMod})
		if err != nil {
			return err
		}
		packageID, err = tx.InsertPackage(Package{ReleaseID: relID, Name: "core"})
		if err != nil {
			return err
		}
		return tx.InsertPackageDependencies(packageID, []PackageDependency{
			{ModID: "fso-engine", Version: "23.0.0", Packages: []string{"binaries"}},
			{ModID: "fsport-media", Version: ""},
		})
	}))

	var deps []PackageDependency
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		deps, err = tx.DependenciesByPackage(packageID)
		return err
	}))

	require.Len(t, deps, 2)
	byMod := make(map[string]PackageDependency, len(deps))
	for _, d := range deps {
		byMod[d.ModID] = d
	}
	require.Contains(t, byMod, "fso-engine")
	assert.Equal(t, "23.0.0", byMod["fso-engine"].Version)
	assert.Equal(t, []string{"binaries"}, byMod["fso-engine"].Packages)
	require.Contains(t, byMod, "fsport-media")
	assert.Empty(t, byMod["fsport-media"].Packages)

	// Re-ingesting replaces the dependency set rather than accumulating.
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertPackageDependencies(packageID, []PackageDependency{
			{ModID: "fso-engine", Version: "23.2.0"},
		})
	}))
	require.NoError(t, c.WithTx(ctx, func(tx *Tx) (err error) {
		deps, err = tx.DependenciesByPackage(packageID)
		return err
	}))
	require.Len(t, deps, 1)
	assert.Equal(t, "fso-engine", deps[0].ModID)
	assert.Equal(t, "23.2.0", deps[0].Version)
}
