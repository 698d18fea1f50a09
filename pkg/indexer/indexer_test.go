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

package indexer

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modvault.dev/modvault/pkg/catalog"
	"modvault.dev/modvault/pkg/digest"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Open(filepath.Join(dir, "mods.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestIndexFilePlainRaw(t *testing.T) {
	cat := openTestCatalog(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "readme.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	var res Result
	require.NoError(t, cat.WithTx(context.Background(), func(tx *catalog.Tx) error {
		var err error
		res, err = IndexFile(tx, path, catalog.Local)
		return err
	}))

	want := digest.FromBytes([]byte("hello world"))
	assert.Equal(t, want, res.Digest)
	assert.Empty(t, res.Children)

	require.NoError(t, cat.WithTx(context.Background(), func(tx *catalog.Tx) error {
		srcs, err := tx.SourcesByDigest(want)
		require.NoError(t, err)
		require.Len(t, srcs, 1)
		assert.Equal(t, catalog.Local, srcs[0].Location)
		assert.Equal(t, path, srcs[0].Path)
		return nil
	}))
}

func writeTestVPFile(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	const headerSize = 16
	const recordSize = 44
	const nameLen = 32

	var body []byte
	type rec struct {
		name   string
		offset uint32
		size   uint32
	}
	var recs []rec
	for name, data := range files {
		recs = append(recs, rec{name: name, offset: uint32(headerSize + len(body)), size: uint32(len(data))})
		body = append(body, data...)
	}

	var out []byte
	var hdr [headerSize]byte
	copy(hdr[0:4], "VPVP")
	binary.LittleEndian.PutUint32(hdr[4:8], 2)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(headerSize+len(body)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(recs)))
	out = append(out, hdr[:]...)
	out = append(out, body...)

	for _, r := range recs {
		var rb [recordSize]byte
		binary.LittleEndian.PutUint32(rb[0:4], r.offset)
		binary.LittleEndian.PutUint32(rb[4:8], r.size)
		copy(rb[8:8+nameLen], []byte(r.name))
		out = append(out, rb[:]...)
	}

	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func TestIndexFileVPRecursesIntoEntries(t *testing.T) {
	cat := openTestCatalog(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "root-fs2.vp")
	writeTestVPFile(t, path, map[string][]byte{
		"data/a.tbl": []byte("contents of a"),
		"data/b.tbl": []byte("contents of b"),
	})

	var res Result
	require.NoError(t, cat.WithTx(context.Background(), func(tx *catalog.Tx) error {
		var err error
		res, err = IndexFile(tx, path, catalog.Temp)
		return err
	}))

	require.Len(t, res.Children, 2)

	require.NoError(t, cat.WithTx(context.Background(), func(tx *catalog.Tx) error {
		parents, err := tx.ParentsByBlobIDs([]digest.BlobID{
			mustBlobID(t, tx, digest.FromBytes([]byte("contents of a"))),
		})
		require.NoError(t, err)
		require.Len(t, parents, 1)
		assert.Equal(t, res.Blob, parents[0].Parent)
		assert.Equal(t, catalog.KindVP, parents[0].Kind)
		assert.Contains(t, []string{"data/a.tbl", "data/b.tbl"}, parents[0].InnerPath)
		return nil
	}))
}

func mustBlobID(t *testing.T, tx *catalog.Tx, d digest.Digest) digest.BlobID {
	t.Helper()
	id, ok, err := tx.BlobIDForDigest(d)
	require.NoError(t, err)
	require.True(t, ok)
	return id
}

func TestIndexDirectoryWalksRecursively(t *testing.T) {
	cat := openTestCatalog(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("nested"), 0o644))

	require.NoError(t, IndexDirectory(context.Background(), cat, root, catalog.Local, 2))

	require.NoError(t, cat.WithTx(context.Background(), func(tx *catalog.Tx) error {
		for _, want := range []string{"top", "nested"} {
			srcs, err := tx.SourcesByDigest(digest.FromBytes([]byte(want)))
			require.NoError(t, err)
			assert.Len(t, srcs, 1)
		}
		return nil
	}))
}
