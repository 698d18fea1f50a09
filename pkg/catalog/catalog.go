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

// Package catalog is the persistent, transactional store mapping every
// known file (by digest) to every source that can deliver it, plus the
// release/package/file metadata imported from repository manifests.
//
// It is built over database/sql and modernc.org/sqlite, following the
// teacher's pkg/sorted/sqlite schema-at-open-time convention: WAL
// journaling and foreign keys are turned on when the database is opened,
// and every mutating method takes an explicit transaction handle so
// callers group related writes into one durable unit.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"modvault.dev/modvault/pkg/digest"
)

// maxBindParams keeps each batch under SQLite's historical compiled
// default of 999 host parameters per statement; batch queries chunk to it.
const maxBindParams = 900

// Catalog is a connection pool over the embedded relational engine.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if necessary) the catalog database at path and
// applies the schema. WAL journaling and foreign-key enforcement are
// enabled per spec, and the pool is capped at 64 connections so writers do
// not starve readers.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(64)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}
	for _, stmt := range createTableStmts() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: apply schema: %w", err)
		}
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error { return c.db.Close() }

// Tx is a single logical transaction: a repo import, indexing one fetched
// archive, or installing one mod. All catalog writes inside it are atomic
// and totally ordered; there is no ordering guarantee across transactions.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a new transaction. Callers must Commit or Rollback it.
func (c *Catalog) Begin(ctx context.Context) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// WithTx runs fn inside a new transaction, committing on success and
// rolling back (and surfacing fn's error) on any failure. This is the
// normal entry point for one logical catalog event.
func (c *Catalog) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// UpsertDigests inserts any digests not already known and returns the
// BlobID for every one of them, in order. Idempotent: re-inserting an
// already-known digest returns its existing BlobID.
func (t *Tx) UpsertDigests(digests []digest.Digest) ([]digest.BlobID, error) {
	ids := make([]digest.BlobID, len(digests))
	for chunkStart, chunk := range chunks(len(digests), maxBindParams) {
		for i := chunkStart; i < chunkStart+chunk; i++ {
			d := digests[i]
			if _, err := t.tx.Exec(
				`INSERT INTO digests(digest) VALUES (?) ON CONFLICT(digest) DO NOTHING`,
				d.Bytes()); err != nil {
				return nil, fmt.Errorf("catalog: upsert digest: %w", err)
			}
			var id int64
			if err := t.tx.QueryRow(`SELECT id FROM digests WHERE digest = ?`, d.Bytes()).Scan(&id); err != nil {
				return nil, fmt.Errorf("catalog: read back digest id: %w", err)
			}
			ids[i] = digest.BlobID(id)
		}
	}
	return ids, nil
}

// chunks yields (start, length) pairs splitting [0,n) into pieces of at
// most size, mirroring the teacher's chunked bind-parameter inserts.
func chunks(n, size int) map[int]int {
	out := make(map[int]int)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out[start] = end - start
	}
	return out
}

// InsertSources inserts each Source, ignoring duplicates on
// (location, path, blob).
func (t *Tx) InsertSources(sources []Source) error {
	for _, s := range sources {
		if _, err := t.tx.Exec(
			`INSERT INTO sources(blob, location, path, format, size)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(location, path, blob) DO NOTHING`,
			int64(s.Blob), int(s.Location), s.Path, int(s.Format), s.Size); err != nil {
			return fmt.Errorf("catalog: insert source %s: %w", s.Path, err)
		}
	}
	return nil
}

// InsertArchiveEntries inserts each ArchiveEntry, ignoring duplicates on
// (child, parent).
func (t *Tx) InsertArchiveEntries(entries []ArchiveEntry) error {
	for _, e := range entries {
		if _, err := t.tx.Exec(
			`INSERT INTO archive_entries(child, parent, inner_path, kind)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(child, parent) DO NOTHING`,
			int64(e.Child), int64(e.Parent), e.InnerPath, int(e.Kind)); err != nil {
			return fmt.Errorf("catalog: insert archive entry: %w", err)
		}
	}
	return nil
}

// SourcesByDigest returns every known source for d. It resolves d to a
// BlobID first; an unknown digest yields no sources and no error.
func (t *Tx) SourcesByDigest(d digest.Digest) ([]Source, error) {
	var id int64
	err := t.tx.QueryRow(`SELECT id FROM digests WHERE digest = ?`, d.Bytes()).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: lookup digest: %w", err)
	}
	return t.SourcesByBlobIDs([]digest.BlobID{digest.BlobID(id)})
}

// SourcesByBlobIDs returns every known source for each of ids.
func (t *Tx) SourcesByBlobIDs(ids []digest.BlobID) ([]Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Source
	for start, n := range chunks(len(ids), maxBindParams) {
		q, args := inClause(`SELECT blob, location, path, format, size FROM sources WHERE blob IN (`, ids[start:start+n])
		rows, err := t.tx.Query(q, args...)
		if err != nil {
			return nil, fmt.Errorf("catalog: sources by blob ids: %w", err)
		}
		if err := scanSources(rows, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanSources(rows *sql.Rows, out *[]Source) error {
	defer rows.Close()
	for rows.Next() {
		var s Source
		var blob, location, format int64
		if err := rows.Scan(&blob, &location, &s.Path, &format, &s.Size); err != nil {
			return fmt.Errorf("catalog: scan source: %w", err)
		}
		s.Blob = digest.BlobID(blob)
		s.Location = LocationKind(location)
		s.Format = Format(format)
		*out = append(*out, s)
	}
	return rows.Err()
}

// ParentsByBlobIDs returns every archive-entry edge whose child is one of
// ids. The planner calls this repeatedly against a growing frontier until
// no new parents appear (spec.md §4.7 step 3).
func (t *Tx) ParentsByBlobIDs(ids []digest.BlobID) ([]ArchiveEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []ArchiveEntry
	for start, n := range chunks(len(ids), maxBindParams) {
		q, args := inClause(`SELECT child, parent, inner_path, kind FROM archive_entries WHERE child IN (`, ids[start:start+n])
		rows, err := t.tx.Query(q, args...)
		if err != nil {
			return nil, fmt.Errorf("catalog: parents by blob ids: %w", err)
		}
		if err := func() error {
			defer rows.Close()
			for rows.Next() {
				var e ArchiveEntry
				var child, parent, kind int64
				if err := rows.Scan(&child, &parent, &e.InnerPath, &kind); err != nil {
					return fmt.Errorf("catalog: scan archive entry: %w", err)
				}
				e.Child = digest.BlobID(child)
				e.Parent = digest.BlobID(parent)
				e.Kind = ArchiveKind(kind)
				out = append(out, e)
			}
			return rows.Err()
		}(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func inClause(prefix string, ids []digest.BlobID) (string, []any) {
	args := make([]any, len(ids))
	q := prefix
	for i, id := range ids {
		if i > 0 {
			q += ","
		}
		q += "?"
		args[i] = int64(id)
	}
	q += ")"
	return q, args
}

// DigestForBlobID resolves a BlobID back to its Digest.
func (t *Tx) DigestForBlobID(id digest.BlobID) (digest.Digest, bool, error) {
	var b []byte
	err := t.tx.QueryRow(`SELECT digest FROM digests WHERE id = ?`, int64(id)).Scan(&b)
	if err == sql.ErrNoRows {
		return digest.Digest{}, false, nil
	}
	if err != nil {
		return digest.Digest{}, false, fmt.Errorf("catalog: digest for blob id: %w", err)
	}
	var d digest.Digest
	copy(d[:], b)
	return d, true, nil
}

// BlobIDForDigest resolves a Digest to its BlobID, if known.
func (t *Tx) BlobIDForDigest(d digest.Digest) (digest.BlobID, bool, error) {
	var id int64
	err := t.tx.QueryRow(`SELECT id FROM digests WHERE digest = ?`, d.Bytes()).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("catalog: blob id for digest: %w", err)
	}
	return digest.BlobID(id), true, nil
}

// Analyze refreshes the embedded engine's query-planner statistics,
// called after a successful repo import (spec.md §4.8).
func (t *Tx) Analyze() error {
	if _, err := t.tx.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("catalog: analyze: %w", err)
	}
	return nil
}
