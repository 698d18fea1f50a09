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

const schemaVersion = 1

// createTableStmts mirrors the teacher's SQLCreateTables pattern: one
// statement per table, applied once at open time.
func createTableStmts() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS digests (
 id INTEGER PRIMARY KEY,
 digest BLOB NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS sources (
 id INTEGER PRIMARY KEY,
 blob INTEGER NOT NULL REFERENCES digests(id),
 location INTEGER NOT NULL,
 path TEXT NOT NULL,
 format INTEGER NOT NULL,
 size INTEGER NOT NULL,
 UNIQUE(location, path, blob)
)`,
		`CREATE INDEX IF NOT EXISTS sources_by_blob ON sources(blob)`,
		`CREATE TABLE IF NOT EXISTS archive_entries (
 child INTEGER NOT NULL REFERENCES digests(id),
 parent INTEGER NOT NULL REFERENCES digests(id),
 inner_path TEXT NOT NULL,
 kind INTEGER NOT NULL,
 UNIQUE(child, parent)
)`,
		`CREATE INDEX IF NOT EXISTS archive_entries_by_child ON archive_entries(child)`,
		`CREATE INDEX IF NOT EXISTS archive_entries_by_parent ON archive_entries(parent)`,
		`CREATE TABLE IF NOT EXISTS releases (
 id INTEGER PRIMARY KEY,
 name TEXT NOT NULL,
 version TEXT NOT NULL,
 type INTEGER NOT NULL,
 parent TEXT NOT NULL DEFAULT '',
 UNIQUE(name, version)
)`,
		`CREATE TABLE IF NOT EXISTS packages (
 id INTEGER PRIMARY KEY,
 release_id INTEGER NOT NULL REFERENCES releases(id),
 name TEXT NOT NULL,
 folder TEXT NOT NULL DEFAULT '',
 is_vp INTEGER NOT NULL DEFAULT 0,
 status INTEGER NOT NULL DEFAULT 0,
 UNIQUE(release_id, name)
)`,
		`CREATE TABLE IF NOT EXISTS files (
 package_id INTEGER NOT NULL REFERENCES packages(id),
 blob INTEGER NOT NULL REFERENCES digests(id),
 install_path TEXT NOT NULL,
 UNIQUE(package_id, install_path)
)`,
		`CREATE TABLE IF NOT EXISTS package_dependencies (
 id INTEGER PRIMARY KEY,
 package_id INTEGER NOT NULL REFERENCES packages(id),
 mod_id TEXT NOT NULL,
 version TEXT NOT NULL DEFAULT '',
 UNIQUE(package_id, mod_id, version)
)`,
		`CREATE INDEX IF NOT EXISTS package_dependencies_by_package ON package_dependencies(package_id)`,
		`CREATE TABLE IF NOT EXISTS package_dependency_packages (
 dependency_id INTEGER NOT NULL REFERENCES package_dependencies(id),
 package_name TEXT NOT NULL,
 UNIQUE(dependency_id, package_name)
)`,
		`CREATE TABLE IF NOT EXISTS meta (
 key TEXT NOT NULL PRIMARY KEY,
 value TEXT NOT NULL
)`,
	}
}
