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
	"database/sql"
	"fmt"

	"modvault.dev/modvault/pkg/digest"
)

// InsertRelease upserts a release by (name, version) and returns its ID.
func (t *Tx) InsertRelease(r Release) (int64, error) {
	if _, err := t.tx.Exec(
		`INSERT INTO releases(name, version, type, parent) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name, version) DO UPDATE SET type = excluded.type, parent = excluded.parent`,
		r.Name, r.Version, int(r.Type), r.Parent); err != nil {
		return 0, fmt.Errorf("catalog: insert release %s-%s: %w", r.Name, r.Version, err)
	}
	var id int64
	if err := t.tx.QueryRow(`SELECT id FROM releases WHERE name = ? AND version = ?`, r.Name, r.Version).Scan(&id); err != nil {
		return 0, fmt.Errorf("catalog: read back release id: %w", err)
	}
	return id, nil
}

// InsertPackage upserts a package under releaseID by name and returns its ID.
func (t *Tx) InsertPackage(p Package) (int64, error) {
	isVP := 0
	if p.IsVP {
		isVP = 1
	}
	if _, err := t.tx.Exec(
		`INSERT INTO packages(release_id, name, folder, is_vp, status) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(release_id, name) DO UPDATE SET folder = excluded.folder, is_vp = excluded.is_vp, status = excluded.status`,
		p.ReleaseID, p.Name, p.Folder, isVP, int(p.Status)); err != nil {
		return 0, fmt.Errorf("catalog: insert package %s: %w", p.Name, err)
	}
	var id int64
	if err := t.tx.QueryRow(`SELECT id FROM packages WHERE release_id = ? AND name = ?`, p.ReleaseID, p.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("catalog: read back package id: %w", err)
	}
	return id, nil
}

// InsertFile upserts a (package, install path) row pointing at blob.
func (t *Tx) InsertFile(f File) error {
	if _, err := t.tx.Exec(
		`INSERT INTO files(package_id, blob, install_path) VALUES (?, ?, ?)
		 ON CONFLICT(package_id, install_path) DO UPDATE SET blob = excluded.blob`,
		f.PackageID, int64(f.Blob), f.InstallPath); err != nil {
		return fmt.Errorf("catalog: insert file %s: %w", f.InstallPath, err)
	}
	return nil
}

// GetReleases returns every known release.
func (t *Tx) GetReleases() ([]Release, error) {
	rows, err := t.tx.Query(`SELECT id, name, version, type, parent FROM releases`)
	if err != nil {
		return nil, fmt.Errorf("catalog: get releases: %w", err)
	}
	defer rows.Close()
	var out []Release
	for rows.Next() {
		var r Release
		var typ int
		if err := rows.Scan(&r.ID, &r.Name, &r.Version, &typ, &r.Parent); err != nil {
			return nil, fmt.Errorf("catalog: scan release: %w", err)
		}
		r.Type = ReleaseType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReleaseByName finds a release by (name, version).
func (t *Tx) GetReleaseByName(name, version string) (Release, bool, error) {
	var r Release
	var typ int
	err := t.tx.QueryRow(
		`SELECT id, name, version, type, parent FROM releases WHERE name = ? AND version = ?`,
		name, version).Scan(&r.ID, &r.Name, &r.Version, &typ, &r.Parent)
	if err == sql.ErrNoRows {
		return Release{}, false, nil
	}
	if err != nil {
		return Release{}, false, fmt.Errorf("catalog: get release by name: %w", err)
	}
	r.Type = ReleaseType(typ)
	return r, true, nil
}

// GetPackage finds a package by (releaseID, name).
func (t *Tx) GetPackage(releaseID int64, name string) (Package, bool, error) {
	var p Package
	var isVP, status int
	err := t.tx.QueryRow(
		`SELECT id, release_id, name, folder, is_vp, status FROM packages WHERE release_id = ? AND name = ?`,
		releaseID, name).Scan(&p.ID, &p.ReleaseID, &p.Name, &p.Folder, &isVP, &status)
	if err == sql.ErrNoRows {
		return Package{}, false, nil
	}
	if err != nil {
		return Package{}, false, fmt.Errorf("catalog: get package by name: %w", err)
	}
	p.IsVP = isVP != 0
	p.Status = PackageStatus(status)
	return p, true, nil
}

// PackagesByRelease returns every package belonging to releaseID.
func (t *Tx) PackagesByRelease(releaseID int64) ([]Package, error) {
	rows, err := t.tx.Query(
		`SELECT id, release_id, name, folder, is_vp, status FROM packages WHERE release_id = ?`,
		releaseID)
	if err != nil {
		return nil, fmt.Errorf("catalog: packages by release: %w", err)
	}
	defer rows.Close()
	var out []Package
	for rows.Next() {
		var p Package
		var isVP, status int
		if err := rows.Scan(&p.ID, &p.ReleaseID, &p.Name, &p.Folder, &isVP, &status); err != nil {
			return nil, fmt.Errorf("catalog: scan package: %w", err)
		}
		p.IsVP = isVP != 0
		p.Status = PackageStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPackageDependencies replaces every dependency row for packageID
// with deps. Existing rows are cleared first so a re-ingested manifest's
// dependency list fully replaces the prior one rather than accumulating.
func (t *Tx) InsertPackageDependencies(packageID int64, deps []PackageDependency) error {
	existing, err := t.tx.Query(`SELECT id FROM package_dependencies WHERE package_id = ?`, packageID)
	if err != nil {
		return fmt.Errorf("catalog: list existing package dependencies: %w", err)
	}
	var staleIDs []int64
	for existing.Next() {
		var id int64
		if err := existing.Scan(&id); err != nil {
			existing.Close()
			return fmt.Errorf("catalog: scan existing package dependency: %w", err)
		}
		staleIDs = append(staleIDs, id)
	}
	if err := existing.Err(); err != nil {
		existing.Close()
		return fmt.Errorf("catalog: list existing package dependencies: %w", err)
	}
	existing.Close()
	for _, id := range staleIDs {
		if _, err := t.tx.Exec(`DELETE FROM package_dependency_packages WHERE dependency_id = ?`, id); err != nil {
			return fmt.Errorf("catalog: clear package dependency packages: %w", err)
		}
	}
	if _, err := t.tx.Exec(`DELETE FROM package_dependencies WHERE package_id = ?`, packageID); err != nil {
		return fmt.Errorf("catalog: clear package dependencies: %w", err)
	}

	for _, d := range deps {
		res, err := t.tx.Exec(
			`INSERT INTO package_dependencies(package_id, mod_id, version) VALUES (?, ?, ?)
			 ON CONFLICT(package_id, mod_id, version) DO NOTHING`,
			packageID, d.ModID, d.Version)
		if err != nil {
			return fmt.Errorf("catalog: insert package dependency %s: %w", d.ModID, err)
		}
		depID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("catalog: read back package dependency id: %w", err)
		}
		for _, name := range d.Packages {
			if _, err := t.tx.Exec(
				`INSERT INTO package_dependency_packages(dependency_id, package_name) VALUES (?, ?)
				 ON CONFLICT(dependency_id, package_name) DO NOTHING`,
				depID, name); err != nil {
				return fmt.Errorf("catalog: insert package dependency package %s: %w", name, err)
			}
		}
	}
	return nil
}

// DependenciesByPackage returns every dependency row recorded for packageID.
func (t *Tx) DependenciesByPackage(packageID int64) ([]PackageDependency, error) {
	rows, err := t.tx.Query(
		`SELECT id, package_id, mod_id, version FROM package_dependencies WHERE package_id = ?`,
		packageID)
	if err != nil {
		return nil, fmt.Errorf("catalog: dependencies by package: %w", err)
	}
	var out []PackageDependency
	for rows.Next() {
		var d PackageDependency
		if err := rows.Scan(&d.ID, &d.PackageID, &d.ModID, &d.Version); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: scan package dependency: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("catalog: dependencies by package: %w", err)
	}
	rows.Close()

	for i := range out {
		pkgRows, err := t.tx.Query(
			`SELECT package_name FROM package_dependency_packages WHERE dependency_id = ?`, out[i].ID)
		if err != nil {
			return nil, fmt.Errorf("catalog: dependency packages: %w", err)
		}
		for pkgRows.Next() {
			var name string
			if err := pkgRows.Scan(&name); err != nil {
				pkgRows.Close()
				return nil, fmt.Errorf("catalog: scan dependency package: %w", err)
			}
			out[i].Packages = append(out[i].Packages, name)
		}
		err = pkgRows.Err()
		pkgRows.Close()
		if err != nil {
			return nil, fmt.Errorf("catalog: dependency packages: %w", err)
		}
	}
	return out, nil
}

// FilesByPackage returns every file row for a package.
func (t *Tx) FilesByPackage(packageID int64) ([]File, error) {
	rows, err := t.tx.Query(`SELECT package_id, blob, install_path FROM files WHERE package_id = ?`, packageID)
	if err != nil {
		return nil, fmt.Errorf("catalog: files by package: %w", err)
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		var f File
		var blob int64
		if err := rows.Scan(&f.PackageID, &blob, &f.InstallPath); err != nil {
			return nil, fmt.Errorf("catalog: scan file: %w", err)
		}
		f.Blob = digest.BlobID(blob)
		out = append(out, f)
	}
	return out, rows.Err()
}
