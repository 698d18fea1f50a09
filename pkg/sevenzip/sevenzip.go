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

// Package sevenzip extracts 7-zip archives to a plain directory so the
// indexer can walk the result like any other local tree. Creating 7-zip
// archives is out of scope; this package only ever reads them.
package sevenzip

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// ExtractAll opens the 7z archive at archivePath and extracts every entry
// into destDir, recreating the archive's internal directory structure.
// destDir is created if it does not exist.
//
// The 7-zip reader is synchronous and CPU-bound; callers run this on a
// blocking worker (spec.md §5) rather than inline in a reactor goroutine.
func ExtractAll(archivePath, destDir string) error {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("sevenzip: open %s: %w", archivePath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("sevenzip: mkdir %s: %w", destDir, err)
	}

	for _, f := range r.File {
		if err := extractEntry(destDir, f); err != nil {
			return fmt.Errorf("sevenzip: extract %s from %s: %w", f.Name, archivePath, err)
		}
	}
	return nil
}

func extractEntry(destDir string, f *sevenzip.File) error {
	name := filepath.FromSlash(f.Name)
	target := filepath.Join(destDir, name)

	// Guard against a malicious or malformed archive entry escaping
	// destDir via "../" components.
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
		return fmt.Errorf("entry %q escapes destination directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// ListEntries returns the inner paths of every non-directory entry in the
// archive without extracting anything.
func ListEntries(archivePath string) ([]string, error) {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: open %s: %w", archivePath, err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names, nil
}
