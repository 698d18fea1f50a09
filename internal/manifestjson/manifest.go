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

// Package manifestjson decodes repository manifests: the JSON documents a
// repo host serves describing mods, their packages and files (spec.md
// §6). It is internal because the schema is an input format owned by the
// repository ecosystem, not a type other modvault packages should expose
// in their own APIs.
package manifestjson

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Manifest is the top-level repository document: a list of mods.
type Manifest struct {
	Mods []Mod `json:"mods"`
}

// Stability is the release-maturity tag a mod entry may declare.
type Stability string

const (
	StabilityStable  Stability = "stable"
	StabilityRC      Stability = "rc"
	StabilityNightly Stability = "nightly"
)

// ModType distinguishes a standalone mod from a total conversion or the
// engine build itself.
type ModType string

const (
	ModTypeMod    ModType = "mod"
	ModTypeTC     ModType = "tc"
	ModTypeEngine ModType = "engine"
)

// Mod is one release entry in a repository manifest.
type Mod struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Version      string    `json:"version"`
	Private      bool      `json:"private"`
	Stability    Stability `json:"stability,omitempty"`
	Parent       string    `json:"parent,omitempty"`
	Description  string    `json:"description,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	FirstRelease string    `json:"first_release,omitempty"`
	LastUpdate   string    `json:"last_update,omitempty"`
	Cmdline      string    `json:"cmdline,omitempty"`
	ModFlag      []string  `json:"mod_flag,omitempty"`
	Type         ModType   `json:"type"`
	Packages     []Package `json:"packages"`
}

// PackageStatus is how strongly a package is recommended for install.
type PackageStatus string

const (
	StatusRequired    PackageStatus = "required"
	StatusRecommended PackageStatus = "recommended"
	StatusOptional    PackageStatus = "optional"
)

// Dependency references another mod (optionally a specific version) and,
// optionally, a subset of its packages.
type Dependency struct {
	ID       string   `json:"id"`
	Version  string   `json:"version,omitempty"`
	Packages []string `json:"packages,omitempty"`
}

// Package is one installable unit of a Mod.
type Package struct {
	Name         string        `json:"name"`
	Notes        string        `json:"notes,omitempty"`
	Status       PackageStatus `json:"status"`
	Dependencies []Dependency  `json:"dependencies,omitempty"`
	Environment  string        `json:"environment,omitempty"`
	// Folder is the install subfolder; absent or empty both mean
	// "install at the release root" (design-notes open question,
	// resolved the same way for both representations).
	Folder      string        `json:"folder,omitempty"`
	IsVP        bool          `json:"is_vp"`
	Executables []Executable  `json:"executables,omitempty"`
	Files       []FileArchive `json:"files,omitempty"`
	FileList    []FileEntry   `json:"filelist,omitempty"`
}

// Executable names one runnable file within a package, optionally scoped
// to an OS/renderer label; running it is outside this system's scope, but
// the manifest still carries the field and it is preserved verbatim.
type Executable struct {
	File  string `json:"file"`
	Label string `json:"label,omitempty"`
}

// FileArchive is one downloadable archive backing a package: a VP, a 7z,
// or a loose file, fetchable from any of URLs.
type FileArchive struct {
	Filename string   `json:"filename"`
	Dest     string   `json:"dest,omitempty"`
	Checksum Checksum `json:"checksum"`
	Filesize int64    `json:"filesize"`
	URLs     []string `json:"urls"`
}

// FileEntry is one logical file inside a named archive, as enumerated by
// the manifest's filelist.
type FileEntry struct {
	Filename string   `json:"filename"`
	Archive  string   `json:"archive"`
	OrigName string   `json:"orig_name,omitempty"`
	Checksum Checksum `json:"checksum"`
}

// Checksum is a SHA-256 digest as the manifest format encodes it: a
// two-element JSON array `["sha256", "<hex>"]`.
type Checksum struct {
	Algorithm string
	Hex       string
}

func (c Checksum) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Algorithm, c.Hex})
}

func (c *Checksum) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("manifestjson: checksum: %w", err)
	}
	c.Algorithm, c.Hex = pair[0], pair[1]
	return nil
}

// Bytes decodes the hex-encoded digest. It only makes sense for
// Algorithm == "sha256", the only algorithm the manifest format uses.
func (c Checksum) Bytes() ([]byte, error) {
	return hex.DecodeString(c.Hex)
}

// Parse decodes a repository manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifestjson: parse: %w", err)
	}
	return &m, nil
}
