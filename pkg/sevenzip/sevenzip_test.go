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

package sevenzip

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAllMissingArchive(t *testing.T) {
	err := ExtractAll(filepath.Join(t.TempDir(), "nope.7z"), t.TempDir())
	assert.Error(t, err)
}

func TestListEntriesMissingArchive(t *testing.T) {
	_, err := ListEntries(filepath.Join(t.TempDir(), "nope.7z"))
	assert.Error(t, err)
}
