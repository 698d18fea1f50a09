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

package manifestjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
  "mods": [
    {
      "id": "retail-fs2",
      "title": "Freespace 2 Retail",
      "version": "1.0.0",
      "private": false,
      "stability": "stable",
      "first_release": "1999-09-30",
      "last_update": "1999-09-30",
      "cmdline": "",
      "mod_flag": [],
      "type": "tc",
      "packages": [
        {
          "name": "Root Pack",
          "status": "required",
          "is_vp": true,
          "folder": "",
          "files": [
            {
              "filename": "root_fs2.vp",
              "dest": "",
              "checksum": ["sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"],
              "filesize": 1234,
              "urls": ["https://example.com/root_fs2.vp"]
            }
          ],
          "filelist": [
            {
              "filename": "data/tables/ships.tbl",
              "archive": "root_fs2.vp",
              "checksum": ["sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"]
            }
          ]
        }
      ]
    }
  ]
}`

func TestParseSampleManifest(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, m.Mods, 1)

	mod := m.Mods[0]
	assert.Equal(t, "retail-fs2", mod.ID)
	assert.Equal(t, StabilityStable, mod.Stability)
	assert.Equal(t, ModTypeTC, mod.Type)
	require.Len(t, mod.Packages, 1)

	pkg := mod.Packages[0]
	assert.True(t, pkg.IsVP)
	assert.Equal(t, StatusRequired, pkg.Status)
	require.Len(t, pkg.Files, 1)
	assert.Equal(t, "root_fs2.vp", pkg.Files[0].Filename)
	assert.Equal(t, "sha256", pkg.Files[0].Checksum.Algorithm)

	require.Len(t, pkg.FileList, 1)
	assert.Equal(t, "root_fs2.vp", pkg.FileList[0].Archive)
}

func TestChecksumRoundTrip(t *testing.T) {
	c := Checksum{Algorithm: "sha256", Hex: "deadbeef"}
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `["sha256","deadbeef"]`, string(b))

	var got Checksum
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, c, got)
}

func TestChecksumBytesDecodesHex(t *testing.T) {
	c := Checksum{Algorithm: "sha256", Hex: "deadbeef"}
	b, err := c.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)
}

func TestChecksumUnmarshalRejectsWrongShape(t *testing.T) {
	var c Checksum
	err := json.Unmarshal([]byte(`"not-an-array"`), &c)
	assert.Error(t, err)
}

func TestEmptyFolderMeansReleaseRoot(t *testing.T) {
	var p Package
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","status":"optional","is_vp":false}`), &p))
	assert.Equal(t, "", p.Folder)
}
