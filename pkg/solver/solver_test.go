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

package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modvault.dev/modvault/pkg/digest"
)

func set(ids ...digest.BlobID) map[digest.BlobID]struct{} {
	m := make(map[digest.BlobID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestEmptyRequiredReturnsEmpty(t *testing.T) {
	got, err := Solve([]Source{{ID: "s1", Size: 10, Covers: set(1)}}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSingleSourceSingleRequired(t *testing.T) {
	sources := []Source{{ID: "only", Size: 5, Covers: set(1)}}
	got, err := Solve(sources, []digest.BlobID{1})
	require.NoError(t, err)
	assert.Equal(t, []SourceID{"only"}, got)
}

func TestUnsatisfiable(t *testing.T) {
	sources := []Source{{ID: "s1", Size: 5, Covers: set(1)}}
	_, err := Solve(sources, []digest.BlobID{1, 2})
	assert.ErrorIs(t, err, ErrUnsatisfiable)
}

func TestMinimumCoverFourSources(t *testing.T) {
	// spec.md §8 scenario 3: S1:50{A,B} S2:100{B,C} S3:25{A,C} S4:10{C};
	// required {A,B,C} -> {S1,S4}, total 60.
	const A, B, C digest.BlobID = 1, 2, 3
	sources := []Source{
		{ID: "S1", Size: 50, Covers: set(A, B)},
		{ID: "S2", Size: 100, Covers: set(B, C)},
		{ID: "S3", Size: 25, Covers: set(A, C)},
		{ID: "S4", Size: 10, Covers: set(C)},
	}
	got, err := Solve(sources, []digest.BlobID{A, B, C})
	require.NoError(t, err)
	assert.ElementsMatch(t, []SourceID{"S1", "S4"}, got)

	var total int64
	bySource := map[SourceID]int64{"S1": 50, "S2": 100, "S3": 25, "S4": 10}
	for _, id := range got {
		total += bySource[id]
	}
	assert.Equal(t, int64(60), total)
}

func TestPrefersSmallerOfEqualCoverage(t *testing.T) {
	const A, B digest.BlobID = 1, 2
	sources := []Source{
		{ID: "big", Size: 100, Covers: set(A, B)},
		{ID: "small", Size: 40, Covers: set(A, B)},
	}
	got, err := Solve(sources, []digest.BlobID{A, B})
	require.NoError(t, err)
	assert.Equal(t, []SourceID{"small"}, got)
}

func TestOverlappingSourcesPicksUnionMinimum(t *testing.T) {
	const A, B, C, D digest.BlobID = 1, 2, 3, 4
	sources := []Source{
		{ID: "cheap-ab", Size: 5, Covers: set(A, B)},
		{ID: "cheap-cd", Size: 5, Covers: set(C, D)},
		{ID: "expensive-all", Size: 100, Covers: set(A, B, C, D)},
	}
	got, err := Solve(sources, []digest.BlobID{A, B, C, D})
	require.NoError(t, err)
	assert.ElementsMatch(t, []SourceID{"cheap-ab", "cheap-cd"}, got)
}

func TestIrrelevantSourcesIgnored(t *testing.T) {
	const A digest.BlobID = 1
	unrelated := digest.BlobID(99)
	sources := []Source{
		{ID: "irrelevant", Size: 1, Covers: set(unrelated)},
		{ID: "relevant", Size: 20, Covers: set(A)},
	}
	got, err := Solve(sources, []digest.BlobID{A})
	require.NoError(t, err)
	assert.Equal(t, []SourceID{"relevant"}, got)
}
