// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package vrmap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func be64(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return buf
}

// Scenario 5 (spec.md §8), scaled down: a long single-branch history
// survives pruning with every write still readable, and only the
// anchor plus a tail of reserved+1 versions remain as named versions
// (spec.md §4.8's anchor + rewrite_targets + tail split).
func TestScenario5PruneKeepsReadsCorrect(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()

	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)

	const n = 60
	for i := 0; i < n; i++ {
		_, err := v.VersionCreateOnDefault(be64(uint64(i + 1)))
		require.NoError(t, err)
		_, _, err = v.Insert(be64(uint64(i)), be64(uint64(i)))
		require.NoError(t, err)
	}

	const reserved = 5
	r := reserved
	require.NoError(t, v.Prune(&r, PruneOptions{}))

	for i := 0; i < n; i++ {
		val, ok, err := v.GetByBranch(be64(uint64(i)), main)
		require.NoError(t, err)
		require.True(t, ok, "key %d must survive pruning", i)
		require.Equal(t, be64(uint64(i)), val)
	}

	names, err := v.VersionListGlobally()
	require.NoError(t, err)
	// anchor (v0) + a tail of reserved+1 versions, per §4.8's split.
	require.Len(t, names, reserved+2)
}

func TestPruneIdempotent(t *testing.T) {
	v := newTestVRMap(t)
	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, err := v.VersionCreateOnDefault(be64(uint64(i + 1)))
		require.NoError(t, err)
		_, _, err = v.Insert(be64(uint64(i)), be64(uint64(i)))
		require.NoError(t, err)
	}

	reserved := 3
	require.NoError(t, v.Prune(&reserved, PruneOptions{}))
	first, err := v.VersionListGlobally()
	require.NoError(t, err)

	require.NoError(t, v.Prune(&reserved, PruneOptions{}))
	second, err := v.VersionListGlobally()
	require.NoError(t, err)

	require.ElementsMatch(t, first, second)
}

func TestPruneZeroReservedIsError(t *testing.T) {
	v := newTestVRMap(t)
	zero := 0
	err := v.Prune(&zero, PruneOptions{})
	require.ErrorIs(t, err, ErrInvalidReservedNum)
}

func TestPruneNoOpWhenReservedCoversHistory(t *testing.T) {
	v := newTestVRMap(t)
	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	_, err = v.VersionCreateOnDefault([]byte("v1"))
	require.NoError(t, err)

	before, err := v.VersionListGlobally()
	require.NoError(t, err)

	big := 1000
	require.NoError(t, v.Prune(&big, PruneOptions{}))

	after, err := v.VersionListGlobally()
	require.NoError(t, err)
	require.ElementsMatch(t, before, after)
}

func TestVersionCleanUpGloballyRemovesOrphans(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()
	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	_, err = v.VersionCreateOnDefault([]byte("v1"))
	require.NoError(t, err)
	_, _, err = v.Insert([]byte("k"), []byte("v"))
	require.NoError(t, err)

	require.NoError(t, v.VersionPop(main)) // orphans v1, leaving v0 as head

	require.NoError(t, v.VersionCleanUpGlobally())

	names, err := v.VersionListGlobally()
	require.NoError(t, err)
	for _, n := range names {
		require.NotEqual(t, "v1", string(n))
	}
}
