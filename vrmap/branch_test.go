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
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 3 (spec.md §8): a branch forked from main diverges
// independently; each branch resolves its own head value for a shared key.
func TestScenario3BranchForkDiverges(t *testing.T) {
	v := newTestVRMap(t)
	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	_, _, err = v.Insert([]byte{1}, []byte{10})
	require.NoError(t, err)

	main := v.BranchGetDefault()
	dev, err := v.BranchCreate([]byte("dev"), BranchCreateOptions{
		FirstVersionName: []byte("v1"),
		BaseBranch:       &main,
	})
	require.NoError(t, err)

	_, _, err = v.InsertByBranch([]byte{1}, []byte{99}, dev)
	require.NoError(t, err)

	val, ok, err := v.GetByBranch([]byte{1}, main)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{10}, val)

	val, ok, err = v.GetByBranch([]byte{1}, dev)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{99}, val)
}

// Scenario 4 (spec.md §8): merging dev back into main makes main see
// dev's divergent write, and main's version list grows to include dev's
// version.
func TestScenario4MergeBranchBack(t *testing.T) {
	v := newTestVRMap(t)
	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	_, _, err = v.Insert([]byte{1}, []byte{10})
	require.NoError(t, err)

	main := v.BranchGetDefault()
	dev, err := v.BranchCreate([]byte("dev"), BranchCreateOptions{
		FirstVersionName: []byte("v1"),
		BaseBranch:       &main,
	})
	require.NoError(t, err)
	_, _, err = v.InsertByBranch([]byte{1}, []byte{99}, dev)
	require.NoError(t, err)

	require.NoError(t, v.BranchMergeTo(dev, main, false))

	val, ok, err := v.GetByBranch([]byte{1}, main)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{99}, val)

	vers, err := v.VersionListByBranch(main)
	require.NoError(t, err)
	require.Len(t, vers, 2)
}

func TestBranchMergeToIdempotent(t *testing.T) {
	v := newTestVRMap(t)
	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	main := v.BranchGetDefault()
	dev, err := v.BranchCreate([]byte("dev"), BranchCreateOptions{
		FirstVersionName: []byte("v1"),
		BaseBranch:       &main,
	})
	require.NoError(t, err)

	require.NoError(t, v.BranchMergeTo(dev, main, false))
	versAfterFirst, err := v.VersionListByBranch(main)
	require.NoError(t, err)

	require.NoError(t, v.BranchMergeTo(dev, main, false))
	versAfterSecond, err := v.VersionListByBranch(main)
	require.NoError(t, err)

	require.Equal(t, versAfterFirst, versAfterSecond)
}

func TestBranchMergeToUnsafeRejectsDivergence(t *testing.T) {
	v := newTestVRMap(t)
	_, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	main := v.BranchGetDefault()
	dev, err := v.BranchCreate([]byte("dev"), BranchCreateOptions{
		FirstVersionName: []byte("dev-v1"),
		BaseBranch:       &main,
	})
	require.NoError(t, err)

	_, err = v.VersionCreateOnDefault([]byte("main-v1"))
	require.NoError(t, err)

	err = v.BranchMergeTo(dev, main, false)
	require.ErrorIs(t, err, ErrUnsafeMerge)

	require.NoError(t, v.BranchMergeTo(dev, main, true))
}

func TestBranchCreateDuplicateNameRejectedUnlessForce(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()
	_, err := v.BranchCreate([]byte("dev"), BranchCreateOptions{BaseBranch: &main})
	require.NoError(t, err)

	_, err = v.BranchCreate([]byte("dev"), BranchCreateOptions{BaseBranch: &main})
	require.ErrorIs(t, err, ErrBranchExists)

	_, err = v.BranchCreate([]byte("dev"), BranchCreateOptions{BaseBranch: &main, Force: true})
	require.NoError(t, err)
}

func TestBranchCreateFromBaseVersionCopiesExactly(t *testing.T) {
	// Invariant 4 (spec.md §3): a branch forked at base_version sees
	// exactly the same reads as the base branch did at that version.
	v := newTestVRMap(t)
	v0, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	_, _, err = v.Insert([]byte("a"), []byte("1"))
	require.NoError(t, err)
	_, err = v.VersionCreateOnDefault([]byte("v1"))
	require.NoError(t, err)
	_, _, err = v.Insert([]byte("a"), []byte("2"))
	require.NoError(t, err)

	main := v.BranchGetDefault()
	forked, err := v.BranchCreate([]byte("forked"), BranchCreateOptions{
		FirstVersionName: []byte("fv"),
		BaseBranch:       &main,
		BaseVersion:      &v0,
	})
	require.NoError(t, err)

	forkedHead, _, err := v.HeadVersion(forked)
	require.NoError(t, err)

	want, _, err := v.GetByBranchVersion([]byte("a"), main, v0)
	require.NoError(t, err)
	got, _, err := v.GetByBranchVersion([]byte("a"), forked, forkedHead)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestBranchRemoveDefersCleanupAndRebindsDefault(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()
	dev, err := v.BranchCreate([]byte("dev"), BranchCreateOptions{BaseBranch: &main})
	require.NoError(t, err)
	require.NoError(t, v.BranchSetDefault(dev))

	require.NoError(t, v.BranchRemove(dev))
	require.False(t, v.BranchExists(dev))
	require.Equal(t, InitialBranchId, v.BranchGetDefault(), "removing the default branch rebinds to the initial branch")
}

func TestBranchRemoveInitialBranchForbidden(t *testing.T) {
	v := newTestVRMap(t)
	err := v.BranchRemove(InitialBranchId)
	require.Error(t, err)
}

func TestBranchTruncateAndTruncateTo(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()
	v0, err := v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	_, err = v.VersionCreateOnDefault([]byte("v1"))
	require.NoError(t, err)
	_, err = v.VersionCreateOnDefault([]byte("v2"))
	require.NoError(t, err)

	require.NoError(t, v.BranchTruncateTo(main, v0))
	vers, err := v.VersionListByBranch(main)
	require.NoError(t, err)
	require.Equal(t, []VersionId{v0}, vers)

	require.NoError(t, v.BranchTruncate(main))
	has, err := v.BranchHasVersions(main)
	require.NoError(t, err)
	require.False(t, has)
}

func TestBranchSwapRestoresOriginalAfterTwoSwaps(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()
	other, err := v.BranchCreate([]byte("other"), BranchCreateOptions{BaseBranch: &main})
	require.NoError(t, err)

	require.NoError(t, v.BranchSwap(main, other))
	require.NoError(t, v.BranchSwap(main, other))

	require.Equal(t, InitialBranchName, v.BranchGetDefaultName())
}

func TestBranchIsEmpty(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()
	empty, err := v.BranchIsEmpty(main)
	require.NoError(t, err)
	require.True(t, empty)

	_, err = v.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	_, _, err = v.Insert([]byte("k"), []byte("v"))
	require.NoError(t, err)

	empty, err = v.BranchIsEmpty(main)
	require.NoError(t, err)
	require.False(t, empty)
}

func TestBranchKeepOnly(t *testing.T) {
	v := newTestVRMap(t)
	main := v.BranchGetDefault()
	_, err := v.BranchCreate([]byte("keep-me"), BranchCreateOptions{BaseBranch: &main})
	require.NoError(t, err)
	_, err = v.BranchCreate([]byte("drop-me"), BranchCreateOptions{BaseBranch: &main})
	require.NoError(t, err)

	require.NoError(t, v.BranchKeepOnly([][]byte{InitialBranchName, []byte("keep-me")}))

	names := v.BranchList()
	require.Len(t, names, 2)
}
