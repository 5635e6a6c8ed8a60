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
	"bytes"
	"fmt"

	"github.com/ledgerkv/vrmap/kv"
)

// GetByBranchVersion resolves (key, branch, version) per spec.md
// §4.4's read algorithm: walk key's per-version history descending
// from version, returning the first write whose version is a member
// of branch's version set, or (nil, false) if none qualifies.
func (v *VRMap) GetByBranchVersion(key []byte, branch BranchId, version VersionId) ([]byte, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.getLocked(key, branch, version)
}

func (v *VRMap) getLocked(key []byte, branch BranchId, version VersionId) ([]byte, bool, error) {
	set, err := v.branchVersionSet(branch)
	if err != nil {
		return nil, false, err
	}
	if set.GetCardinality() == 0 {
		if _, ok := v.brIdToBrName[branch]; !ok {
			return nil, false, fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
		}
		return nil, false, nil
	}

	inner, ok, err := v.getInnerMap(v.layeredKV, key)
	if err != nil || !ok {
		return nil, false, err
	}

	it, err := inner.Range(kv.Bounds{End: version.bytes()}, true)
	if err != nil {
		return nil, false, err
	}
	defer it.Close()
	for it.Next() {
		e := it.Entry()
		candidate := versionIdFromBytes(e.Key)
		if set.Contains(uint64(candidate)) {
			if bytes.Equal(e.Value, tombstone) {
				return nil, false, nil
			}
			return append([]byte(nil), e.Value...), true, nil
		}
	}
	return nil, false, nil
}

// Get resolves the key against the default branch's head version.
func (v *VRMap) Get(key []byte) ([]byte, bool, error) {
	v.mu.RLock()
	branch := v.defaultBranch
	v.mu.RUnlock()
	head, ok, err := v.HeadVersion(branch)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return v.GetByBranchVersion(key, branch, head)
}

// GetByBranch resolves the key against branch's head version.
func (v *VRMap) GetByBranch(key []byte, branch BranchId) ([]byte, bool, error) {
	head, ok, err := v.HeadVersion(branch)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return v.GetByBranchVersion(key, branch, head)
}

// HeadVersion returns the largest version id in branch's version set.
func (v *VRMap) HeadVersion(branch BranchId) (VersionId, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	set, err := v.branchVersionSet(branch)
	if err != nil {
		return 0, false, err
	}
	if set.IsEmpty() {
		return 0, false, nil
	}
	return VersionId(set.Maximum()), true, nil
}

// GetLE returns the entry at the largest key <= key visible at
// (branch, version), implemented as range(..=key).next_back() over
// the VRMap iterator (spec.md §4.4).
func (v *VRMap) GetLE(key []byte, branch BranchId, version VersionId) (foundKey, value []byte, ok bool, err error) {
	it, err := v.RangeByBranchVersion(kv.Bounds{End: key}, branch, version, true)
	if err != nil {
		return nil, nil, false, err
	}
	defer it.Close()
	if !it.Next() {
		return nil, nil, false, nil
	}
	e := it.Entry()
	return e.Key, e.Value, true, nil
}

// GetGE returns the entry at the smallest key >= key visible at
// (branch, version).
func (v *VRMap) GetGE(key []byte, branch BranchId, version VersionId) (foundKey, value []byte, ok bool, err error) {
	it, err := v.RangeByBranchVersion(kv.Bounds{Start: key}, branch, version, false)
	if err != nil {
		return nil, nil, false, err
	}
	defer it.Close()
	if !it.Next() {
		return nil, nil, false, nil
	}
	e := it.Entry()
	return e.Key, e.Value, true, nil
}

// resolvedIter walks layered_kv in key order, resolving each
// candidate key against (branch, version) and skipping keys whose
// resolved value is absent (spec.md §4.4.1).
type resolvedIter struct {
	v       *VRMap
	branch  BranchId
	version VersionId
	inner   kv.Iter
	cur     kv.Entry
}

func (it *resolvedIter) Next() bool {
	for it.inner.Next() {
		e := it.inner.Entry()
		it.v.mu.RLock()
		val, ok, err := it.v.getLocked(e.Key, it.branch, it.version)
		it.v.mu.RUnlock()
		if err != nil || !ok {
			continue
		}
		it.cur = kv.Entry{Key: append([]byte(nil), e.Key...), Value: val}
		return true
	}
	return false
}

func (it *resolvedIter) Entry() kv.Entry { return it.cur }
func (it *resolvedIter) Close() error    { return it.inner.Close() }

// IterByBranchVersion walks every key visible at (branch, version).
func (v *VRMap) IterByBranchVersion(branch BranchId, version VersionId, reverse bool) (kv.Iter, error) {
	return v.RangeByBranchVersion(kv.Bounds{}, branch, version, reverse)
}

// RangeByBranchVersion walks keys within bounds visible at (branch,
// version). Iterators are stable against writes that do not touch
// already-returned keys (spec.md §4.4.1, §5's read-your-writes model),
// since the underlying layered_kv Range already snapshots per §4.1.
func (v *VRMap) RangeByBranchVersion(bounds kv.Bounds, branch BranchId, version VersionId, reverse bool) (kv.Iter, error) {
	inner, err := v.layeredKV.Range(bounds, reverse)
	if err != nil {
		return nil, err
	}
	return &resolvedIter{v: v, branch: branch, version: version, inner: inner}, nil
}

// LenByBranchVersion returns the number of keys currently visible at (branch,
// version). O(n) in the key space; intended for tests/diagnostics.
func (v *VRMap) LenByBranchVersion(branch BranchId, version VersionId) (int, error) {
	it, err := v.IterByBranchVersion(branch, version, false)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for it.Next() {
		n++
	}
	return n, nil
}
