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
	"fmt"
)

// Insert writes value at (key, default branch, head version). Writes
// are only legal at the head of a branch that has at least one
// version (spec.md §4.5).
func (v *VRMap) Insert(key, value []byte) (old []byte, hadOld bool, err error) {
	v.mu.RLock()
	branch := v.defaultBranch
	v.mu.RUnlock()
	return v.InsertByBranch(key, value, branch)
}

func (v *VRMap) InsertByBranch(key, value []byte, branch BranchId) (old []byte, hadOld bool, err error) {
	if len(value) == 0 {
		return nil, false, ErrEmptyValueNotAllowed
	}
	head, ok, err := v.HeadVersion(branch)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: branch %d", ErrNoVersionOnBranch, branch)
	}
	return v.write(key, value, false, branch, head)
}

// Remove tombstones key at (default branch, head version).
func (v *VRMap) Remove(key []byte) (old []byte, hadOld bool, err error) {
	v.mu.RLock()
	branch := v.defaultBranch
	v.mu.RUnlock()
	return v.RemoveByBranch(key, branch)
}

func (v *VRMap) RemoveByBranch(key []byte, branch BranchId) (old []byte, hadOld bool, err error) {
	head, ok, err := v.HeadVersion(branch)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: branch %d", ErrNoVersionOnBranch, branch)
	}
	return v.write(key, nil, true, branch, head)
}

// write implements spec.md §4.5's write(key, opt_value, branch, ver).
// tombstoneWrite=true means opt_value is None (a delete); value is ignored
// in that case.
func (v *VRMap) write(key, value []byte, tombstoneWrite bool, branch BranchId, ver VersionId) (old []byte, hadOld bool, err error) {
	old, hadOld, err = v.GetByBranchVersion(key, branch, ver)
	if err != nil {
		return nil, false, err
	}
	if tombstoneWrite && !hadOld {
		return nil, false, nil // idempotent delete: no mutation
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	inner, _, err := v.getOrCreateInnerMap(v.layeredKV, key)
	if err != nil {
		return nil, false, err
	}
	stored := tombstone
	if !tombstoneWrite {
		stored = value
	}
	if err := inner.Insert(ver.bytes(), stored); err != nil {
		return nil, false, err
	}

	cs, ok := v.verToChangeSet[ver]
	if !ok {
		cs = newChangeSet()
		v.verToChangeSet[ver] = cs
	}
	cs.add(key)
	return old, hadOld, nil
}
