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

	"github.com/ledgerkv/vrmap/kv"
	"github.com/ledgerkv/vrmap/rawmap"
	"github.com/ledgerkv/vrmap/triehash"
)

// VersionCreate allocates a fresh VersionId strictly greater than any
// previously allocated, registers name, and appends it to branch's
// version set (spec.md §4.6).
func (v *VRMap) VersionCreate(name []byte, branch BranchId) (VersionId, error) {
	if len(name) == 0 {
		return 0, fmt.Errorf("%w: version name must be non-empty", ErrInternal)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok, err := v.verNameToVerId.Get(name); err != nil {
		return 0, err
	} else if ok {
		return 0, fmt.Errorf("%w: version %q", ErrVersionExists, name)
	}
	if _, ok := v.brIdToBrName[branch]; !ok {
		return 0, fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}

	id, err := v.nextVersionIDLocked()
	if err != nil {
		return 0, err
	}

	inner, _, err := v.getOrCreateInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return 0, err
	}
	if err := inner.Insert(id.bytes(), []byte{1}); err != nil {
		return 0, err
	}
	if err := v.verNameToVerId.Insert(name, id.bytes()); err != nil {
		return 0, err
	}
	v.verIdToVerName[id] = append([]byte(nil), name...)
	v.verToChangeSet[id] = newChangeSet()
	v.invalidateBranchVersionSet(branch)
	return id, nil
}

func (v *VRMap) VersionCreateOnDefault(name []byte) (VersionId, error) {
	v.mu.RLock()
	branch := v.defaultBranch
	v.mu.RUnlock()
	return v.VersionCreate(name, branch)
}

// nextVersionIDLocked persists and returns a monotonically increasing
// VersionId. Caller holds v.mu.
func (v *VRMap) nextVersionIDLocked() (VersionId, error) {
	buf, ok, err := v.meta.Get(metaKeyNextVersionID)
	if err != nil {
		return 0, err
	}
	var next uint64 = 1
	if ok {
		next = beUint64(buf)
	}
	sum, overflow := SafeAdd(next, 1)
	if overflow {
		return 0, fmt.Errorf("%w: version id space exhausted", ErrInternal)
	}
	if err := v.meta.Insert(metaKeyNextVersionID, VersionId(sum).bytes()); err != nil {
		return 0, err
	}
	return VersionId(next), nil
}

// VersionPop removes the largest entry of branch's version set. A
// no-op success on an empty branch (spec.md §8 boundary behavior). The
// version record itself is not deleted; once no branch references it,
// VersionCleanUpGlobally or Prune reclaims it.
func (v *VRMap) VersionPop(branch BranchId) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}
	lastKey, _, ok2, err := inner.Last()
	if err != nil {
		return err
	}
	if !ok2 {
		return nil // empty branch: no-op success
	}
	if err := inner.Remove(lastKey); err != nil {
		return err
	}
	v.invalidateBranchVersionSet(branch)
	return nil
}

// VersionExists reports whether ver is a member of branch's version set.
func (v *VRMap) VersionExists(ver VersionId, branch BranchId) (bool, error) {
	set, err := v.branchVersionSet(branch)
	if err != nil {
		return false, err
	}
	return set.Contains(uint64(ver)), nil
}

// VersionRebase implements spec.md §4.6's version_rebase. Unsafe: the
// caller guarantees every version > baseVer on branch is referenced by
// no other branch.
func (v *VRMap) VersionRebase(baseVer VersionId, branch BranchId) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}

	toRebase, err := versionsAbove(inner, baseVer)
	if err != nil {
		return err
	}

	baseCS, ok := v.verToChangeSet[baseVer]
	if !ok {
		baseCS = newChangeSet()
		v.verToChangeSet[baseVer] = baseCS
	}

	for _, ver := range toRebase {
		cs := v.verToChangeSet[ver]
		if cs != nil {
			var walkErr error
			cs.each(func(key []byte) {
				if walkErr != nil {
					return
				}
				walkErr = v.moveVersionEntryLocked(key, ver, baseVer)
			})
			if walkErr != nil {
				return walkErr
			}
			baseCS.union(cs)
		}
		if err := inner.Remove(ver.bytes()); err != nil {
			return err
		}
		if err := v.deleteVersionRecordLocked(ver); err != nil {
			return err
		}
	}
	v.invalidateBranchVersionSet(branch)
	return nil
}

// moveVersionEntryLocked relocates layered_kv[key][from] to
// layered_kv[key][to], overwriting any existing value at to.
func (v *VRMap) moveVersionEntryLocked(key []byte, from, to VersionId) error {
	inner, ok, err := v.getInnerMap(v.layeredKV, key)
	if err != nil || !ok {
		return err
	}
	val, ok, err := inner.Get(from.bytes())
	if err != nil || !ok {
		return err
	}
	if err := inner.Insert(to.bytes(), val); err != nil {
		return err
	}
	return inner.Remove(from.bytes())
}

// deleteVersionRecordLocked removes ver's change set and name↔id
// records. Caller holds v.mu.
func (v *VRMap) deleteVersionRecordLocked(ver VersionId) error {
	delete(v.verToChangeSet, ver)
	if name, ok := v.verIdToVerName[ver]; ok {
		if err := v.verNameToVerId.Remove(name); err != nil {
			return err
		}
		delete(v.verIdToVerName, ver)
	}
	return nil
}

// versionsAbove returns, in ascending order, every version in inner
// strictly greater than baseVer.
func versionsAbove(inner *rawmap.Map, baseVer VersionId) ([]VersionId, error) {
	it, err := inner.Range(kv.Bounds{Start: baseVer.bytes(), StartExclude: true}, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []VersionId
	for it.Next() {
		out = append(out, versionIdFromBytes(it.Entry().Key))
	}
	return out, nil
}

// VersionRevertGlobally purges ver from every branch's version set and
// from layered_kv entirely, as if it never happened. Unsafe: the
// caller guarantees ver is referenced by no live branch that still
// needs it.
func (v *VRMap) VersionRevertGlobally(ver VersionId) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	cs, ok := v.verToChangeSet[ver]
	if ok {
		var walkErr error
		cs.each(func(key []byte) {
			if walkErr != nil {
				return
			}
			walkErr = v.purgeKeyVersionLocked(key, ver)
		})
		if walkErr != nil {
			return walkErr
		}
	}

	bit, err := v.brToItsVers.Iter(false)
	if err != nil {
		return err
	}
	var branches []BranchId
	for bit.Next() {
		branches = append(branches, branchIdFromBytes(bit.Entry().Key))
	}
	if err := bit.Close(); err != nil {
		return err
	}
	for _, b := range branches {
		inner, ok, err := v.getInnerMap(v.brToItsVers, b.bytes())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, present, err := inner.Get(ver.bytes()); err != nil {
			return err
		} else if present {
			if err := inner.Remove(ver.bytes()); err != nil {
				return err
			}
			v.invalidateBranchVersionSet(b)
		}
	}
	return v.deleteVersionRecordLocked(ver)
}

func (v *VRMap) purgeKeyVersionLocked(key []byte, ver VersionId) error {
	inner, ok, err := v.getInnerMap(v.layeredKV, key)
	if err != nil || !ok {
		return err
	}
	if err := inner.Remove(ver.bytes()); err != nil {
		return err
	}
	_, _, hasAny, err := inner.Last()
	if err != nil {
		return err
	}
	if !hasAny {
		if err := v.layeredKV.Remove(key); err != nil {
			return err
		}
		if err := inner.Clear(); err != nil {
			return err
		}
	}
	return nil
}

// VersionChangeSetTrieRoot resolves ver (default: branch's head) and
// hashes every (key, value) it directly wrote (spec.md §4.6).
func (v *VRMap) VersionChangeSetTrieRoot(branch BranchId, ver *VersionId) ([32]byte, error) {
	target := ver
	if target == nil {
		head, ok, err := v.HeadVersion(branch)
		if err != nil {
			return [32]byte{}, err
		}
		if !ok {
			return [32]byte{}, fmt.Errorf("%w: branch %d", ErrNoVersionOnBranch, branch)
		}
		target = &head
	}

	v.mu.RLock()
	cs, ok := v.verToChangeSet[*target]
	v.mu.RUnlock()
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: version %d", ErrVersionNotFound, *target)
	}

	var pairs []triehash.KV
	var walkErr error
	cs.each(func(key []byte) {
		if walkErr != nil {
			return
		}
		inner, ok, err := v.getInnerMap(v.layeredKV, key)
		if err != nil {
			walkErr = err
			return
		}
		if !ok {
			return
		}
		val, ok, err := inner.Get(target.bytes())
		if err != nil {
			walkErr = err
			return
		}
		if !ok {
			return
		}
		pairs = append(pairs, triehash.KV{Key: append([]byte(nil), key...), Value: append([]byte(nil), val...)})
	})
	if walkErr != nil {
		return [32]byte{}, walkErr
	}
	return v.trieRoot(pairs), nil
}

// VersionListGlobally returns every version name known system-wide.
func (v *VRMap) VersionListGlobally() ([][]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([][]byte, 0, len(v.verIdToVerName))
	for _, name := range v.verIdToVerName {
		out = append(out, name)
	}
	return out, nil
}

// VersionListByBranch returns every version id in branch's set, in
// ascending order.
func (v *VRMap) VersionListByBranch(branch BranchId) ([]VersionId, error) {
	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}
	it, err := inner.Iter(false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []VersionId
	for it.Next() {
		out = append(out, versionIdFromBytes(it.Entry().Key))
	}
	return out, nil
}

// VersionHasChangeSet reports whether ver's change set is non-empty.
func (v *VRMap) VersionHasChangeSet(ver VersionId) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cs, ok := v.verToChangeSet[ver]
	return ok && !cs.isEmpty()
}
