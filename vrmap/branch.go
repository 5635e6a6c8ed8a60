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
	"github.com/ledgerkv/vrmap/metrics"
)

// BranchCreateOptions parameterizes branch_create (spec.md §4.7): a
// base branch/version to copy the ancestor version set from, an
// optional first version name, and a force flag that removes a
// same-named branch first instead of erroring.
type BranchCreateOptions struct {
	FirstVersionName []byte // nil: unsafe variant, caller must version_create before writing
	BaseBranch       *BranchId
	BaseVersion      *VersionId
	Force            bool
}

// BranchCreate implements branch_create (spec.md §4.7).
func (v *VRMap) BranchCreate(name []byte, opts BranchCreateOptions) (BranchId, error) {
	if len(name) == 0 {
		return 0, fmt.Errorf("%w: branch name must be non-empty", ErrInternal)
	}

	v.mu.Lock()
	if existingID, ok, err := v.brNameToBrId.Get(name); err != nil {
		v.mu.Unlock()
		return 0, err
	} else if ok {
		if !opts.Force {
			v.mu.Unlock()
			return 0, fmt.Errorf("%w: branch %q", ErrBranchExists, name)
		}
		v.mu.Unlock()
		if err := v.BranchRemove(branchIdFromBytes(existingID)); err != nil {
			return 0, err
		}
		v.mu.Lock()
	}
	defer v.mu.Unlock()

	if opts.FirstVersionName != nil {
		if _, ok, err := v.verNameToVerId.Get(opts.FirstVersionName); err != nil {
			return 0, err
		} else if ok {
			return 0, fmt.Errorf("%w: version %q", ErrVersionExists, opts.FirstVersionName)
		}
	}

	newID, err := v.nextBranchIDLocked()
	if err != nil {
		return 0, err
	}

	inner, _, err := v.getOrCreateInnerMap(v.brToItsVers, newID.bytes())
	if err != nil {
		return 0, err
	}

	if opts.BaseBranch != nil {
		baseInner, ok, err := v.getInnerMap(v.brToItsVers, opts.BaseBranch.bytes())
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: branch %d", ErrBranchNotFound, *opts.BaseBranch)
		}
		if opts.BaseVersion != nil {
			if _, ok, err := baseInner.Get(opts.BaseVersion.bytes()); err != nil {
				return 0, err
			} else if !ok {
				return 0, ErrBaseVersionNotOnBranch
			}
		}
		bounds := kv.Bounds{}
		if opts.BaseVersion != nil {
			bounds.End = opts.BaseVersion.bytes()
		}
		it, err := baseInner.Range(bounds, false)
		if err != nil {
			return 0, err
		}
		for it.Next() {
			if err := inner.Insert(it.Entry().Key, []byte{1}); err != nil {
				_ = it.Close()
				return 0, err
			}
		}
		if err := it.Close(); err != nil {
			return 0, err
		}
	}

	if err := v.brNameToBrId.Insert(name, newID.bytes()); err != nil {
		return 0, err
	}
	v.brIdToBrName[newID] = append([]byte(nil), name...)
	v.invalidateBranchVersionSet(newID)

	if opts.FirstVersionName != nil {
		id, err := v.nextVersionIDLocked()
		if err != nil {
			return 0, err
		}
		if err := inner.Insert(id.bytes(), []byte{1}); err != nil {
			return 0, err
		}
		if err := v.verNameToVerId.Insert(opts.FirstVersionName, id.bytes()); err != nil {
			return 0, err
		}
		v.verIdToVerName[id] = append([]byte(nil), opts.FirstVersionName...)
		v.verToChangeSet[id] = newChangeSet()
		v.invalidateBranchVersionSet(newID)
	}

	return newID, nil
}

func (v *VRMap) nextBranchIDLocked() (BranchId, error) {
	buf, ok, err := v.meta.Get([]byte("next_branch_id"))
	if err != nil {
		return 0, err
	}
	var next uint64 = 2 // 1 is InitialBranchId
	if ok {
		next = beUint64(buf)
	}
	sum, overflow := SafeAdd(next, 1)
	if overflow {
		return 0, fmt.Errorf("%w: branch id space exhausted", ErrInternal)
	}
	if err := v.meta.Insert([]byte("next_branch_id"), BranchId(sum).bytes()); err != nil {
		return 0, err
	}
	return BranchId(next), nil
}

// BranchExists reports whether branch has a registered name.
func (v *VRMap) BranchExists(branch BranchId) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.brIdToBrName[branch]
	return ok
}

// BranchHasVersions reports whether branch's version set is non-empty.
func (v *VRMap) BranchHasVersions(branch BranchId) (bool, error) {
	set, err := v.branchVersionSet(branch)
	if err != nil {
		return false, err
	}
	return !set.IsEmpty(), nil
}

// BranchList returns every registered branch name.
func (v *VRMap) BranchList() [][]byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([][]byte, 0, len(v.brIdToBrName))
	for _, name := range v.brIdToBrName {
		out = append(out, name)
	}
	return out
}

func (v *VRMap) BranchGetDefault() BranchId {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.defaultBranch
}

func (v *VRMap) BranchGetDefaultName() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.brIdToBrName[v.defaultBranch]
}

// BranchSetDefault rebinds the branch targeted by branch-less APIs.
func (v *VRMap) BranchSetDefault(branch BranchId) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.brIdToBrName[branch]; !ok {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}
	v.defaultBranch = branch
	return v.meta.Insert(metaKeyDefaultBranch, branch.bytes())
}

// BranchTruncate clears branch's entire version set.
func (v *VRMap) BranchTruncate(branch BranchId) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}
	if err := inner.Clear(); err != nil {
		return err
	}
	v.invalidateBranchVersionSet(branch)
	return nil
}

// BranchTruncateTo removes every version > lastVer from branch's set,
// highest first (spec.md §4.7).
func (v *VRMap) BranchTruncateTo(branch BranchId, lastVer VersionId) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}
	toRemove, err := versionsAbove(inner, lastVer)
	if err != nil {
		return err
	}
	for i := len(toRemove) - 1; i >= 0; i-- {
		if err := inner.Remove(toRemove[i].bytes()); err != nil {
			return err
		}
	}
	v.invalidateBranchVersionSet(branch)
	return nil
}

// BranchPopVersion is an alias of VersionPop.
func (v *VRMap) BranchPopVersion(branch BranchId) error { return v.VersionPop(branch) }

// BranchRemove truncates branch's version set (deferring map cleanup
// to the trash cleaner) and removes its name/id mapping (spec.md
// §4.7). INITIAL_BRANCH_ID may never be removed (invariant 6).
func (v *VRMap) BranchRemove(branch BranchId) error {
	if branch == InitialBranchId {
		return fmt.Errorf("%w: the initial branch may not be removed", ErrInternal)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	name, ok := v.brIdToBrName[branch]
	if !ok {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}

	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return err
	}
	if ok {
		if err := v.brToItsVers.Remove(branch.bytes()); err != nil {
			return err
		}
		v.trash.submit(inner)
	}
	if err := v.brNameToBrId.Remove(name); err != nil {
		return err
	}
	delete(v.brIdToBrName, branch)
	v.invalidateBranchVersionSet(branch)

	if v.defaultBranch == branch {
		v.defaultBranch = InitialBranchId
		if err := v.meta.Insert(metaKeyDefaultBranch, v.defaultBranch.bytes()); err != nil {
			return err
		}
	}
	return nil
}

// BranchIsEmpty reports whether every version in branch has an empty
// change set.
func (v *VRMap) BranchIsEmpty(branch BranchId) (bool, error) {
	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: branch %d", ErrBranchNotFound, branch)
	}
	it, err := inner.Iter(false)
	if err != nil {
		return false, err
	}
	defer it.Close()

	v.mu.RLock()
	defer v.mu.RUnlock()
	for it.Next() {
		ver := versionIdFromBytes(it.Entry().Key)
		if cs, ok := v.verToChangeSet[ver]; ok && !cs.isEmpty() {
			return false, nil
		}
	}
	return true, nil
}

// BranchMergeTo merges src into dst (spec.md §4.7): finds the first
// divergence point by zip-iterating both version sets; if none, only
// copies src's tail newer than dst's head; otherwise copies every
// version >= the divergence point. Non-force errors if dst already
// has versions src doesn't (UnsafeMerge).
func (v *VRMap) BranchMergeTo(src, dst BranchId, force bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	srcInner, ok, err := v.getInnerMap(v.brToItsVers, src.bytes())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, src)
	}
	dstInner, ok, err := v.getOrCreateInnerMap(v.brToItsVers, dst.bytes())
	if err != nil {
		return err
	}

	srcVers, err := allVersions(srcInner)
	if err != nil {
		return err
	}
	dstVers, err := allVersions(dstInner)
	if err != nil {
		return err
	}

	diverge := -1
	for i := 0; i < len(srcVers) && i < len(dstVers); i++ {
		if srcVers[i] != dstVers[i] {
			diverge = i
			break
		}
	}

	var toCopy []VersionId
	switch {
	case diverge >= 0:
		if !force {
			return ErrUnsafeMerge
		}
		toCopy = srcVers[diverge:]
	case len(dstVers) > len(srcVers):
		if !force {
			return ErrUnsafeMerge
		}
		toCopy = nil
	default:
		toCopy = srcVers[len(dstVers):]
	}

	for _, ver := range toCopy {
		if err := dstInner.Insert(ver.bytes(), []byte{1}); err != nil {
			return err
		}
	}
	v.invalidateBranchVersionSet(dst)
	metrics.BranchMergeTotal.Inc()
	return nil
}

func allVersions(inner interface {
	Iter(bool) (kv.Iter, error)
}) ([]VersionId, error) {
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

// BranchKeepOnly removes every branch whose name is not in names, then
// runs version_clean_up_globally.
func (v *VRMap) BranchKeepOnly(names [][]byte) error {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[string(n)] = struct{}{}
	}

	v.mu.RLock()
	var toRemove []BranchId
	for id, name := range v.brIdToBrName {
		if _, ok := keep[string(name)]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	v.mu.RUnlock()

	for _, id := range toRemove {
		if id == InitialBranchId {
			continue
		}
		if err := v.BranchRemove(id); err != nil {
			return err
		}
	}
	return v.VersionCleanUpGlobally()
}

// BranchSwap exchanges the name<->id bindings of b1 and b2 atomically
// (spec.md §4.7, unsafe). If default_branch names either, it is
// rebound to the other.
func (v *VRMap) BranchSwap(b1, b2 BranchId) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	name1, ok1 := v.brIdToBrName[b1]
	name2, ok2 := v.brIdToBrName[b2]
	if !ok1 {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, b1)
	}
	if !ok2 {
		return fmt.Errorf("%w: branch %d", ErrBranchNotFound, b2)
	}

	if err := v.brNameToBrId.Insert(name1, b2.bytes()); err != nil {
		return err
	}
	if err := v.brNameToBrId.Insert(name2, b1.bytes()); err != nil {
		return err
	}
	v.brIdToBrName[b1], v.brIdToBrName[b2] = name2, name1

	switch v.defaultBranch {
	case b1:
		v.defaultBranch = b2
	case b2:
		v.defaultBranch = b1
	default:
		return nil
	}
	return v.meta.Insert(metaKeyDefaultBranch, v.defaultBranch.bytes())
}
