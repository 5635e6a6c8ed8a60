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
	"time"

	"github.com/ledgerkv/vrmap/metrics"
)

// DefaultReservedVersions is the reserved tail length Phase B keeps
// when the caller doesn't specify one.
const DefaultReservedVersions = 100

// lockTryAttempts/lockTryInterval implement the deterministic backoff
// spec.md §9 prefers over the source's `rand % 16` try-lock strategy:
// a short bounded run of non-blocking attempts, then fall back to a
// blocking acquire (or ErrLockBusy if the caller asked not to block).
const (
	lockTryAttempts = 8
	lockTryInterval = 2 * time.Millisecond
)

// PruneOptions controls prune's locking behavior.
type PruneOptions struct {
	// NonBlocking: return ErrLockBusy after the bounded try-lock phase
	// instead of falling back to a blocking acquire.
	NonBlocking bool
}

// Prune runs do_prune(reserved, clean_only=false): orphan cleanup plus
// common-prefix compaction (spec.md §4.8).
func (v *VRMap) Prune(reservedVerNum *int, opts PruneOptions) error {
	reserved := DefaultReservedVersions
	if reservedVerNum != nil {
		reserved = *reservedVerNum
	}
	if reserved < 1 {
		return ErrInvalidReservedNum
	}
	return v.doPrune(reserved, false, opts)
}

// VersionCleanUpGlobally runs do_prune's orphan-cleanup phase only.
func (v *VRMap) VersionCleanUpGlobally() error {
	return v.doPrune(0, true, PruneOptions{})
}

func (v *VRMap) acquireWriteLock(opts PruneOptions) error {
	for i := 0; i < lockTryAttempts; i++ {
		if v.mu.TryLock() {
			return nil
		}
		time.Sleep(lockTryInterval)
	}
	if opts.NonBlocking {
		return ErrLockBusy
	}
	v.mu.Lock()
	return nil
}

func (v *VRMap) doPrune(reservedVerNum int, cleanOnly bool, opts PruneOptions) error {
	start := time.Now()
	defer func() { metrics.PruneDuration.Observe(time.Since(start).Seconds()) }()

	if err := v.acquireWriteLock(opts); err != nil {
		return err
	}
	defer v.mu.Unlock()

	if err := v.pruneOrphansLocked(); err != nil {
		return err
	}
	if cleanOnly {
		return nil
	}
	return v.pruneCommonPrefixLocked(reservedVerNum + 1)
}

// pruneOrphansLocked implements Phase A (spec.md §4.8): every version
// in ver_to_change_set that no branch references anymore is purged
// from layered_kv and from the name/change-set indices.
func (v *VRMap) pruneOrphansLocked() error {
	live, err := v.liveVersionUnionLocked()
	if err != nil {
		return err
	}

	var orphans []VersionId
	for ver := range v.verToChangeSet {
		if !live[ver] {
			orphans = append(orphans, ver)
		}
	}

	for _, ver := range orphans {
		cs := v.verToChangeSet[ver]
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
		if err := v.deleteVersionRecordLocked(ver); err != nil {
			return err
		}
	}
	return nil
}

func (v *VRMap) liveVersionUnionLocked() (map[VersionId]bool, error) {
	it, err := v.brToItsVers.Iter(false)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	live := make(map[VersionId]bool)
	for it.Next() {
		e := it.Entry()
		branch := branchIdFromBytes(e.Key)
		inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		vit, err := inner.Iter(false)
		if err != nil {
			return nil, err
		}
		for vit.Next() {
			live[versionIdFromBytes(vit.Entry().Key)] = true
		}
		if err := vit.Close(); err != nil {
			return nil, err
		}
	}
	return live, nil
}

// pruneCommonPrefixLocked implements Phase B (spec.md §4.8): find the
// longest common prefix of version ids shared by every branch, then
// fold every rewrite target between the anchor and the reserved tail
// into the anchor.
func (v *VRMap) pruneCommonPrefixLocked(reserved int) error {
	branches, perBranchVers, err := v.allBranchVersionListsLocked()
	if err != nil {
		return err
	}
	if len(branches) == 0 {
		return nil
	}

	common := longestCommonPrefix(perBranchVers)
	if len(common) <= reserved {
		return nil
	}

	anchor := common[0]
	rewriteTargets := common[1 : len(common)-reserved]

	for _, b := range branches {
		inner, ok, err := v.getInnerMap(v.brToItsVers, b.bytes())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, ver := range rewriteTargets {
			if err := inner.Remove(ver.bytes()); err != nil {
				return err
			}
		}
		v.invalidateBranchVersionSet(b)
	}

	anchorCS, ok := v.verToChangeSet[anchor]
	if !ok {
		anchorCS = newChangeSet()
		v.verToChangeSet[anchor] = anchorCS
	}

	touched := newChangeSet()
	for _, ver := range rewriteTargets {
		cs, ok := v.verToChangeSet[ver]
		if !ok {
			continue
		}
		var walkErr error
		cs.each(func(key []byte) {
			if walkErr != nil {
				return
			}
			walkErr = v.moveVersionEntryLocked(key, ver, anchor)
			if walkErr == nil {
				touched.add(key)
			}
		})
		if walkErr != nil {
			return walkErr
		}
		anchorCS.union(cs)
		if err := v.deleteVersionRecordLocked(ver); err != nil {
			return err
		}
	}

	// After folding, any touched key whose only surviving history is a
	// tombstone at anchor must be purged entirely (spec.md §4.8).
	var walkErr error
	touched.each(func(key []byte) {
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
		val, ok, err := inner.Get(anchor.bytes())
		if err != nil {
			walkErr = err
			return
		}
		if !ok || !bytes.Equal(val, tombstone) {
			return
		}
		n := 0
		countIt, err := inner.Iter(false)
		if err != nil {
			walkErr = err
			return
		}
		for countIt.Next() {
			n++
		}
		if err := countIt.Close(); err != nil {
			walkErr = err
			return
		}
		if n > 1 {
			return
		}
		if err := v.layeredKV.Remove(key); err != nil {
			walkErr = err
			return
		}
		if err := inner.Clear(); err != nil {
			walkErr = err
			return
		}
		anchorCS.remove(key)
	})
	return walkErr
}

func (v *VRMap) allBranchVersionListsLocked() ([]BranchId, [][]VersionId, error) {
	it, err := v.brToItsVers.Iter(false)
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	var branches []BranchId
	var lists [][]VersionId
	for it.Next() {
		branch := branchIdFromBytes(it.Entry().Key)
		inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		vers, err := allVersions(inner)
		if err != nil {
			return nil, nil, err
		}
		branches = append(branches, branch)
		lists = append(lists, vers)
	}
	return branches, lists, nil
}

// longestCommonPrefix walks each branch's version list in lock-step,
// keeping a step only when every non-empty list agrees on it.
func longestCommonPrefix(lists [][]VersionId) []VersionId {
	var common []VersionId
	for i := 0; ; i++ {
		var step *VersionId
		for _, l := range lists {
			if len(l) == 0 {
				continue
			}
			if i >= len(l) {
				return common
			}
			if step == nil {
				v := l[i]
				step = &v
			} else if *step != l[i] {
				return common
			}
		}
		if step == nil {
			return common
		}
		common = append(common, *step)
	}
}
