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
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/ledgerkv/vrmap/rawmap"
)

// deriveFromDisk rebuilds br_id_to_br_name, ver_id_to_ver_name, and
// ver_to_change_set from the persisted maps, per spec.md §4.3's
// "Derivation on load".
func (v *VRMap) deriveFromDisk() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	it, err := v.brNameToBrId.Iter(false)
	if err != nil {
		return err
	}
	for it.Next() {
		e := it.Entry()
		v.brIdToBrName[branchIdFromBytes(e.Value)] = append([]byte(nil), e.Key...)
	}
	if err := it.Close(); err != nil {
		return err
	}

	it, err = v.verNameToVerId.Iter(false)
	if err != nil {
		return err
	}
	for it.Next() {
		e := it.Entry()
		v.verIdToVerName[versionIdFromBytes(e.Value)] = append([]byte(nil), e.Key...)
	}
	if err := it.Close(); err != nil {
		return err
	}

	// (a) seed an entry for every version id found in any branch's set.
	bit, err := v.brToItsVers.Iter(false)
	if err != nil {
		return err
	}
	for bit.Next() {
		e := bit.Entry()
		inner, err := rawmap.Deserialize(v.backend, e.Value)
		if err != nil {
			return err
		}
		vit, err := inner.Iter(false)
		if err != nil {
			return err
		}
		for vit.Next() {
			ve := vit.Entry()
			verID := versionIdFromBytes(ve.Key)
			if _, ok := v.verToChangeSet[verID]; !ok {
				v.verToChangeSet[verID] = newChangeSet()
			}
		}
		if err := vit.Close(); err != nil {
			return err
		}
	}
	if err := bit.Close(); err != nil {
		return err
	}

	// (b) scan layered_kv and populate each version's change set.
	lit, err := v.layeredKV.Iter(false)
	if err != nil {
		return err
	}
	for lit.Next() {
		e := lit.Entry()
		key := append([]byte(nil), e.Key...)
		inner, err := rawmap.Deserialize(v.backend, e.Value)
		if err != nil {
			return err
		}
		vit, err := inner.Iter(false)
		if err != nil {
			return err
		}
		for vit.Next() {
			ve := vit.Entry()
			verID := versionIdFromBytes(ve.Key)
			cs, ok := v.verToChangeSet[verID]
			if !ok {
				cs = newChangeSet()
				v.verToChangeSet[verID] = cs
			}
			cs.add(key)
		}
		if err := vit.Close(); err != nil {
			return err
		}
	}
	return lit.Close()
}

// branchVersionSet returns the cached roaring64 membership bitmap for
// branch's version set, rebuilding it from disk on first access or
// after an invalidation. This is a pure performance cache (spec.md
// §9) sitting beside, not inside, the logical br_to_its_vers map.
func (v *VRMap) branchVersionSet(branch BranchId) (*roaring64.Bitmap, error) {
	v.cacheMu.Lock()
	if bm, ok := v.branchVerSet[branch]; ok {
		v.cacheMu.Unlock()
		return bm, nil
	}
	v.cacheMu.Unlock()

	inner, ok, err := v.getInnerMap(v.brToItsVers, branch.bytes())
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	if ok {
		it, err := inner.Iter(false)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			bm.Add(uint64(versionIdFromBytes(it.Entry().Key)))
		}
		if err := it.Close(); err != nil {
			return nil, err
		}
	}

	v.cacheMu.Lock()
	v.branchVerSet[branch] = bm
	v.cacheMu.Unlock()
	return bm, nil
}

func (v *VRMap) invalidateBranchVersionSet(branch BranchId) {
	v.cacheMu.Lock()
	delete(v.branchVerSet, branch)
	v.cacheMu.Unlock()
}
