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

// Package vrmap is the Versioned Raw Map: an embedded, persistent
// key-value store providing Git-like branch/version semantics over
// ordered byte-string keys (spec.md §1). It is the core this
// repository exists to implement; everything else (kv, prefixedmap,
// rawmap, typedmap) is machinery VRMap consumes or a thin wrapper
// built on top of it.
package vrmap

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/ledgerkv/vrmap/kv"
	"github.com/ledgerkv/vrmap/rawmap"
	"github.com/ledgerkv/vrmap/triehash"
)

// bootstrapPrefix/bootstrapKey locate the fixed record VRMap needs to
// find everything else: four of the five root prefixes (meta,
// br_name_to_br_id, ver_name_to_ver_id, br_to_its_vers); the fifth,
// layered_kv, is stored under layeredKVRootKey. Both records live at
// prefix 0, which the backend contract reserves for its own and its
// owner's bootstrap metadata (spec.md §6) and which AllocPrefix never
// hands out (it starts at kv.RESERVED_ID_CNT).
const bootstrapPrefix = 0

var bootstrapKey = []byte("vrmap:roots")

// tombstone is the sentinel value meaning "deleted at this version"
// (spec.md §4.5). VRMap rejects caller-supplied empty values at the
// API boundary (ErrEmptyValueNotAllowed) instead of overloading them,
// resolving the Open Question in spec.md §9.
var tombstone = []byte{}

// Options configures a VRMap instance. Only TrieRoot and Logger are
// meaningful; both have working defaults.
type Options struct {
	// TrieRoot computes the digest version_chgset_trie_root returns.
	// Defaults to triehash.Root.
	TrieRoot func([]triehash.KV) [32]byte
	Logger   *zap.Logger
}

// changeSet is the ordered set of keys directly written by one
// version (spec.md glossary), backed by an in-memory ordered index so
// trie_root inputs and iteration are deterministic without a backend
// round-trip.
type changeSet struct {
	keys *btree.BTreeG[string]
}

func newChangeSet() *changeSet {
	return &changeSet{keys: btree.NewG(32, func(a, b string) bool { return a < b })}
}

func (c *changeSet) add(key []byte)      { c.keys.ReplaceOrInsert(string(key)) }
func (c *changeSet) remove(key []byte)   { c.keys.Delete(string(key)) }
func (c *changeSet) has(key []byte) bool { _, ok := c.keys.Get(string(key)); return ok }
func (c *changeSet) len() int            { return c.keys.Len() }
func (c *changeSet) isEmpty() bool       { return c.keys.Len() == 0 }
func (c *changeSet) each(f func(key []byte)) {
	c.keys.Ascend(func(k string) bool {
		f([]byte(k))
		return true
	})
}
func (c *changeSet) union(other *changeSet) {
	other.each(func(key []byte) { c.add(key) })
}

// VRMap is the closed aggregate of spec.md §4.3: a handful of
// top-level Prefixed Maps plus derived, reader-writer-lock-protected
// in-memory indices rebuilt at load time.
type VRMap struct {
	backend kv.Backend
	log     *zap.Logger
	trieRoot func([]triehash.KV) [32]byte

	// persisted top-level maps
	meta          *rawmap.Map // "default_branch", "next_version_id", "next_branch_id"
	brNameToBrId  *rawmap.Map
	verNameToVerId *rawmap.Map
	brToItsVers   *rawmap.Map // BranchId bytes -> prefix of Map<VersionId bytes, marker>
	layeredKV     *rawmap.Map // key -> prefix of Map<VersionId bytes, value>

	// mu guards defaultBranch and the derived indices below. The
	// VersionId counter is not a field: it is persisted in meta under
	// "next_version_id"; see version_create.
	mu sync.RWMutex

	defaultBranch BranchId

	// derived, rebuilt at load time (spec.md §4.3's "Derivation on load")
	brIdToBrName   map[BranchId][]byte
	verIdToVerName map[VersionId][]byte
	verToChangeSet map[VersionId]*changeSet

	// performance cache, not part of the persisted or logical state:
	// membership set for br_to_its_vers[b], rebuilt lazily per branch
	// and invalidated whenever that branch's version set mutates.
	// Guarded by its own mutex (not mu) so read paths holding mu.RLock
	// can still populate it without a lock upgrade.
	cacheMu      sync.Mutex
	branchVerSet map[BranchId]*roaring64.Bitmap

	trash *trashCleaner
}

var metaKeyDefaultBranch = []byte("default_branch")
var metaKeyNextVersionID = []byte("next_version_id")

// New opens or creates a VRMap over backend. On a fresh backend it
// bootstraps InitialBranchId/InitialBranchName with an empty version
// set and no initial version (spec.md §4.3: "VRMap does not auto-create
// an initial version").
func New(backend kv.Backend, opts Options) (*VRMap, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TrieRoot == nil {
		opts.TrieRoot = triehash.Root
	}

	v := &VRMap{
		backend:        backend,
		log:            opts.Logger,
		trieRoot:       opts.TrieRoot,
		brIdToBrName:   make(map[BranchId][]byte),
		verIdToVerName: make(map[VersionId][]byte),
		verToChangeSet: make(map[VersionId]*changeSet),
		branchVerSet:   make(map[BranchId]*roaring64.Bitmap),
	}
	v.trash = newTrashCleaner(v.log)

	fresh, err := v.loadOrBootstrap()
	if err != nil {
		return nil, err
	}
	if fresh {
		v.log.Info("vrmap: bootstrapped fresh store", zap.String("initial_branch", string(InitialBranchName)))
	}
	if err := v.deriveFromDisk(); err != nil {
		return nil, err
	}
	return v, nil
}

// loadOrBootstrap reads the 4-prefix root record and the layered_kv
// root record if present, or allocates both and writes the initial
// branch otherwise. Reports
// whether it bootstrapped a fresh store.
func (v *VRMap) loadOrBootstrap() (bool, error) {
	root, ok, err := v.backend.Get(bootstrapPrefix, bootstrapKey)
	if err != nil {
		return false, fmt.Errorf("vrmap: read bootstrap record: %w", err)
	}
	if ok {
		if len(root) != 32 {
			return false, fmt.Errorf("%w: corrupt bootstrap record (%d bytes)", ErrInternal, len(root))
		}
		v.meta = rawmap.FromPrefix(v.backend, beUint64(root[0:8]))
		v.brNameToBrId = rawmap.FromPrefix(v.backend, beUint64(root[8:16]))
		v.verNameToVerId = rawmap.FromPrefix(v.backend, beUint64(root[16:24]))
		v.brToItsVers = rawmap.FromPrefix(v.backend, beUint64(root[24:32]))
		// layeredKV's prefix (the 5th root) is read from its own
		// record rather than inferred from AllocPrefix order.
		layeredPrefix, ok, err := v.backend.Get(bootstrapPrefix, layeredKVRootKey)
		if err != nil {
			return false, fmt.Errorf("vrmap: read layered_kv root: %w", err)
		}
		if !ok || len(layeredPrefix) != 8 {
			return false, fmt.Errorf("%w: missing layered_kv root", ErrInternal)
		}
		v.layeredKV = rawmap.FromPrefix(v.backend, beUint64(layeredPrefix))

		db, ok, err := v.meta.Get(metaKeyDefaultBranch)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("%w: missing default_branch", ErrInternal)
		}
		v.defaultBranch = branchIdFromBytes(db)
		return false, nil
	}

	metaMap := rawmap.New(v.backend)
	brNameMap := rawmap.New(v.backend)
	verNameMap := rawmap.New(v.backend)
	brVersMap := rawmap.New(v.backend)
	layeredMap := rawmap.New(v.backend)

	metaPrefix, err := metaMap.Serialize()
	if err != nil {
		return false, err
	}
	brNamePrefix, err := brNameMap.Serialize()
	if err != nil {
		return false, err
	}
	verNamePrefix, err := verNameMap.Serialize()
	if err != nil {
		return false, err
	}
	brVersPrefix, err := brVersMap.Serialize()
	if err != nil {
		return false, err
	}
	layeredPrefix, err := layeredMap.Serialize()
	if err != nil {
		return false, err
	}

	root := make([]byte, 0, 32)
	root = append(root, metaPrefix...)
	root = append(root, brNamePrefix...)
	root = append(root, verNamePrefix...)
	root = append(root, brVersPrefix...)
	if err := v.backend.Insert(bootstrapPrefix, bootstrapKey, root); err != nil {
		return false, fmt.Errorf("vrmap: write bootstrap record: %w", err)
	}
	if err := v.backend.Insert(bootstrapPrefix, layeredKVRootKey, layeredPrefix); err != nil {
		return false, fmt.Errorf("vrmap: write layered_kv root: %w", err)
	}

	v.meta, v.brNameToBrId, v.verNameToVerId, v.brToItsVers, v.layeredKV =
		metaMap, brNameMap, verNameMap, brVersMap, layeredMap
	v.defaultBranch = InitialBranchId

	if err := v.meta.Insert(metaKeyDefaultBranch, v.defaultBranch.bytes()); err != nil {
		return false, err
	}
	if err := v.brNameToBrId.Insert(InitialBranchName, v.defaultBranch.bytes()); err != nil {
		return false, err
	}
	if _, _, err := v.getOrCreateInnerMap(v.brToItsVers, v.defaultBranch.bytes()); err != nil {
		return false, err
	}
	return true, nil
}

var layeredKVRootKey = []byte("vrmap:layered_kv_root")

func beUint64(b []byte) uint64 {
	var x uint64
	for _, c := range b {
		x = x<<8 | uint64(c)
	}
	return x
}

// getOrCreateInnerMap fetches the nested Map stored under key in outer
// (spec.md §4.3: "store the 8-byte prefix of the inner map as the
// outer value"), creating and registering one if absent.
func (v *VRMap) getOrCreateInnerMap(outer *rawmap.Map, key []byte) (inner *rawmap.Map, created bool, err error) {
	buf, ok, err := outer.Get(key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		m, err := rawmap.Deserialize(v.backend, buf)
		if err != nil {
			return nil, false, err
		}
		return m, false, nil
	}
	m := rawmap.New(v.backend)
	prefixBytes, err := m.Serialize()
	if err != nil {
		return nil, false, err
	}
	if err := outer.Insert(key, prefixBytes); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (v *VRMap) getInnerMap(outer *rawmap.Map, key []byte) (inner *rawmap.Map, ok bool, err error) {
	buf, ok, err := outer.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := rawmap.Deserialize(v.backend, buf)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// Close releases the trash-cleaner queue. The backend itself is owned
// by the caller, not by VRMap, and is not closed here.
func (v *VRMap) Close() error {
	return v.trash.close()
}
