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

// Package prefixedmap presents an ordered byte-keyed map whose storage
// is exactly one kv.Backend prefix (spec.md §4.2). A Map owns its
// prefix exclusively. There is no separate read-only handle type: a
// second Map bound to the same prefix via FromPrefix or Deserialize
// shares the storage and can mutate it like the first.
package prefixedmap

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ledgerkv/vrmap/kv"
)

// clearChunkSize bounds how many keys prefixedmap.Clear deletes per
// batch, per spec.md §4.2: never hold an iterator open across its own
// deletes.
const clearChunkSize = 4096

// Map owns one backend prefix and presents it as an ordered byte-keyed map.
type Map struct {
	backend kv.Backend
	prefix  uint64
	alloc   bool // true once a prefix has been allocated (lazily, on first write)
}

// New returns a Map that lazily allocates a prefix on its first write.
func New(backend kv.Backend) *Map {
	return &Map{backend: backend}
}

// FromPrefix binds to an existing prefix without reading anything,
// supporting recovery after a process restart.
func FromPrefix(backend kv.Backend, prefix uint64) *Map {
	return &Map{backend: backend, prefix: prefix, alloc: true}
}

// Prefix returns the map's backing prefix, allocating one now if this
// Map has never been written to.
func (m *Map) Prefix() (uint64, error) {
	if !m.alloc {
		p, err := m.backend.AllocPrefix()
		if err != nil {
			return 0, fmt.Errorf("prefixedmap: alloc prefix: %w", err)
		}
		m.prefix = p
		m.alloc = true
	}
	return m.prefix, nil
}

// Serialize returns the map's 8-byte big-endian prefix, allocating one
// if necessary. This is the entirety of a Map's persisted form.
func (m *Map) Serialize() ([]byte, error) {
	p, err := m.Prefix()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, p)
	return buf, nil
}

// Deserialize reconstructs a Map bound to the prefix encoded in buf.
func Deserialize(backend kv.Backend, buf []byte) (*Map, error) {
	if len(buf) != 8 {
		return nil, fmt.Errorf("prefixedmap: bad serialized prefix length %d", len(buf))
	}
	return FromPrefix(backend, binary.BigEndian.Uint64(buf)), nil
}

func (m *Map) Get(key []byte) ([]byte, bool, error) {
	if !m.alloc {
		return nil, false, nil
	}
	v, ok, err := m.backend.Get(m.prefix, key)
	if err != nil {
		return nil, false, fmt.Errorf("prefixedmap: get: %w", err)
	}
	return v, ok, nil
}

func (m *Map) Insert(key, value []byte) error {
	p, err := m.Prefix()
	if err != nil {
		return err
	}
	if err := m.backend.Insert(p, key, value); err != nil {
		return fmt.Errorf("prefixedmap: insert: %w", err)
	}
	return nil
}

func (m *Map) Remove(key []byte) error {
	if !m.alloc {
		return nil
	}
	if err := m.backend.Remove(m.prefix, key); err != nil {
		return fmt.Errorf("prefixedmap: remove: %w", err)
	}
	return nil
}

// Iter walks the whole map in ascending (or, reverse=true, descending) order.
func (m *Map) Iter(reverse bool) (kv.Iter, error) {
	if !m.alloc {
		return emptyIter{}, nil
	}
	it, err := m.backend.Iter(m.prefix, reverse)
	if err != nil {
		return nil, fmt.Errorf("prefixedmap: iter: %w", err)
	}
	return it, nil
}

// Range walks bounds within the map.
func (m *Map) Range(bounds kv.Bounds, reverse bool) (kv.Iter, error) {
	if !m.alloc {
		return emptyIter{}, nil
	}
	it, err := m.backend.Range(m.prefix, bounds, reverse)
	if err != nil {
		return nil, fmt.Errorf("prefixedmap: range: %w", err)
	}
	return it, nil
}

// Last returns the lexicographically largest key/value in the map.
func (m *Map) Last() (key, value []byte, ok bool, err error) {
	it, err := m.Iter(true)
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

// GetLE returns the entry at the largest key <= key.
func (m *Map) GetLE(key []byte) (foundKey, value []byte, ok bool, err error) {
	it, err := m.Range(kv.Bounds{End: key}, true)
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

// GetGE returns the entry at the smallest key >= key.
func (m *Map) GetGE(key []byte) (foundKey, value []byte, ok bool, err error) {
	it, err := m.Range(kv.Bounds{Start: key}, false)
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

// BatchEntry opens a Batch targeting this map's prefix, allocating one
// if necessary.
func (m *Map) BatchEntry() (kv.Batch, error) {
	p, err := m.Prefix()
	if err != nil {
		return nil, err
	}
	return m.backend.BatchBegin(p), nil
}

// Entry returns the current value for key, inserting def and returning
// it if key is absent.
func (m *Map) Entry(key, def []byte) ([]byte, error) {
	v, ok, err := m.Get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if err := m.Insert(key, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Clear removes every entry in the map, streaming deletions in bounded
// chunks and never holding an iterator open across its own deletes
// (spec.md §4.2): each chunk opens a fresh range iterator strictly
// after the previously observed last key, collects up to
// clearChunkSize keys, drops the iterator, then issues a batch delete.
func (m *Map) Clear() error {
	if !m.alloc {
		return nil
	}
	var after []byte
	for {
		bounds := kv.Bounds{}
		if after != nil {
			bounds.Start = after
			bounds.StartExclude = true
		}
		it, err := m.Range(bounds, false)
		if err != nil {
			return err
		}
		keys := make([][]byte, 0, clearChunkSize)
		for len(keys) < clearChunkSize && it.Next() {
			keys = append(keys, append([]byte(nil), it.Entry().Key...))
		}
		_ = it.Close()
		if len(keys) == 0 {
			return nil
		}
		batch, err := m.BatchEntry()
		if err != nil {
			return err
		}
		for _, k := range keys {
			batch.Remove(k)
		}
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("prefixedmap: clear commit: %w", err)
		}
		after = keys[len(keys)-1]
		if len(keys) < clearChunkSize {
			return nil
		}
	}
}

// Equal reports whether two maps share a prefix, or have identical
// key/value sequences under lexicographic key order.
func (m *Map) Equal(other *Map) (bool, error) {
	if m.backend == other.backend && m.alloc && other.alloc && m.prefix == other.prefix {
		return true, nil
	}
	ai, err := m.Iter(false)
	if err != nil {
		return false, err
	}
	defer ai.Close()
	bi, err := other.Iter(false)
	if err != nil {
		return false, err
	}
	defer bi.Close()
	for {
		an, bn := ai.Next(), bi.Next()
		if an != bn {
			return false, nil
		}
		if !an {
			return true, nil
		}
		ae, be := ai.Entry(), bi.Entry()
		if !bytes.Equal(ae.Key, be.Key) || !bytes.Equal(ae.Value, be.Value) {
			return false, nil
		}
	}
}

// Clone copies every entry into a brand-new map with a fresh prefix.
// Unlike FromPrefix/Deserialize, which bind a second handle to the same
// prefix, Clone duplicates the data, not just the handle.
func (m *Map) Clone() (*Map, error) {
	out := New(m.backend)
	if _, err := out.Prefix(); err != nil {
		return nil, err
	}
	it, err := m.Iter(false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	batch, err := out.BatchEntry()
	if err != nil {
		return nil, err
	}
	any := false
	for it.Next() {
		e := it.Entry()
		batch.Insert(e.Key, e.Value)
		any = true
	}
	if any {
		if err := batch.Commit(); err != nil {
			return nil, fmt.Errorf("prefixedmap: clone commit: %w", err)
		}
	}
	return out, nil
}

type emptyIter struct{}

func (emptyIter) Next() bool      { return false }
func (emptyIter) Entry() kv.Entry { return kv.Entry{} }
func (emptyIter) Close() error    { return nil }
