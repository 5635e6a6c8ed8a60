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

// Package memkv is a second, independent kv.Backend: a pure in-memory
// ordered map. It exists to prove the Flat Byte-Prefixed KV Backend
// contract is engine-agnostic (spec.md §1) and to give tests a
// zero-setup backend that doesn't need a temp directory.
package memkv

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/tidwall/btree"

	"github.com/ledgerkv/vrmap/kv"
)

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool { return bytes.Compare(a.key, b.key) < 0 }

// Backend is an in-memory kv.Backend. The zero value is not usable; use New.
type Backend struct {
	mu   sync.Mutex
	tree *btree.BTreeG[item]
	next uint64
}

// New returns an empty in-memory Backend.
func New() *Backend {
	return &Backend{
		tree: btree.NewBTreeG[item](less),
		next: kv.RESERVED_ID_CNT,
	}
}

func composite(prefix uint64, key []byte) []byte {
	buf := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(buf[:8], prefix)
	copy(buf[8:], key)
	return buf
}

func prefixUpperBound(prefix uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, prefix+1)
	return buf
}

func (b *Backend) AllocPrefix() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.next
	b.next++
	return p, nil
}

func (b *Backend) Get(prefix uint64, key []byte) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.tree.Get(item{key: composite(prefix, key)})
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v.value...), true, nil
}

func (b *Backend) Insert(prefix uint64, key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree.Set(item{key: composite(prefix, key), value: append([]byte(nil), value...)})
	return nil
}

func (b *Backend) Remove(prefix uint64, key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree.Delete(item{key: composite(prefix, key)})
	return nil
}

func (b *Backend) Iter(prefix uint64, reverse bool) (kv.Iter, error) {
	return b.Range(prefix, kv.Bounds{}, reverse)
}

// Range takes a copy-on-write snapshot of the tree (btree.BTreeG.Copy is
// O(1) and lazily forks pages on the next write) so the returned Iter
// observes a consistent point in time regardless of writes that happen
// after Range returns, per spec.md §4.1's snapshot-iteration invariant.
func (b *Backend) Range(prefix uint64, bounds kv.Bounds, reverse bool) (kv.Iter, error) {
	b.mu.Lock()
	snap := b.tree.Copy()
	b.mu.Unlock()

	low := composite(prefix, bounds.Start)
	var high []byte
	var highExclusive bool
	if bounds.End != nil {
		high = composite(prefix, bounds.End)
		highExclusive = bounds.EndExclude
	} else {
		high = prefixUpperBound(prefix)
		highExclusive = true
	}

	it := &memIter{
		tree:          snap,
		prefix:        composite(prefix, nil),
		low:           low,
		high:          high,
		startExclude:  bounds.StartExclude,
		highExclusive: highExclusive,
		reverse:       reverse,
	}
	it.materialize()
	return it, nil
}

type memIter struct {
	tree          *btree.BTreeG[item]
	prefix, low, high []byte
	startExclude  bool
	highExclusive bool
	reverse       bool

	entries []kv.Entry
	pos     int
}

func (it *memIter) materialize() {
	visit := func(v item) bool {
		if !bytes.HasPrefix(v.key, it.prefix) {
			return false
		}
		if bytes.Compare(v.key, it.low) < 0 {
			return !it.reverse
		}
		if it.startExclude && bytes.Equal(v.key, it.low) {
			return true
		}
		cmpHigh := bytes.Compare(v.key, it.high)
		if cmpHigh > 0 || (cmpHigh == 0 && it.highExclusive) {
			return it.reverse
		}
		it.entries = append(it.entries, kv.Entry{
			Key:   append([]byte(nil), v.key[8:]...),
			Value: append([]byte(nil), v.value...),
		})
		return true
	}
	if it.reverse {
		it.tree.Descend(item{key: it.high}, visit)
		reverseEntries(it.entries)
	} else {
		it.tree.Ascend(item{key: it.low}, visit)
	}
	it.pos = -1
}

func reverseEntries(e []kv.Entry) {
	for i, j := 0, len(e)-1; i < j; i, j = i+1, j-1 {
		e[i], e[j] = e[j], e[i]
	}
}

func (it *memIter) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

func (it *memIter) Entry() kv.Entry {
	return it.entries[it.pos]
}

func (it *memIter) Close() error { return nil }

type memBatch struct {
	b       *Backend
	prefix  uint64
	inserts map[string][]byte
	removes map[string]struct{}
}

func (b *Backend) BatchBegin(prefix uint64) kv.Batch {
	return &memBatch{
		b:       b,
		prefix:  prefix,
		inserts: make(map[string][]byte),
		removes: make(map[string]struct{}),
	}
}

func (mb *memBatch) Insert(key, value []byte) {
	k := string(key)
	delete(mb.removes, k)
	mb.inserts[k] = append([]byte(nil), value...)
}

func (mb *memBatch) Remove(key []byte) {
	k := string(key)
	delete(mb.inserts, k)
	mb.removes[k] = struct{}{}
}

func (mb *memBatch) Commit() error {
	mb.b.mu.Lock()
	defer mb.b.mu.Unlock()
	for k, v := range mb.inserts {
		mb.b.tree.Set(item{key: composite(mb.prefix, []byte(k)), value: v})
	}
	for k := range mb.removes {
		mb.b.tree.Delete(item{key: composite(mb.prefix, []byte(k))})
	}
	return nil
}

func (b *Backend) Flush() error { return nil }
func (b *Backend) Close() error { return nil }
