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

// Package kv defines the flat, byte-prefixed key-value backend contract
// that prefixedmap.Map and vrmap.VRMap are built on. The contract is
// engine-agnostic: an LSM tree, a B+-tree, or an in-memory ordered map
// can all satisfy it, as long as they honor the iteration and snapshot
// guarantees documented on Backend.
package kv

import "errors"

// RESERVED_ID_CNT is the number of low prefix values reserved for the
// backend's own metadata (the prefix allocator watermark, schema info,
// etc). The first prefix handed out by AllocPrefix is RESERVED_ID_CNT.
const RESERVED_ID_CNT uint64 = 16

var (
	// ErrClosed is returned by any Backend method called after Close.
	ErrClosed = errors.New("kv: backend closed")
	// ErrLocked is returned when opening a backend for read-write while
	// another process already holds the single-writer lock.
	ErrLocked = errors.New("kv: backend locked by another writer")
)

// Bounds describes a range scan relative to a single prefix's own
// keyspace (the backend concatenates the prefix internally). A nil
// Start/End means unbounded in that direction.
type Bounds struct {
	Start        []byte
	End          []byte
	StartExclude bool
	EndExclude bool
}

// Entry is one key/value pair yielded by an Iter.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iter walks entries in lexicographic key order (or its reverse). It
// represents a point-in-time snapshot: writes committed after the Iter
// was created must not change what it yields.
type Iter interface {
	// Next advances the iterator and reports whether an entry is
	// available. It must be called before the first Entry.
	Next() bool
	// Entry returns the current key/value. Invalid before the first
	// Next call or after Next returns false.
	Entry() Entry
	// Close releases resources held by the iterator. Safe to call more
	// than once.
	Close() error
}

// Batch accumulates writes against one prefix for atomic commit.
type Batch interface {
	Insert(key, value []byte)
	Remove(key []byte)
	// Commit applies all accumulated writes atomically. The Batch must
	// not be reused afterwards.
	Commit() error
}

// Backend is the flat byte-prefixed key-value contract of spec.md §4.1.
// All operations address one logical keyspace per prefix; physically
// the backend may store `prefix ‖ key` in one shared space (as
// kv/boltdb and kv/memkv both do).
type Backend interface {
	// AllocPrefix returns a strictly monotonic 8-byte-wide prefix,
	// crash-safe: the persisted watermark is always >= the highest
	// value ever returned, even if the process crashes mid-allocation.
	AllocPrefix() (uint64, error)

	Get(prefix uint64, key []byte) ([]byte, bool, error)
	Insert(prefix uint64, key, value []byte) error
	Remove(prefix uint64, key []byte) error

	// Iter walks all entries whose stored key begins with prefix, in
	// ascending order. Pass reverse=true for descending order. The
	// iterator must stop exactly at the prefix boundary.
	Iter(prefix uint64, reverse bool) (Iter, error)

	// Range walks entries within prefix bounded by bounds (computed
	// relative to the user key, i.e. without the prefix). Pass
	// reverse=true for descending order.
	Range(prefix uint64, bounds Bounds, reverse bool) (Iter, error)

	// BatchBegin opens a new Batch targeting prefix.
	BatchBegin(prefix uint64) Batch

	// Flush is a durability barrier: once it returns, all writes
	// committed before the call survive a crash.
	Flush() error

	// Close releases the backend's resources (file handles, locks).
	Close() error
}
