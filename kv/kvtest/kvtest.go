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

// Package kvtest is a backend-agnostic conformance suite for kv.Backend,
// run against both kv/boltdb and kv/memkv so the two engines are held to
// the same contract (spec.md §4.1).
package kvtest

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerkv/vrmap/kv"
)

// Run exercises every Backend method against a fresh instance produced
// by newBackend. Callers own lifecycle (newBackend should register its
// own t.Cleanup for temp dirs, file handles, etc).
func Run(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	t.Run("AllocPrefixMonotonic", func(t *testing.T) { testAllocPrefixMonotonic(t, newBackend) })
	t.Run("GetInsertRemove", func(t *testing.T) { testGetInsertRemove(t, newBackend) })
	t.Run("IterOrder", func(t *testing.T) { testIterOrder(t, newBackend) })
	t.Run("IterReverse", func(t *testing.T) { testIterReverse(t, newBackend) })
	t.Run("RangeBounds", func(t *testing.T) { testRangeBounds(t, newBackend) })
	t.Run("PrefixIsolation", func(t *testing.T) { testPrefixIsolation(t, newBackend) })
	t.Run("BatchCommitAtomic", func(t *testing.T) { testBatchCommitAtomic(t, newBackend) })
}

func testAllocPrefixMonotonic(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	b := newBackend(t)
	seen := make(map[uint64]bool)
	var last uint64
	for i := 0; i < 8; i++ {
		p, err := b.AllocPrefix()
		require.NoError(t, err)
		require.GreaterOrEqual(t, p, kv.RESERVED_ID_CNT)
		if i > 0 {
			require.Greater(t, p, last)
		}
		require.False(t, seen[p], "prefix %d allocated twice", p)
		seen[p] = true
		last = p
	}
}

func testGetInsertRemove(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	b := newBackend(t)
	prefix, err := b.AllocPrefix()
	require.NoError(t, err)

	_, ok, err := b.Get(prefix, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Insert(prefix, []byte("k1"), []byte("v1")))
	val, ok, err := b.Get(prefix, []byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), val)

	require.NoError(t, b.Insert(prefix, []byte("k1"), []byte("v2")))
	val, ok, err = b.Get(prefix, []byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), val)

	require.NoError(t, b.Remove(prefix, []byte("k1")))
	_, ok, err = b.Get(prefix, []byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)

	// removing an absent key is a no-op, not an error
	require.NoError(t, b.Remove(prefix, []byte("k1")))
}

func testIterOrder(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	b := newBackend(t)
	prefix, err := b.AllocPrefix()
	require.NoError(t, err)

	keys := []string{"b", "d", "a", "c"}
	for _, k := range keys {
		require.NoError(t, b.Insert(prefix, []byte(k), []byte(k+"v")))
	}

	it, err := b.Iter(prefix, false)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next() {
		e := it.Entry()
		got = append(got, string(e.Key))
		require.Equal(t, string(e.Key)+"v", string(e.Value))
	}
	require.NoError(t, it.Close())

	want := append([]string(nil), keys...)
	sort.Strings(want)
	require.Equal(t, want, got)
}

func testIterReverse(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	b := newBackend(t)
	prefix, err := b.AllocPrefix()
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, b.Insert(prefix, []byte(k), []byte(k)))
	}

	it, err := b.Iter(prefix, true)
	require.NoError(t, err)
	defer it.Close()
	var got []string
	for it.Next() {
		got = append(got, string(it.Entry().Key))
	}
	require.Equal(t, []string{"c", "b", "a"}, got)
}

func testRangeBounds(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	b := newBackend(t)
	prefix, err := b.AllocPrefix()
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, b.Insert(prefix, []byte(k), []byte(k)))
	}

	collect := func(bounds kv.Bounds, reverse bool) []string {
		it, err := b.Range(prefix, bounds, reverse)
		require.NoError(t, err)
		defer it.Close()
		var out []string
		for it.Next() {
			out = append(out, string(it.Entry().Key))
		}
		return out
	}

	require.Equal(t, []string{"b", "c", "d"}, collect(kv.Bounds{Start: []byte("b"), End: []byte("d")}, false))
	require.Equal(t, []string{"c", "d"}, collect(kv.Bounds{Start: []byte("b"), End: []byte("d"), StartExclude: true}, false))
	require.Equal(t, []string{"b", "c"}, collect(kv.Bounds{Start: []byte("b"), End: []byte("d"), EndExclude: true}, false))
	require.Equal(t, []string{"d", "c", "b"}, collect(kv.Bounds{Start: []byte("b"), End: []byte("d")}, true))
	require.Nil(t, collect(kv.Bounds{Start: []byte("z")}, false))
}

func testPrefixIsolation(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	b := newBackend(t)
	p1, err := b.AllocPrefix()
	require.NoError(t, err)
	p2, err := b.AllocPrefix()
	require.NoError(t, err)

	require.NoError(t, b.Insert(p1, []byte("x"), []byte("from-p1")))
	require.NoError(t, b.Insert(p2, []byte("x"), []byte("from-p2")))

	v1, ok, err := b.Get(p1, []byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("from-p1"), v1)

	v2, ok, err := b.Get(p2, []byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("from-p2"), v2)

	it, err := b.Iter(p1, false)
	require.NoError(t, err)
	defer it.Close()
	n := 0
	for it.Next() {
		n++
	}
	require.Equal(t, 1, n)
}

func testBatchCommitAtomic(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	b := newBackend(t)
	prefix, err := b.AllocPrefix()
	require.NoError(t, err)
	require.NoError(t, b.Insert(prefix, []byte("keep"), []byte("1")))
	require.NoError(t, b.Insert(prefix, []byte("drop"), []byte("1")))

	batch := b.BatchBegin(prefix)
	batch.Insert([]byte("new"), []byte("2"))
	batch.Remove([]byte("drop"))
	require.NoError(t, batch.Commit())

	_, ok, err := b.Get(prefix, []byte("drop"))
	require.NoError(t, err)
	require.False(t, ok)

	val, ok, err := b.Get(prefix, []byte("new"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), val)

	val, ok, err = b.Get(prefix, []byte("keep"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), val)
}
