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

package prefixedmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerkv/vrmap/kv"
	"github.com/ledgerkv/vrmap/kv/memkv"
)

func TestLazyPrefixAllocation(t *testing.T) {
	b := memkv.New()
	m := New(b)

	_, ok, err := m.Get([]byte("x"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Insert([]byte("x"), []byte("v")))
	p, err := m.Prefix()
	require.NoError(t, err)
	require.GreaterOrEqual(t, p, kv.RESERVED_ID_CNT)
}

func TestGetInsertRemove(t *testing.T) {
	m := New(memkv.New())
	require.NoError(t, m.Insert([]byte("a"), []byte("1")))

	v, ok, err := m.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, m.Remove([]byte("a")))
	_, ok, err = m.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetLEGetGE(t *testing.T) {
	m := New(memkv.New())
	for _, k := range []string{"b", "d", "f"} {
		require.NoError(t, m.Insert([]byte(k), []byte(k)))
	}

	k, _, ok, err := m.GetLE([]byte("e"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "d", string(k))

	k, _, ok, err = m.GetGE([]byte("e"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "f", string(k))

	_, _, ok, err = m.GetLE([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)

	_, _, ok, err = m.GetGE([]byte("z"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLast(t *testing.T) {
	m := New(memkv.New())
	_, _, ok, err := m.Last()
	require.NoError(t, err)
	require.False(t, ok)

	for _, k := range []string{"a", "c", "b"} {
		require.NoError(t, m.Insert([]byte(k), []byte(k)))
	}
	k, v, ok, err := m.Last()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c", string(k))
	require.Equal(t, "c", string(v))
}

func TestEntry(t *testing.T) {
	m := New(memkv.New())
	v, err := m.Entry([]byte("k"), []byte("def"))
	require.NoError(t, err)
	require.Equal(t, []byte("def"), v)

	v, err = m.Entry([]byte("k"), []byte("other"))
	require.NoError(t, err)
	require.Equal(t, []byte("def"), v, "entry must not overwrite an existing value")
}

func TestClearAcrossChunks(t *testing.T) {
	m := New(memkv.New())
	const n = clearChunkSize*2 + 37
	for i := 0; i < n; i++ {
		k := make([]byte, 4)
		k[0], k[1], k[2], k[3] = byte(i>>24), byte(i>>16), byte(i>>8), byte(i)
		require.NoError(t, m.Insert(k, []byte("v")))
	}

	require.NoError(t, m.Clear())

	it, err := m.Iter(false)
	require.NoError(t, err)
	defer it.Close()
	require.False(t, it.Next())
}

func TestEqual(t *testing.T) {
	a := New(memkv.New())
	bck := memkv.New()
	b := New(bck)
	for _, k := range []string{"a", "b"} {
		require.NoError(t, a.Insert([]byte(k), []byte(k)))
		require.NoError(t, b.Insert([]byte(k), []byte(k)))
	}

	eq, err := a.Equal(b)
	require.NoError(t, err)
	require.True(t, eq)

	require.NoError(t, b.Insert([]byte("c"), []byte("c")))
	eq, err = a.Equal(b)
	require.NoError(t, err)
	require.False(t, eq)
}

func TestClone(t *testing.T) {
	src := New(memkv.New())
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, src.Insert([]byte(k), []byte(k+"v")))
	}

	dup, err := src.Clone()
	require.NoError(t, err)

	srcPrefix, err := src.Prefix()
	require.NoError(t, err)
	dupPrefix, err := dup.Prefix()
	require.NoError(t, err)
	require.NotEqual(t, srcPrefix, dupPrefix)

	eq, err := src.Equal(dup)
	require.NoError(t, err)
	require.True(t, eq)

	require.NoError(t, src.Insert([]byte("d"), []byte("dv")))
	eq, err = src.Equal(dup)
	require.NoError(t, err)
	require.False(t, eq, "clone must not alias the source's storage")
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	b := memkv.New()
	m := New(b)
	require.NoError(t, m.Insert([]byte("k"), []byte("v")))

	buf, err := m.Serialize()
	require.NoError(t, err)

	reopened, err := Deserialize(b, buf)
	require.NoError(t, err)
	v, ok, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}
