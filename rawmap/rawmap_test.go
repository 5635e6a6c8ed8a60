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

package rawmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerkv/vrmap/kv"
	"github.com/ledgerkv/vrmap/kv/memkv"
)

func TestBasicOps(t *testing.T) {
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

func TestSerializeFromPrefixShareStorage(t *testing.T) {
	b := memkv.New()
	m := New(b)
	require.NoError(t, m.Insert([]byte("k"), []byte("v")))

	buf, err := m.Serialize()
	require.NoError(t, err)

	reloaded, err := Deserialize(b, buf)
	require.NoError(t, err)
	v, ok, err := reloaded.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	require.NoError(t, reloaded.Insert([]byte("k2"), []byte("v2")))
	v, ok, err = m.Get([]byte("k2"))
	require.NoError(t, err)
	require.True(t, ok, "Deserialize must bind to the same storage, not a copy")
	require.Equal(t, []byte("v2"), v)
}

func TestLast(t *testing.T) {
	m := New(memkv.New())
	_, _, ok, err := m.Last()
	require.NoError(t, err)
	require.False(t, ok)

	for _, k := range []string{"a", "z", "m"} {
		require.NoError(t, m.Insert([]byte(k), []byte(k)))
	}
	k, _, ok, err := m.Last()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "z", string(k))
}

func TestIterAndRange(t *testing.T) {
	m := New(memkv.New())
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, m.Insert([]byte(k), []byte(k)))
	}

	it, err := m.Range(kv.Bounds{Start: []byte("b")}, false)
	require.NoError(t, err)
	defer it.Close()
	var got []string
	for it.Next() {
		got = append(got, string(it.Entry().Key))
	}
	require.Equal(t, []string{"b", "c"}, got)
}

func TestClear(t *testing.T) {
	m := New(memkv.New())
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, m.Insert([]byte(k), []byte(k)))
	}
	require.NoError(t, m.Clear())

	it, err := m.Iter(false)
	require.NoError(t, err)
	defer it.Close()
	require.False(t, it.Next())
}
