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

package typedmap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerkv/vrmap/kv/memkv"
	"github.com/ledgerkv/vrmap/vrmap"
)

type uint64Codec struct{}

func (uint64Codec) Encode(v uint64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf, nil
}

func (uint64Codec) Decode(b []byte) (uint64, error) {
	return binary.BigEndian.Uint64(b), nil
}

func newTestMap(t *testing.T) *Map[string, uint64] {
	vr, err := vrmap.New(memkv.New(), vrmap.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vr.Close() })
	_, err = vr.VersionCreateOnDefault([]byte("v0"))
	require.NoError(t, err)
	return New(vr, func(k string) []byte { return []byte(k) }, uint64Codec{})
}

func TestGetInsertRoundTrip(t *testing.T) {
	m := newTestMap(t)
	require.NoError(t, m.Insert("balance", 42))

	got, ok, err := m.Get("balance")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), got)
}

func TestGetMissingKey(t *testing.T) {
	m := newTestMap(t)
	got, ok, err := m.Get("nope")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(0), got)
}

func TestRemove(t *testing.T) {
	m := newTestMap(t)
	require.NoError(t, m.Insert("balance", 42))
	require.NoError(t, m.Remove("balance"))

	_, ok, err := m.Get("balance")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertOverwritesPreviousValue(t *testing.T) {
	m := newTestMap(t)
	require.NoError(t, m.Insert("balance", 1))
	require.NoError(t, m.Insert("balance", 2))

	got, ok, err := m.Get("balance")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), got)
}
