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

package boltdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerkv/vrmap/config"
	"github.com/ledgerkv/vrmap/kv"
	"github.com/ledgerkv/vrmap/kv/kvtest"
)

func openForTest(t *testing.T) kv.Backend {
	dir := t.TempDir()
	b, err := Open(config.DefaultBackendConfig(dir), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackendConformance(t *testing.T) {
	kvtest.Run(t, openForTest)
}

func TestAllocPrefixSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultBackendConfig(dir)

	b1, err := Open(cfg, nil)
	require.NoError(t, err)
	p1, err := b1.AllocPrefix()
	require.NoError(t, err)
	require.NoError(t, b1.Close())

	b2, err := Open(cfg, nil)
	require.NoError(t, err)
	defer b2.Close()
	p2, err := b2.AllocPrefix()
	require.NoError(t, err)
	require.Greater(t, p2, p1)
}

func TestSecondWriterLockRejected(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultBackendConfig(dir)

	b1, err := Open(cfg, nil)
	require.NoError(t, err)
	defer b1.Close()

	_, err = Open(cfg, nil)
	require.Error(t, err)
}

func TestFlushAndCompressionRoundTrip(t *testing.T) {
	for _, comp := range []config.Compression{config.CompressionNone, config.CompressionZstd, config.CompressionSnappy} {
		cfg := config.DefaultBackendConfig(t.TempDir())
		cfg.Compression = comp
		b, err := Open(cfg, nil)
		require.NoError(t, err)

		prefix, err := b.AllocPrefix()
		require.NoError(t, err)
		require.NoError(t, b.Insert(prefix, []byte("k"), []byte("a value worth compressing, repeated, repeated, repeated")))
		require.NoError(t, b.Flush())

		val, ok, err := b.Get(prefix, []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "a value worth compressing, repeated, repeated, repeated", string(val))
		require.NoError(t, b.Close())
	}
}
