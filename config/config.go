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

// Package config holds the enumerated options consumed by a Flat KV
// Backend collaborator (spec.md §6). VRMap itself takes no
// configuration; everything here is plumbed straight through to
// whichever kv.Backend implementation is in use.
package config

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
)

// Compression selects the value-compression codec a backend applies.
// Physical backend tuning is explicitly out of scope for VRMap's own
// semantics (spec.md §1); it lives entirely inside the backend.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
	CompressionSnappy
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// BackendConfig is the configuration surface of spec.md §6:
// {base_directory, compression, cache_size_bytes, shard_count}, plus
// two fields real embedded engines need in practice: opening read-only,
// and how eagerly committed writes are fsync'd.
type BackendConfig struct {
	BaseDirectory  string
	Compression    Compression
	CacheSizeBytes datasize.ByteSize
	ShardCount     uint16
	ReadOnly       bool
	FlushEverySync time.Duration
}

// DefaultBackendConfig returns sane defaults for a single-node embedded
// deployment: no compression, a modest read cache, no sharding.
func DefaultBackendConfig(baseDir string) BackendConfig {
	return BackendConfig{
		BaseDirectory:  baseDir,
		Compression:    CompressionNone,
		CacheSizeBytes: 64 * datasize.MB,
		ShardCount:     1,
		FlushEverySync: time.Second,
	}
}
