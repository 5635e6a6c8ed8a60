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
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/ledgerkv/vrmap/config"
)

// codec encodes/decodes stored values according to config.Compression.
// Compression is a pure storage-layer concern (spec.md §1 names it
// explicitly out of scope for VRMap itself); it lives entirely inside
// kv/boltdb.
type codec interface {
	encode(v []byte) ([]byte, error)
	decode(v []byte) ([]byte, error)
}

// codecFor has no case for config.CompressionLZ4: no lz4 package is
// reachable from this repo's dependency lineage, so it falls through
// to noneCodec rather than silently aliasing to another codec (see
// DESIGN.md).
func codecFor(c config.Compression) codec {
	switch c {
	case config.CompressionSnappy:
		return snappyCodec{}
	case config.CompressionZstd:
		return newZstdCodec()
	default:
		return noneCodec{}
	}
}

type noneCodec struct{}

func (noneCodec) encode(v []byte) ([]byte, error) { return v, nil }
func (noneCodec) decode(v []byte) ([]byte, error) { return v, nil }

type snappyCodec struct{}

func (snappyCodec) encode(v []byte) ([]byte, error) { return snappy.Encode(nil, v), nil }
func (snappyCodec) decode(v []byte) ([]byte, error) { return snappy.Decode(nil, v) }

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &zstdCodec{enc: enc, dec: dec}
}

func (c *zstdCodec) encode(v []byte) ([]byte, error) {
	return c.enc.EncodeAll(v, nil), nil
}

func (c *zstdCodec) decode(v []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(v, nil)
	if err != nil {
		return nil, fmt.Errorf("boltdb: zstd decode: %w", err)
	}
	return out, nil
}
