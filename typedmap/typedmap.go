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

// Package typedmap is a generic typed key/value wrapper over
// vrmap.VRMap (spec.md §2 component 5, out of scope for deep
// treatment): callers get back Go values instead of raw bytes, at the
// cost of supplying an encode/decode pair.
package typedmap

import "github.com/ledgerkv/vrmap/vrmap"

// Codec encodes/decodes a typed value to/from the raw bytes VRMap stores.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// Map is a typed view over one VRMap, using a caller-supplied key
// encoding and value Codec.
type Map[K, V any] struct {
	vr        *vrmap.VRMap
	encodeKey func(K) []byte
	codec     Codec[V]
}

func New[K, V any](vr *vrmap.VRMap, encodeKey func(K) []byte, codec Codec[V]) *Map[K, V] {
	return &Map[K, V]{vr: vr, encodeKey: encodeKey, codec: codec}
}

func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var zero V
	raw, ok, err := m.vr.Get(m.encodeKey(key))
	if err != nil || !ok {
		return zero, ok, err
	}
	val, err := m.codec.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

func (m *Map[K, V]) Insert(key K, value V) error {
	raw, err := m.codec.Encode(value)
	if err != nil {
		return err
	}
	_, _, err = m.vr.Insert(m.encodeKey(key), raw)
	return err
}

func (m *Map[K, V]) Remove(key K) error {
	_, _, err := m.vr.Remove(m.encodeKey(key))
	return err
}
