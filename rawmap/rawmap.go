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

// Package rawmap is a version-less thin facade over prefixedmap.Map,
// used only for VRMap's own metadata tables (branch/version naming,
// head pointers) where versioning would be circular. Not a
// general-purpose component; spec.md §2 places it out of scope for
// deep treatment.
package rawmap

import (
	"fmt"

	"github.com/ledgerkv/vrmap/kv"
	"github.com/ledgerkv/vrmap/prefixedmap"
)

// Map is a plain byte-keyed map: no branch, no version, no history.
type Map struct {
	inner *prefixedmap.Map
}

func New(backend kv.Backend) *Map {
	return &Map{inner: prefixedmap.New(backend)}
}

func FromPrefix(backend kv.Backend, prefix uint64) *Map {
	return &Map{inner: prefixedmap.FromPrefix(backend, prefix)}
}

func Deserialize(backend kv.Backend, buf []byte) (*Map, error) {
	m, err := prefixedmap.Deserialize(backend, buf)
	if err != nil {
		return nil, fmt.Errorf("rawmap: %w", err)
	}
	return &Map{inner: m}, nil
}

func (m *Map) Serialize() ([]byte, error) { return m.inner.Serialize() }

func (m *Map) Get(key []byte) ([]byte, bool, error) { return m.inner.Get(key) }

func (m *Map) Insert(key, value []byte) error { return m.inner.Insert(key, value) }

func (m *Map) Remove(key []byte) error { return m.inner.Remove(key) }

func (m *Map) Iter(reverse bool) (kv.Iter, error) { return m.inner.Iter(reverse) }

func (m *Map) Range(bounds kv.Bounds, reverse bool) (kv.Iter, error) {
	return m.inner.Range(bounds, reverse)
}

func (m *Map) Clear() error { return m.inner.Clear() }

func (m *Map) Last() (key, value []byte, ok bool, err error) { return m.inner.Last() }
