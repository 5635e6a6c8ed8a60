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
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/ledgerkv/vrmap/kv"
)

// flockHandle wraps an advisory file lock guarding the single-logical-writer
// assumption of spec.md §5: a second process opening the same base
// directory for read-write fails fast instead of racing the first writer.
type flockHandle struct {
	fl *flock.Flock
}

func acquireLock(path string) (*flockHandle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("boltdb: mkdir for lock: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("boltdb: lock %s: %w", path, err)
	}
	if !ok {
		return nil, kv.ErrLocked
	}
	return &flockHandle{fl: fl}, nil
}

func (h *flockHandle) release() error {
	return h.fl.Unlock()
}
