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

package vrmap

import "errors"

// Sentinel errors, one per error kind of spec.md §7. Callers should
// match with errors.Is; wrapped context is added with fmt.Errorf's %w.
var (
	ErrBranchNotFound        = errors.New("vrmap: branch not found")
	ErrVersionNotFound       = errors.New("vrmap: version not found")
	ErrBranchExists          = errors.New("vrmap: branch already exists")
	ErrVersionExists         = errors.New("vrmap: version already exists")
	ErrNoVersionOnBranch     = errors.New("vrmap: branch has no versions")
	ErrBaseVersionNotOnBranch = errors.New("vrmap: base version is not on base branch")
	ErrUnsafeMerge           = errors.New("vrmap: merge target has diverged; use branch_merge_to_force")
	ErrInvalidReservedNum    = errors.New("vrmap: reserved version count must be >= 1")
	ErrLockBusy              = errors.New("vrmap: prune lock busy")
	ErrEmptyValueNotAllowed  = errors.New("vrmap: empty values are not allowed (reserved for tombstones)")
	ErrInternal              = errors.New("vrmap: internal error")
)
