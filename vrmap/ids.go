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

import "encoding/binary"

// BranchId and VersionId are fixed 8-byte big-endian identifiers
// (spec.md §3): big-endian so lexicographic byte order on the backend
// equals numeric order.
type BranchId uint64
type VersionId uint64

// NullId is the reserved sentinel denoting "no id".
const NullId = 0

// VerIdMax is the maximum VersionId, used as a sorting guard when a
// caller wants "no upper bound" expressed as a concrete id.
const VerIdMax = VersionId(^uint64(0))

// InitialBranchId and InitialBranchName identify the branch VRMap
// creates for itself at construction (spec.md §3/§4.3).
const InitialBranchId = BranchId(1)

var InitialBranchName = []byte("main")

func (b BranchId) bytes() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(b))
	return buf
}

func branchIdFromBytes(buf []byte) BranchId {
	return BranchId(binary.BigEndian.Uint64(buf))
}

func (v VersionId) bytes() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func versionIdFromBytes(buf []byte) VersionId {
	return VersionId(binary.BigEndian.Uint64(buf))
}
