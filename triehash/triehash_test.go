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

package triehash

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func TestRootEmptyIsHashOfEmptyString(t *testing.T) {
	h := sha3.NewLegacyKeccak256()
	var want [32]byte
	copy(want[:], h.Sum(nil))
	require.Equal(t, want, Root(nil))
	require.Equal(t, want, Root([]KV{}))
}

func TestRootDeterministic(t *testing.T) {
	pairs := []KV{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}}
	r1 := Root(pairs)
	r2 := Root(pairs)
	require.Equal(t, r1, r2)
}

func TestRootOrderIndependent(t *testing.T) {
	forward := []KV{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}, {Key: []byte("c"), Value: []byte("3")}}
	shuffled := []KV{{Key: []byte("c"), Value: []byte("3")}, {Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}}
	require.Equal(t, Root(forward), Root(shuffled))
}

func TestRootSensitiveToValue(t *testing.T) {
	a := Root([]KV{{Key: []byte("k"), Value: []byte("v1")}})
	b := Root([]KV{{Key: []byte("k"), Value: []byte("v2")}})
	require.NotEqual(t, a, b)
}

func TestRootSensitiveToKeySet(t *testing.T) {
	a := Root([]KV{{Key: []byte("k1"), Value: []byte("v")}})
	b := Root([]KV{{Key: []byte("k2"), Value: []byte("v")}})
	require.NotEqual(t, a, b)
}

func TestRootDoesNotMutateInput(t *testing.T) {
	pairs := []KV{{Key: []byte("b"), Value: []byte("2")}, {Key: []byte("a"), Value: []byte("1")}}
	_ = Root(pairs)
	require.Equal(t, []byte("b"), pairs[0].Key)
	require.Equal(t, []byte("a"), pairs[1].Key)
}
