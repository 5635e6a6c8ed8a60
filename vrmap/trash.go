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

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerkv/vrmap/rawmap"
)

// trashCleaner runs clear() on abandoned Maps off the caller's
// critical path (spec.md §4.7: branch_remove "defers map cleanup" to
// "a trash-cleaner queue"; externally the branch looks removed
// immediately). One queue, drained by a single worker goroutine, per
// VRMap instance.
type trashCleaner struct {
	log   *zap.Logger
	group *errgroup.Group
	ctx   context.Context
	jobs  chan *rawmap.Map
	done  chan struct{}
}

func newTrashCleaner(log *zap.Logger) *trashCleaner {
	ctx := context.Background()
	group, ctx := errgroup.WithContext(ctx)
	tc := &trashCleaner{
		log:   log,
		group: group,
		ctx:   ctx,
		jobs:  make(chan *rawmap.Map, 256),
		done:  make(chan struct{}),
	}
	group.Go(tc.run)
	return tc
}

func (tc *trashCleaner) run() error {
	for m := range tc.jobs {
		if err := m.Clear(); err != nil {
			tc.log.Warn("vrmap: trash cleaner failed to clear abandoned map", zap.Error(err))
		}
	}
	close(tc.done)
	return nil
}

// submit enqueues m for asynchronous clearing. It does not block the
// logical writer on the clear's disk I/O unless the queue is full, in
// which case the clear runs inline.
func (tc *trashCleaner) submit(m *rawmap.Map) {
	select {
	case tc.jobs <- m:
	default:
		// queue saturated: clear synchronously rather than drop the
		// cleanup or block indefinitely.
		if err := m.Clear(); err != nil {
			tc.log.Warn("vrmap: synchronous fallback clear failed", zap.Error(err))
		}
	}
}

// close drains the queue and stops the worker.
func (tc *trashCleaner) close() error {
	close(tc.jobs)
	<-tc.done
	return tc.group.Wait()
}
