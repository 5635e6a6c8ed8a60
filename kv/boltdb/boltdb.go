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

// Package boltdb is a reference kv.Backend built on go.etcd.io/bbolt, an
// embedded LMDB-style B+-tree. It stores every record in one bucket
// keyed by prefix(8B BE) ‖ user_key, matching the physical key layout
// spec.md §4.1 describes (and the same family Erigon's own MDBX-backed
// erigon-lib/kv belongs to).
package boltdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/ledgerkv/vrmap/config"
	"github.com/ledgerkv/vrmap/kv"
	"github.com/ledgerkv/vrmap/metrics"
)

var (
	dataBucket = []byte("flat")
	metaBucket = []byte("meta")
	ceilingKey = []byte("prefix_ceiling")
)

// reservationBlock is how many prefixes are reserved from the persisted
// ceiling per batch, per spec.md's Design Notes on crash-safe allocation.
const reservationBlock = 64

// Backend is a kv.Backend over a single bbolt database file.
type Backend struct {
	db   *bbolt.DB
	lock *flockHandle // nil when opened read-only

	log *zap.Logger

	mu       sync.Mutex
	next     uint64
	ceiling  uint64

	cache *lru.Cache[string, []byte]
	codec codec
}

// Open opens (creating if absent) a boltdb-backed Backend rooted at
// cfg.BaseDirectory. When cfg.ReadOnly is false it takes the advisory
// single-writer lock described in spec.md §5.
func Open(cfg config.BackendConfig, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var fl *flockHandle
	if !cfg.ReadOnly {
		var err error
		fl, err = acquireLock(filepath.Join(cfg.BaseDirectory, "LOCK"))
		if err != nil {
			return nil, err
		}
	}

	dbPath := filepath.Join(cfg.BaseDirectory, "data.bolt")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{ReadOnly: cfg.ReadOnly})
	if err != nil {
		if fl != nil {
			_ = fl.release()
		}
		return nil, fmt.Errorf("boltdb: open %s: %w", dbPath, err)
	}

	b := &Backend{db: db, lock: fl, log: log, codec: codecFor(cfg.Compression)}

	if !cfg.ReadOnly {
		if err := db.Update(func(tx *bbolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(dataBucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
				return err
			}
			return nil
		}); err != nil {
			_ = db.Close()
			if fl != nil {
				_ = fl.release()
			}
			return nil, fmt.Errorf("boltdb: init buckets: %w", err)
		}
	}

	if err := db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(metaBucket)
		if mb == nil {
			return nil
		}
		if v := mb.Get(ceilingKey); v != nil {
			b.ceiling = binary.BigEndian.Uint64(v)
			b.next = b.ceiling
		}
		return nil
	}); err != nil {
		_ = db.Close()
		if fl != nil {
			_ = fl.release()
		}
		return nil, fmt.Errorf("boltdb: read ceiling: %w", err)
	}
	if b.next < kv.RESERVED_ID_CNT {
		b.next = kv.RESERVED_ID_CNT
		b.ceiling = kv.RESERVED_ID_CNT
	}

	if cfg.CacheSizeBytes > 0 {
		entries := int(cfg.CacheSizeBytes / 256)
		if entries < 64 {
			entries = 64
		}
		c, err := lru.New[string, []byte](entries)
		if err != nil {
			_ = db.Close()
			if fl != nil {
				_ = fl.release()
			}
			return nil, fmt.Errorf("boltdb: build cache: %w", err)
		}
		b.cache = c
	}

	return b, nil
}

func (b *Backend) AllocPrefix() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.next >= b.ceiling {
		newCeiling := b.ceiling + reservationBlock
		if err := b.db.Update(func(tx *bbolt.Tx) error {
			mb := tx.Bucket(metaBucket)
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, newCeiling)
			return mb.Put(ceilingKey, buf)
		}); err != nil {
			return 0, fmt.Errorf("boltdb: persist ceiling: %w", err)
		}
		b.ceiling = newCeiling
	}
	p := b.next
	b.next++
	metrics.BackendPrefixAllocs.Inc()
	return p, nil
}

func composite(prefix uint64, key []byte) []byte {
	buf := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(buf[:8], prefix)
	copy(buf[8:], key)
	return buf
}

func prefixUpperBound(prefix uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, prefix+1)
	return buf
}

func (b *Backend) Get(prefix uint64, key []byte) ([]byte, bool, error) {
	ck := composite(prefix, key)
	if b.cache != nil {
		if v, ok := b.cache.Get(string(ck)); ok {
			metrics.BackendCacheHits.Inc()
			if v == nil {
				return nil, false, nil
			}
			return v, true, nil
		}
	}
	var out []byte
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		db := tx.Bucket(dataBucket)
		if db == nil {
			return nil
		}
		v := db.Get(ck)
		if v == nil {
			return nil
		}
		found = true
		dec, err := b.codec.decode(v)
		if err != nil {
			return err
		}
		out = append([]byte(nil), dec...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("boltdb: get: %w", err)
	}
	metrics.BackendGets.Inc()
	if b.cache != nil {
		if found {
			b.cache.Add(string(ck), out)
		} else {
			b.cache.Add(string(ck), nil)
		}
	}
	return out, found, nil
}

func (b *Backend) Insert(prefix uint64, key, value []byte) error {
	ck := composite(prefix, key)
	enc, err := b.codec.encode(value)
	if err != nil {
		return fmt.Errorf("boltdb: encode: %w", err)
	}
	if err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Put(ck, enc)
	}); err != nil {
		return fmt.Errorf("boltdb: insert: %w", err)
	}
	if b.cache != nil {
		b.cache.Add(string(ck), append([]byte(nil), value...))
	}
	metrics.BackendInserts.Inc()
	return nil
}

func (b *Backend) Remove(prefix uint64, key []byte) error {
	ck := composite(prefix, key)
	if err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Delete(ck)
	}); err != nil {
		return fmt.Errorf("boltdb: remove: %w", err)
	}
	if b.cache != nil {
		b.cache.Remove(string(ck))
	}
	metrics.BackendRemoves.Inc()
	return nil
}

func (b *Backend) Iter(prefix uint64, reverse bool) (kv.Iter, error) {
	return b.Range(prefix, kv.Bounds{}, reverse)
}

func (b *Backend) Range(prefix uint64, bounds kv.Bounds, reverse bool) (kv.Iter, error) {
	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("boltdb: begin read tx: %w", err)
	}
	bucket := tx.Bucket(dataBucket)
	if bucket == nil {
		_ = tx.Rollback()
		return &emptyIter{}, nil
	}
	lowBound := composite(prefix, bounds.Start)
	var highBound []byte
	var highExclusive bool
	if bounds.End != nil {
		highBound = composite(prefix, bounds.End)
		highExclusive = bounds.EndExclude
	} else {
		highBound = prefixUpperBound(prefix)
		highExclusive = true
	}
	return &boltIter{
		tx:            tx,
		cur:           bucket.Cursor(),
		prefix:        composite(prefix, nil),
		low:           lowBound,
		high:          highBound,
		startExclude:  bounds.StartExclude,
		highExclusive: highExclusive,
		reverse:       reverse,
		codec:         b.codec,
	}, nil
}

type boltIter struct {
	tx                *bbolt.Tx
	cur               *bbolt.Cursor
	prefix, low, high []byte
	startExclude      bool
	highExclusive     bool
	reverse           bool
	started           bool
	currKey, currValue      []byte
	codec             codec
}

func (it *boltIter) Next() bool {
	var k, v []byte
	if !it.started {
		it.started = true
		if it.reverse {
			k, v = it.cur.Seek(it.high)
			switch {
			case k == nil:
				k, v = it.cur.Last()
			case !it.highExclusive && bytes.Equal(k, it.high):
				// exact inclusive match at the upper bound: keep it
			default:
				k, v = it.cur.Prev()
			}
		} else {
			k, v = it.cur.Seek(it.low)
		}
	} else if it.reverse {
		k, v = it.cur.Prev()
	} else {
		k, v = it.cur.Next()
	}

	for k != nil {
		if !bytes.HasPrefix(k, it.prefix) {
			return false
		}
		if it.withinBounds(k) {
			it.currKey, it.currValue = k, v
			return true
		}
		if it.reverse {
			if bytes.Compare(k, it.low) < 0 {
				return false
			}
			k, v = it.cur.Prev()
		} else {
			cmpHigh := bytes.Compare(k, it.high)
			if cmpHigh > 0 || (cmpHigh == 0 && it.highExclusive) {
				return false
			}
			k, v = it.cur.Next()
		}
	}
	return false
}

func (it *boltIter) withinBounds(k []byte) bool {
	if bytes.Compare(k, it.low) < 0 {
		return false
	}
	if it.startExclude && bytes.Equal(k, it.low) {
		return false
	}
	cmpHigh := bytes.Compare(k, it.high)
	if cmpHigh > 0 {
		return false
	}
	if cmpHigh == 0 && it.highExclusive {
		return false
	}
	return true
}

func (it *boltIter) Entry() kv.Entry {
	dec, err := it.codec.decode(it.currValue)
	if err != nil {
		dec = it.currValue
	}
	return kv.Entry{Key: append([]byte(nil), it.currKey[8:]...), Value: append([]byte(nil), dec...)}
}

func (it *boltIter) Close() error {
	return it.tx.Rollback()
}

type emptyIter struct{}

func (emptyIter) Next() bool      { return false }
func (emptyIter) Entry() kv.Entry { return kv.Entry{} }
func (emptyIter) Close() error    { return nil }

type boltBatch struct {
	db     *bbolt.DB
	cache  *lru.Cache[string, []byte]
	prefix uint64
	codec  codec
	inserts map[string][]byte
	removes map[string]struct{}
}

func (b *Backend) BatchBegin(prefix uint64) kv.Batch {
	return &boltBatch{
		db:      b.db,
		cache:   b.cache,
		prefix:  prefix,
		codec:   b.codec,
		inserts: make(map[string][]byte),
		removes: make(map[string]struct{}),
	}
}

func (bb *boltBatch) Insert(key, value []byte) {
	k := string(key)
	delete(bb.removes, k)
	bb.inserts[k] = append([]byte(nil), value...)
}

func (bb *boltBatch) Remove(key []byte) {
	k := string(key)
	delete(bb.inserts, k)
	bb.removes[k] = struct{}{}
}

func (bb *boltBatch) Commit() error {
	if bb.cache != nil {
		defer func() {
			for k := range bb.inserts {
				bb.cache.Remove(string(composite(bb.prefix, []byte(k))))
			}
			for k := range bb.removes {
				bb.cache.Remove(string(composite(bb.prefix, []byte(k))))
			}
		}()
	}
	return bb.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(dataBucket)
		for k, v := range bb.inserts {
			enc, err := bb.codec.encode(v)
			if err != nil {
				return err
			}
			if err := bucket.Put(composite(bb.prefix, []byte(k)), enc); err != nil {
				return err
			}
		}
		for k := range bb.removes {
			if err := bucket.Delete(composite(bb.prefix, []byte(k))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) Flush() error {
	return b.db.Sync()
}

func (b *Backend) Close() error {
	err := b.db.Close()
	if b.lock != nil {
		if lerr := b.lock.release(); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}
