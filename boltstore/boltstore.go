// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package boltstore is a durable txdb.Database backed by boltdb/bolt: one
// bucket holding, per key, an 8-byte big-endian version prefix followed by
// a tagged encoding of its value.Literal. CPut runs the whole
// check-then-install step inside a single bolt read-write transaction, so
// bolt's own single-writer locking gives the compare-and-swap its
// atomicity for free (spec.md §4.4).
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/kvtxn/kvtxn/txdb"
	"github.com/kvtxn/kvtxn/value"
)

func doubleBits(f float64) uint64   { return math.Float64bits(f) }
func doubleFromBits(b uint64) float64 { return math.Float64frombits(b) }

var bucketName = []byte("kvtxn")

// Store is a boltdb-backed txdb.Database.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) a bolt database file at path and ensures
// the kvtxn bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening bolt database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating kvtxn bucket")
	}
	return &Store{db: db}, nil
}

// Get performs a bulk snapshot read inside one bolt read-only transaction.
func (s *Store) Get(_ context.Context, keys []string) (map[string]value.Revision, error) {
	out := make(map[string]value.Revision, len(keys))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, k := range keys {
			raw := b.Get([]byte(k))
			if raw == nil {
				out[k] = value.ZeroRevision()
				continue
			}
			rev, err := decode(raw)
			if err != nil {
				return errors.Wrapf(err, "decoding key %q", k)
			}
			out[k] = rev
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CPut verifies every depends[k] against the bucket's current contents and
// installs changes only if all match, entirely inside one read-write
// transaction (spec.md §4.4 step 4-5).
func (s *Store) CPut(_ context.Context, depends map[string]uint64, changes map[string]*value.Literal) (txdb.CommitStatus, string, error) {
	var status txdb.CommitStatus
	var conflictKey string

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for k, wantVersion := range depends {
			raw := b.Get([]byte(k))
			var curVersion uint64
			if raw != nil {
				curVersion = binary.BigEndian.Uint64(raw[:8])
			}
			if curVersion != wantVersion {
				status = txdb.Conflict
				conflictKey = k
				return nil
			}
		}

		for k, v := range changes {
			raw := b.Get([]byte(k))
			var curVersion uint64
			if raw != nil {
				curVersion = binary.BigEndian.Uint64(raw[:8])
			}
			if err := b.Put([]byte(k), encode(curVersion+1, v)); err != nil {
				return err
			}
		}
		status = txdb.Committed
		return nil
	})
	if err != nil {
		return txdb.Conflict, "", errors.Wrap(err, "bolt update")
	}
	return status, conflictKey, nil
}

// Close releases the underlying bolt file handle.
func (s *Store) Close() error { return s.db.Close() }

// encode lays out a Revision as [8-byte version][1-byte kind][payload].
func encode(version uint64, v *value.Literal) []byte {
	header := make([]byte, 9)
	binary.BigEndian.PutUint64(header[:8], version)
	header[8] = byte(v.Kind())

	switch v.Kind() {
	case value.KindNone:
		return header
	case value.KindFlag:
		b := byte(0)
		if v.RawFlag() {
			b = 1
		}
		return append(header, b)
	case value.KindReal:
		payload := make([]byte, 8)
		binary.BigEndian.PutUint64(payload, doubleBits(v.RawReal()))
		return append(header, payload...)
	case value.KindText:
		return append(header, []byte(v.RawText())...)
	default:
		panic(fmt.Sprintf("boltstore: unknown value kind %v", v.Kind()))
	}
}

func decode(raw []byte) (value.Revision, error) {
	if len(raw) < 9 {
		return value.Revision{}, errors.New("boltstore: corrupt record: too short")
	}
	version := binary.BigEndian.Uint64(raw[:8])
	kind := value.Kind(raw[8])
	payload := raw[9:]

	switch kind {
	case value.KindNone:
		return value.Revision{Version: version, Value: value.None()}, nil
	case value.KindFlag:
		if len(payload) < 1 {
			return value.Revision{}, errors.New("boltstore: corrupt flag record")
		}
		return value.Revision{Version: version, Value: value.Flag(payload[0] == 1)}, nil
	case value.KindReal:
		if len(payload) < 8 {
			return value.Revision{}, errors.New("boltstore: corrupt real record")
		}
		return value.Revision{Version: version, Value: value.Real(doubleFromBits(binary.BigEndian.Uint64(payload[:8])))}, nil
	case value.KindText:
		return value.Revision{Version: version, Value: value.Text(string(payload))}, nil
	default:
		return value.Revision{}, errors.Errorf("boltstore: unknown value kind tag %d", kind)
	}
}
