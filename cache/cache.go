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

// Package cache implements an LRU txdb.Cache: a fixed-capacity, eviction-
// on-insert cache of value.Revision by key, the optional layer spec.md §6
// describes sitting in front of Database.Get. Free/Dispose mirror the
// lifecycle contract sql/cache_test.go exercises: Free drops all entries
// without releasing the cache itself, Dispose renders it permanently
// unusable.
package cache

import (
	"container/list"
	"context"
	"sync"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/kvtxn/kvtxn/value"
)

// ErrKeyNotFound is returned by Get for a key absent from the cache (either
// never inserted, evicted, or dropped by Free).
var ErrKeyNotFound = errors.NewKind("key not found in cache: %s")

// ErrDisposed is returned by any call made after Dispose.
var ErrDisposed = errors.NewKind("cache has been disposed")

type entry struct {
	key string
	rev value.Revision
}

// LRU is a fixed-capacity, least-recently-used cache of value.Revision.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	disposed bool
}

// New returns an LRU cache holding at most capacity entries.
func New(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Put inserts or updates key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *LRU) Put(key string, rev value.Revision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed.New()
	}

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).rev = rev
		c.ll.MoveToFront(el)
		return nil
	}

	if c.ll.Len() >= c.capacity {
		c.evictOldest()
	}
	el := c.ll.PushFront(&entry{key: key, rev: rev})
	c.items[key] = el
	return nil
}

// Get returns the cached Revision for key, or ErrKeyNotFound.
func (c *LRU) Get(key string) (value.Revision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return value.Revision{}, ErrDisposed.New()
	}

	el, ok := c.items[key]
	if !ok {
		return value.Revision{}, ErrKeyNotFound.New(key)
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).rev, nil
}

// evictOldest removes the least-recently-used entry. Caller must hold mu.
func (c *LRU) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	delete(c.items, oldest.Value.(*entry).key)
}

// Free drops every entry but leaves the cache usable.
func (c *LRU) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

// Dispose permanently disables the cache; subsequent Get/Put/Fetch/Update
// calls return ErrDisposed.
func (c *LRU) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = nil
	c.disposed = true
}

// Fetch implements txdb.Cache: returns whatever subset of keys is present,
// silently omitting misses rather than erroring (a cache miss is routine,
// not exceptional).
func (c *LRU) Fetch(_ context.Context, keys []string) (map[string]value.Revision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed.New()
	}

	out := make(map[string]value.Revision, len(keys))
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.ll.MoveToFront(el)
			out[k] = el.Value.(*entry).rev
		}
	}
	return out, nil
}

// Update implements txdb.Cache: writes revs through to the cache.
func (c *LRU) Update(_ context.Context, revs map[string]value.Revision) error {
	for k, rev := range revs {
		if err := c.Put(k, rev); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate implements txdb.Cache: drops keys so the next Fetch misses
// and falls through to the backend (spec.md §6: invalidated on conflict;
// txdb.Executor passes a conflicting attempt's read set).
func (c *LRU) Invalidate(_ context.Context, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed.New()
	}
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.ll.Remove(el)
			delete(c.items, k)
		}
	}
	return nil
}
