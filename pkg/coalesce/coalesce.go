// Copyright 2026 The Prometheus Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coalesce implements the "deadline cacher": a single-flight
// response cache keyed by an arbitrary string (the request fingerprint),
// bounded by a configured lifetime after which the entry is dropped.
//
// The map-level lock is held only across a single map mutation, never
// across the fetch that populates an entry — concurrent callers for
// different keys never block each other, and concurrent callers for the
// same key block on that key's own lock instead of the map's.
package coalesce

import (
	"sync"
	"time"
)

// CachedResponse is the payload stored in a coalescer entry.
type CachedResponse struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

type entry struct {
	mtx   sync.RWMutex
	value *CachedResponse
}

// FetchFunc performs the uncached work for a key. The returned bool
// indicates whether the result may be cached; the coalescer never stores a
// result for which cacheable is false.
type FetchFunc func() (resp CachedResponse, cacheable bool)

// Coalescer deduplicates concurrent identical fetches and optionally serves
// the resulting response to callers arriving within cacheDuration of the
// first completion.
type Coalescer struct {
	cacheDuration time.Duration

	mapMtx  sync.Mutex
	entries map[string]*entry

	// afterFunc is replaced in tests to avoid real-time sleeps.
	afterFunc func(d time.Duration, f func()) *time.Timer

	// shared is an optional distributed backing store consulted on a local
	// miss and populated on a cacheable completion. Nil unless WithSharedStore
	// was called.
	shared SharedStore
}

// New returns a Coalescer that retains a completed, cacheable response for
// cacheDuration after it was stored. A cacheDuration of zero still
// deduplicates concurrent in-flight fetches for the same key (the entry is
// just removed immediately once the fetch completes); callers that want
// caching fully disabled should not construct a Coalescer at all.
func New(cacheDuration time.Duration) *Coalescer {
	return &Coalescer{
		cacheDuration: cacheDuration,
		entries:       make(map[string]*entry),
		afterFunc:     func(d time.Duration, f func()) *time.Timer { return time.AfterFunc(d, f) },
	}
}

// GetOrInsertWith returns the cached response for key if one is already
// stored and still live; otherwise it runs fetch and returns its result.
// At most one fetch per key is in flight at a time: concurrent callers for
// the same key wait on that fetch. hit is true whenever the returned value
// was read from the entry rather than produced by this call's own fetch —
// including callers that waited on a concurrent fetch which completed
// cacheably. Callers that run fetch themselves, including those that find a
// non-cacheable tombstone and fetch again, get hit=false.
func (c *Coalescer) GetOrInsertWith(key string, fetch FetchFunc) (resp CachedResponse, hit bool) {
	c.mapMtx.Lock()
	e, existed := c.entries[key]
	if !existed {
		e = &entry{}
		e.mtx.Lock()
		c.entries[key] = e
	}
	c.mapMtx.Unlock()

	if existed {
		e.mtx.RLock()
		if e.value != nil {
			v := *e.value
			e.mtx.RUnlock()
			return v, true
		}
		e.mtx.RUnlock()

		// Tombstone (a prior fetch for this key completed uncacheably) or
		// another fetch is still in flight. Either way we do not insert a
		// new entry; we race to acquire the write lock and, if we win,
		// perform our own fetch sharing this entry.
		e.mtx.Lock()
		if e.value != nil {
			v := *e.value
			e.mtx.Unlock()
			return v, true
		}
	}

	if c.shared != nil {
		if v, ok := c.shared.Get(key); ok {
			e.value = &v
			c.scheduleRemoval(key)
			e.mtx.Unlock()
			return v, true
		}
	}

	resp, cacheable := fetch()
	if cacheable {
		v := resp
		e.value = &v
		if c.shared != nil {
			c.shared.Set(key, v, c.cacheDuration)
		}
	}
	c.scheduleRemoval(key)
	e.mtx.Unlock()

	return resp, false
}

func (c *Coalescer) scheduleRemoval(key string) {
	c.afterFunc(c.cacheDuration, func() {
		c.mapMtx.Lock()
		delete(c.entries, key)
		c.mapMtx.Unlock()
	})
}
