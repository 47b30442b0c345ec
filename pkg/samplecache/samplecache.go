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

// Package samplecache implements the per-series "keep last value" store
// that backs the ReduceTimeResolution label-filter action: once a series is
// observed under a given staleness window, the same sample is replayed to
// callers until the window elapses.
//
// Entries are refreshed lazily on access rather than through a background
// sweep: a mutex-guarded map from series fingerprint to cached state.
package samplecache

import (
	"sync"
	"time"

	"github.com/prometheus-community/metrics-proxy/pkg/scrapemodel"
)

type entry struct {
	sample  scrapemodel.Sample
	savedAt time.Time
}

// Cache is a per-target store of the last sample emitted for each series.
//
// Get and Put are unguarded: the lock is exposed separately via Lock/Unlock
// so a caller running a whole filter pass over many samples can hold it
// once for the pass instead of once per sample: a short-lived exclusive
// lock held only for the duration of one filter pass. Calling Get or Put
// without holding the lock races.
type Cache struct {
	mtx     sync.Mutex
	entries map[uint64]entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[uint64]entry)}
}

// Lock acquires the cache's exclusive lock. Callers must call Unlock
// exactly once before any other goroutine can use the cache.
func (c *Cache) Lock() { c.mtx.Lock() }

// Unlock releases the lock acquired by Lock.
func (c *Cache) Unlock() { c.mtx.Unlock() }

// Get returns the previously cached sample for the series sample belongs
// to, if one exists and was saved strictly after now-staleness. If the
// subtraction would underflow the monotonic clock's origin, Get reports no
// entry rather than panicking or wrapping. The caller must hold the lock.
func (c *Cache) Get(sample scrapemodel.Sample, now time.Time, staleness time.Duration) (scrapemodel.Sample, bool) {
	cutoff, ok := safeSub(now, staleness)
	if !ok {
		return scrapemodel.Sample{}, false
	}

	e, ok := c.entries[scrapemodel.Fingerprint(sample)]
	if !ok || !e.savedAt.After(cutoff) {
		return scrapemodel.Sample{}, false
	}
	return e.sample, true
}

// Put stores sample under its series fingerprint, overwriting any prior
// entry for that series. The caller must hold the lock.
func (c *Cache) Put(sample scrapemodel.Sample, now time.Time) {
	c.entries[scrapemodel.Fingerprint(sample)] = entry{sample: sample, savedAt: now}
}

func safeSub(t time.Time, d time.Duration) (time.Time, bool) {
	if d < 0 {
		return time.Time{}, false
	}
	cutoff := t.Add(-d)
	if cutoff.After(t) {
		return time.Time{}, false
	}
	return cutoff, true
}
