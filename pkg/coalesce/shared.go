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

package coalesce

import "time"

// SharedStore is an optional distributed backing store for cached
// responses, consulted before a fetch runs and populated after a fetch
// completes cacheably. It lets multiple proxy replicas behind a load
// balancer share coalesced responses instead of each replica independently
// fetching the same backend.
//
// A Coalescer with no SharedStore configured is a single-process cache:
// the in-memory map is the only store.
type SharedStore interface {
	Get(key string) (CachedResponse, bool)
	Set(key string, resp CachedResponse, ttl time.Duration)
}

// WithSharedStore attaches a distributed backing store to c. Safe to call
// once, before the Coalescer is used by any goroutine.
func (c *Coalescer) WithSharedStore(store SharedStore) *Coalescer {
	c.shared = store
	return c
}
