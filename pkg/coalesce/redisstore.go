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

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"github.com/redis/go-redis/v9"
)

func hashKey(s string) uint64 { return xxhash.Sum64String(s) }

// RedisStore is a SharedStore backed by one or more Redis instances, sharded
// by rendezvous (highest random weight) hashing so that a shard joining or
// leaving only reshuffles the keys that belong to that shard, instead of
// rehashing the whole key space the way modulo sharding would.
type RedisStore struct {
	clients map[string]*redis.Client
	rdv     *rendezvous.Rendezvous
	timeout time.Duration
}

// NewRedisStore builds a RedisStore over addrs, one *redis.Client per
// address. timeout bounds every individual Redis round trip; it does not
// bound the caller's own request, matching the coalescer's rule that a
// fetch in flight is never aborted on behalf of the caller that started it.
func NewRedisStore(addrs []string, timeout time.Duration) *RedisStore {
	clients := make(map[string]*redis.Client, len(addrs))
	for _, addr := range addrs {
		clients[addr] = redis.NewClient(&redis.Options{Addr: addr})
	}
	return &RedisStore{
		clients: clients,
		rdv:     rendezvous.New(addrs, hashKey),
		timeout: timeout,
	}
}

func (s *RedisStore) clientFor(key string) *redis.Client {
	return s.clients[s.rdv.Lookup(key)]
}

// Get implements SharedStore.
func (s *RedisStore) Get(key string) (CachedResponse, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	raw, err := s.clientFor(key).Get(ctx, key).Bytes()
	if err != nil {
		return CachedResponse{}, false
	}

	var resp CachedResponse
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&resp); err != nil {
		return CachedResponse{}, false
	}
	return resp, true
}

// Set implements SharedStore. Encoding errors and Redis failures are
// swallowed: the shared store is a best-effort accelerator, never a
// correctness dependency, so a replica that cannot reach Redis simply falls
// back to fetching from the backend itself.
func (s *RedisStore) Set(key string, resp CachedResponse, ttl time.Duration) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(resp); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.clientFor(key).Set(ctx, key, buf.Bytes(), ttl)
}
