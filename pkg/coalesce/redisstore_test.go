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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisStoreShardSelectionIsStable(t *testing.T) {
	store := NewRedisStore([]string{"10.0.0.1:6379", "10.0.0.2:6379", "10.0.0.3:6379"}, 0)

	first := store.clientFor("some-coalescer-key")
	second := store.clientFor("some-coalescer-key")

	require.Same(t, first, second)
}

func TestRedisStoreDistributesAcrossShards(t *testing.T) {
	store := NewRedisStore([]string{"10.0.0.1:6379", "10.0.0.2:6379", "10.0.0.3:6379"}, 0)

	picked := make(map[string]bool)
	for i := 0; i < 200; i++ {
		key := string(rune('a' + i%26))
		c := store.clientFor(key)
		for addr, cl := range store.clients {
			if cl == c {
				picked[addr] = true
			}
		}
	}
	require.GreaterOrEqual(t, len(picked), 2)
}
