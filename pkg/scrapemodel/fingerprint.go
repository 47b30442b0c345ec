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

package scrapemodel

import (
	"hash/fnv"
	"sort"
)

// OrderedLabelSet is the canonical, order-independent form of a sample's
// label set: the metric name encoded as the synthetic "__name__" label,
// merged with the sample's own labels and sorted ascending by name.
//
// Two samples belonging to the same series produce an identical
// OrderedLabelSet regardless of the original label iteration order.
type OrderedLabelSet struct {
	pairs []Label
}

// NewOrderedLabelSet builds the canonical label set for s.
func NewOrderedLabelSet(s Sample) OrderedLabelSet {
	pairs := make([]Label, 0, len(s.Labels)+1)
	pairs = append(pairs, Label{Name: "__name__", Value: s.Metric})
	pairs = append(pairs, s.Labels...)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return OrderedLabelSet{pairs: pairs}
}

// Pairs returns the sorted (name, value) pairs, including "__name__".
func (o OrderedLabelSet) Pairs() []Label {
	return o.pairs
}

// Fingerprint is a 64-bit hash of an OrderedLabelSet, used as the sample
// cache's map key. Collisions are accepted: the series space of a single
// trusted backend is small relative to the hash space, and a collision
// would only cause an unrelated series to momentarily inherit a stale
// cached value.
func Fingerprint(s Sample) uint64 {
	return NewOrderedLabelSet(s).Fingerprint()
}

// Fingerprint hashes the canonical label pairs with FNV-1a: a sentinel byte
// before every name and value, plus a trailing sentinel, to avoid
// accidental collisions from naive concatenation (e.g. "ab"+"c" vs "a"+"bc").
func (o OrderedLabelSet) Fingerprint() uint64 {
	h := fnv.New64a()
	sep := []byte{0xff}
	for _, p := range o.pairs {
		h.Write(sep)
		h.Write([]byte(p.Name))
		h.Write(sep)
		h.Write([]byte(p.Value))
	}
	h.Write(sep)
	return h.Sum64()
}
