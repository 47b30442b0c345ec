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

package samplecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prometheus-community/metrics-proxy/pkg/scrapemodel"
)

func sample(v float64) scrapemodel.Sample {
	return scrapemodel.Sample{
		Metric: "node_frobnicated",
		Labels: scrapemodel.Labels{{Name: "cpu", Value: "0"}},
		Value:  scrapemodel.Value{Kind: scrapemodel.KindGauge, Scalar: v},
	}
}

func TestGetMissesOnEmptyCache(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	_, ok := c.Get(sample(0), time.Now(), 10*time.Millisecond)
	require.False(t, ok)
}

func TestPutThenGetWithinStalenessHits(t *testing.T) {
	c := New()
	base := time.Now()

	c.Lock()
	c.Put(sample(0), base)
	got, ok := c.Get(sample(25), base.Add(5*time.Millisecond), 10*time.Millisecond)
	c.Unlock()

	require.True(t, ok)
	require.Equal(t, 0.0, got.Value.Scalar)
}

func TestEntryAtExactStalenessBoundaryIsStale(t *testing.T) {
	// saved_at == now - staleness must be treated as stale (strict >).
	c := New()
	base := time.Now()

	c.Lock()
	c.Put(sample(0), base)
	_, ok := c.Get(sample(25), base.Add(10*time.Millisecond), 10*time.Millisecond)
	c.Unlock()

	require.False(t, ok)
}

func TestEntryPastStalenessWindowMisses(t *testing.T) {
	c := New()
	base := time.Now()

	c.Lock()
	c.Put(sample(0), base)
	_, ok := c.Get(sample(25), base.Add(15*time.Millisecond), 10*time.Millisecond)
	c.Unlock()

	require.False(t, ok)
}

func TestGetRejectsNegativeStaleness(t *testing.T) {
	c := New()
	base := time.Now()

	c.Lock()
	c.Put(sample(0), base)
	_, ok := c.Get(sample(0), base, -time.Millisecond)
	c.Unlock()

	require.False(t, ok)
}
