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

package labelfilter

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prometheus-community/metrics-proxy/pkg/samplecache"
	"github.com/prometheus-community/metrics-proxy/pkg/scrapemodel"
)

func cpuSamples() []scrapemodel.Sample {
	out := make([]scrapemodel.Sample, 16)
	for i := range out {
		out[i] = scrapemodel.Sample{
			Metric: "node_softnet_times_squeezed_total",
			Labels: scrapemodel.Labels{{Name: "cpu", Value: strconv.Itoa(i)}},
			Value:  scrapemodel.Value{Kind: scrapemodel.KindCounter, Scalar: float64(i)},
		}
	}
	return out
}

func TestApplyWithNoFiltersPassesThrough(t *testing.T) {
	scrape := scrapemodel.Scrape{Samples: cpuSamples(), Docs: map[string]string{"node_softnet_times_squeezed_total": "doc"}}

	out := Apply(scrape, nil, samplecache.New(), time.Now())
	require.Len(t, out.Samples, len(scrape.Samples))
	require.Equal(t, "doc", out.Docs["node_softnet_times_squeezed_total"])
}

func TestDropOnlyFiltersYieldEmptyOutput(t *testing.T) {
	scrape := scrapemodel.Scrape{Samples: cpuSamples(), Docs: map[string]string{"node_softnet_times_squeezed_total": "doc"}}
	drop, err := NewFilter(nil, "", "node_softnet_times_squeezed_total", []Action{{Kind: ActionDrop}})
	require.NoError(t, err)

	out := Apply(scrape, []*Filter{drop}, samplecache.New(), time.Now())
	require.Empty(t, out.Samples)
	require.Empty(t, out.Docs)
}

func TestDropThenSelectiveKeep(t *testing.T) {
	scrape := scrapemodel.Scrape{Samples: cpuSamples(), Docs: map[string]string{"node_softnet_times_squeezed_total": "doc"}}

	dropAll, err := NewFilter(nil, "", "node_softnet_times_squeezed_total", []Action{{Kind: ActionDrop}})
	require.NoError(t, err)
	keepCPU1, err := NewFilter([]string{"cpu"}, "", "1", []Action{{Kind: ActionKeep}})
	require.NoError(t, err)

	out := Apply(scrape, []*Filter{dropAll, keepCPU1}, samplecache.New(), time.Now())

	require.Len(t, out.Samples, 1)
	require.Equal(t, "1", mustLabel(out.Samples[0], "cpu"))
}

func mustLabel(s scrapemodel.Sample, name string) string {
	v, _ := s.Labels.Get(name)
	return v
}

func TestReduceTimeResolutionScenario(t *testing.T) {
	cache := samplecache.New()
	filter, err := NewFilter(nil, "", "node_frobnicated", []Action{{Kind: ActionReduceTimeResolution, Resolution: 10 * time.Millisecond}})
	require.NoError(t, err)

	base := time.Now()
	reqAt := func(v float64, at time.Time) scrapemodel.Scrape {
		return scrapemodel.Scrape{Samples: []scrapemodel.Sample{
			{Metric: "node_frobnicated", Labels: scrapemodel.Labels{{Name: "cpu", Value: "0"}}, Value: scrapemodel.Value{Kind: scrapemodel.KindGauge, Scalar: v}},
		}}
	}

	outA := Apply(reqAt(0, base), []*Filter{filter}, cache, base)
	require.Equal(t, 0.0, outA.Samples[0].Value.Scalar)

	outB := Apply(reqAt(25, base.Add(5*time.Millisecond)), []*Filter{filter}, cache, base.Add(5*time.Millisecond))
	require.Equal(t, 0.0, outB.Samples[0].Value.Scalar)

	outC := Apply(reqAt(25, base.Add(15*time.Millisecond)), []*Filter{filter}, cache, base.Add(15*time.Millisecond))
	require.Equal(t, 25.0, outC.Samples[0].Value.Scalar)
}

func TestReduceTimeResolutionNeverDropsSamples(t *testing.T) {
	cache := samplecache.New()
	filter, err := NewFilter(nil, "", ".*", []Action{{Kind: ActionReduceTimeResolution, Resolution: time.Second}})
	require.NoError(t, err)

	scrape := scrapemodel.Scrape{Samples: cpuSamples()}
	out := Apply(scrape, []*Filter{filter}, cache, time.Now())
	require.Len(t, out.Samples, len(scrape.Samples))
}

func TestRegexIsFullyAnchored(t *testing.T) {
	f, err := NewFilter(nil, "", "abc", []Action{{Kind: ActionKeep}})
	require.NoError(t, err)
	require.True(t, f.Regex.MatchString("abc"))
	require.False(t, f.Regex.MatchString("xabcx"))
}
