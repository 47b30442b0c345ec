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

package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prometheus-community/metrics-proxy/pkg/scrapemodel"
)

func TestRenderScalarSample(t *testing.T) {
	scrape := scrapemodel.Scrape{
		Docs: map[string]string{"up": "Target reachability."},
		Samples: []scrapemodel.Sample{
			{Metric: "up", Labels: scrapemodel.Labels{{Name: "job", Value: "a"}}, Value: scrapemodel.Value{Kind: scrapemodel.KindGauge, Scalar: 1}},
		},
	}

	out := Render(scrape)
	require.Equal(t, "# HELP up Target reachability.\n# TYPE up gauge\nup{job=\"a\"} 1e0\n", string(out))
}

func TestRenderEmptyLabelSetHasNoBraces(t *testing.T) {
	scrape := scrapemodel.Scrape{
		Samples: []scrapemodel.Sample{
			{Metric: "uptime", Value: scrapemodel.Value{Kind: scrapemodel.KindCounter, Scalar: 5}},
		},
	}

	out := Render(scrape)
	require.Contains(t, string(out), "uptime 5e0\n")
	require.NotContains(t, string(out), "uptime{")
}

func TestRenderHistogramInfBoundary(t *testing.T) {
	scrape := scrapemodel.Scrape{
		Samples: []scrapemodel.Sample{
			{
				Metric: "latency",
				Value: scrapemodel.Value{
					Kind: scrapemodel.KindHistogram,
					Buckets: []scrapemodel.Bucket{
						{LessThan: 0.5, Count: 2},
						{LessThan: math.Inf(1), Count: 5},
					},
				},
			},
		},
	}

	out := Render(scrape)
	require.Contains(t, string(out), `latency{le="+Inf"} 5e0`)
	require.Contains(t, string(out), `latency{le="0.5"} 2e0`)
}

func TestRenderSummaryQuantileLabelUsesPlainDecimal(t *testing.T) {
	scrape := scrapemodel.Scrape{
		Samples: []scrapemodel.Sample{
			{
				Metric: "req_duration",
				Value: scrapemodel.Value{
					Kind:      scrapemodel.KindSummary,
					Quantiles: []scrapemodel.QuantileValue{{Quantile: 0.99, Count: 123}},
				},
			},
		},
	}

	out := Render(scrape)
	require.Contains(t, string(out), `quantile="0.99"`)
	require.Contains(t, string(out), " 1.23e2\n")
}

func TestRenderSortsMetricsAndLabels(t *testing.T) {
	scrape := scrapemodel.Scrape{
		Samples: []scrapemodel.Sample{
			{Metric: "zeta", Value: scrapemodel.Value{Kind: scrapemodel.KindGauge, Scalar: 1}},
			{Metric: "alpha", Labels: scrapemodel.Labels{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}}, Value: scrapemodel.Value{Kind: scrapemodel.KindGauge, Scalar: 1}},
		},
	}

	out := Render(scrape)
	text := string(out)
	require.Contains(t, text, `alpha{a="1",b="2"}`)
	require.Less(t, indexOf(text, "alpha"), indexOf(text, "zeta"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestFormatScientificZeroAndNegative(t *testing.T) {
	require.Equal(t, "0e0", formatScientific(0))
	require.Equal(t, "-2.5e1", formatScientific(-25))
	require.Equal(t, "1e-2", formatScientific(0.01))
}
