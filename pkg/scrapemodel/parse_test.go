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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCounter(t *testing.T) {
	body := []byte("# HELP http_requests_total Total requests.\n# TYPE http_requests_total counter\nhttp_requests_total{method=\"get\"} 10\n")

	scrape, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, scrape.Samples, 1)
	require.Equal(t, "http_requests_total", scrape.Samples[0].Metric)
	require.Equal(t, KindCounter, scrape.Samples[0].Value.Kind)
	require.Equal(t, 10.0, scrape.Samples[0].Value.Scalar)
	require.Equal(t, "Total requests.", scrape.Docs["http_requests_total"])
}

func TestParseHistogramExpandsSumAndCount(t *testing.T) {
	body := []byte(`# HELP req_latency Request latency.
# TYPE req_latency histogram
req_latency_bucket{le="0.1"} 2
req_latency_bucket{le="+Inf"} 5
req_latency_sum 1.25
req_latency_count 5
`)

	scrape, err := Parse(body)
	require.NoError(t, err)

	var histogram, sum, count *Sample
	for i := range scrape.Samples {
		s := &scrape.Samples[i]
		switch s.Metric {
		case "req_latency":
			histogram = s
		case "req_latency_sum":
			sum = s
		case "req_latency_count":
			count = s
		}
	}

	require.NotNil(t, histogram)
	require.Equal(t, KindHistogram, histogram.Value.Kind)
	require.Len(t, histogram.Value.Buckets, 2)

	require.NotNil(t, sum)
	require.Equal(t, KindCounter, sum.Value.Kind)
	require.Equal(t, 1.25, sum.Value.Scalar)

	require.NotNil(t, count)
	require.Equal(t, 5.0, count.Value.Scalar)
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xfe, 0xfd})
	require.ErrorIs(t, err, ErrNotUTF8)
}
