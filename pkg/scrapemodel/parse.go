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
	"bytes"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	dto "github.com/prometheus/client_model/go"
	"github.com/pkg/errors"
	"github.com/prometheus/common/expfmt"
)

// ErrNotUTF8 is returned by Parse when the backend body is not valid UTF-8.
var ErrNotUTF8 = errors.New("scrape body is not valid UTF-8")

// Parse decodes a Prometheus text-format scrape body into a Scrape.
//
// Tokenizing the exposition format itself is delegated to
// github.com/prometheus/common/expfmt's TextParser; this function only
// re-shapes the resulting metric families into this package's Sample model,
// expanding histogram/summary _sum and _count lines back into the separate
// samples they appeared as on the wire (expfmt folds them into the parent
// MetricFamily, matching the usual text representation).
func Parse(body []byte) (Scrape, error) {
	if !utf8.Valid(body) {
		return Scrape{}, ErrNotUTF8
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return Scrape{}, errors.Wrap(err, "parsing exposition text")
	}

	scrape := Scrape{Docs: make(map[string]string, len(families))}
	for name, mf := range families {
		if mf.GetHelp() != "" {
			scrape.Docs[name] = mf.GetHelp()
		}
		samples, err := convertFamily(name, mf)
		if err != nil {
			return Scrape{}, errors.Wrapf(err, "converting metric family %q", name)
		}
		scrape.Samples = append(scrape.Samples, samples...)
	}
	return scrape, nil
}

func convertFamily(name string, mf *dto.MetricFamily) ([]Sample, error) {
	var samples []Sample
	for _, m := range mf.GetMetric() {
		base := labelsExcluding(m.GetLabel(), "")

		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			samples = append(samples, Sample{
				Metric: name, Labels: base,
				Value:     Value{Kind: KindCounter, Scalar: m.GetCounter().GetValue()},
				Timestamp: timestampOf(m),
			})

		case dto.MetricType_GAUGE:
			samples = append(samples, Sample{
				Metric: name, Labels: base,
				Value:     Value{Kind: KindGauge, Scalar: m.GetGauge().GetValue()},
				Timestamp: timestampOf(m),
			})

		case dto.MetricType_UNTYPED:
			samples = append(samples, Sample{
				Metric: name, Labels: base,
				Value:     Value{Kind: KindUntyped, Scalar: m.GetUntyped().GetValue()},
				Timestamp: timestampOf(m),
			})

		case dto.MetricType_SUMMARY:
			sum := m.GetSummary()
			quantiles := make([]QuantileValue, 0, len(sum.GetQuantile()))
			for _, q := range sum.GetQuantile() {
				quantiles = append(quantiles, QuantileValue{Quantile: q.GetQuantile(), Count: q.GetValue()})
			}
			samples = append(samples, Sample{
				Metric: name, Labels: base,
				Value:     Value{Kind: KindSummary, Quantiles: quantiles},
				Timestamp: timestampOf(m),
			})
			samples = append(samples, Sample{
				Metric: name + "_sum", Labels: base,
				Value:     Value{Kind: KindCounter, Scalar: sum.GetSampleSum()},
				Timestamp: timestampOf(m),
			})
			samples = append(samples, Sample{
				Metric: name + "_count", Labels: base,
				Value:     Value{Kind: KindCounter, Scalar: float64(sum.GetSampleCount())},
				Timestamp: timestampOf(m),
			})

		case dto.MetricType_HISTOGRAM:
			hist := m.GetHistogram()
			buckets := make([]Bucket, 0, len(hist.GetBucket()))
			for _, b := range hist.GetBucket() {
				buckets = append(buckets, Bucket{LessThan: b.GetUpperBound(), Count: float64(b.GetCumulativeCount())})
			}
			samples = append(samples, Sample{
				Metric: name, Labels: base,
				Value:     Value{Kind: KindHistogram, Buckets: buckets},
				Timestamp: timestampOf(m),
			})
			samples = append(samples, Sample{
				Metric: name + "_sum", Labels: base,
				Value:     Value{Kind: KindCounter, Scalar: hist.GetSampleSum()},
				Timestamp: timestampOf(m),
			})
			samples = append(samples, Sample{
				Metric: name + "_count", Labels: base,
				Value:     Value{Kind: KindCounter, Scalar: float64(hist.GetSampleCount())},
				Timestamp: timestampOf(m),
			})

		default:
			return nil, fmt.Errorf("unsupported metric type %s", mf.GetType())
		}
	}
	return samples, nil
}

func labelsExcluding(pairs []*dto.LabelPair, skip string) Labels {
	out := make(Labels, 0, len(pairs))
	for _, p := range pairs {
		if p.GetName() == skip {
			continue
		}
		out = append(out, Label{Name: p.GetName(), Value: p.GetValue()})
	}
	return out
}

func timestampOf(m *dto.Metric) *time.Time {
	if m.TimestampMs == nil {
		return nil
	}
	t := time.UnixMilli(m.GetTimestampMs()).UTC()
	return &t
}

// ReadAll reads r fully; split out so callers can bound it with a limited
// reader without this package depending on net/http.
func ReadAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
