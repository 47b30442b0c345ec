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

// Package scrapemodel holds the in-memory representation of a single
// Prometheus text-format scrape: the samples it contains, their label sets,
// and the HELP text announced for each metric name.
//
// Parsing the wire format itself is delegated to
// github.com/prometheus/common/expfmt; this package only shapes the parsed
// result into the Sample/Scrape types the rest of the proxy operates on.
package scrapemodel

import "time"

// Kind identifies which variant of Value a Sample carries.
type Kind int

const (
	KindUntyped Kind = iota
	KindCounter
	KindGauge
	KindHistogram
	KindSummary
)

// String renders the lowercase Prometheus TYPE name for the kind.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	case KindSummary:
		return "summary"
	default:
		return "untyped"
	}
}

// Bucket is one histogram bucket: the number of observations less than (or
// equal to, per Prometheus convention) LessThan.
type Bucket struct {
	LessThan float64
	Count    float64
}

// QuantileValue is one summary quantile entry.
type QuantileValue struct {
	Quantile float64
	Count    float64
}

// Value is the typed measurement carried by a Sample. Exactly one of the
// fields is meaningful, selected by Kind.
type Value struct {
	Kind      Kind
	Scalar    float64         // untyped, counter, gauge
	Buckets   []Bucket        // histogram
	Quantiles []QuantileValue // summary
}

// Label is a single name/value pair.
type Label struct {
	Name  string
	Value string
}

// Labels is an unordered list of Label pairs. Two Labels values describe the
// same label set regardless of slice order; use Fingerprint to compare.
type Labels []Label

// Get returns the value for name, and whether it was present.
func (ls Labels) Get(name string) (string, bool) {
	for _, l := range ls {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// Sample is one metric observation: a name, a label set, and a typed value.
type Sample struct {
	Metric    string
	Labels    Labels
	Value     Value
	Timestamp *time.Time
}

// Scrape is an unordered collection of samples plus the HELP text announced
// for each metric name that was documented in the source text.
type Scrape struct {
	Samples []Sample
	Docs    map[string]string
}
