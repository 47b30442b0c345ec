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

// Package render deterministically re-serializes a scrapemodel.Scrape as
// Prometheus text-format exposition.
package render

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus-community/metrics-proxy/pkg/scrapemodel"
)

// Render writes scrape as valid Prometheus exposition text. Metric groups
// are emitted in ascending lexicographic order by name; within a group,
// samples keep the order they appear in scrape.Samples. The output always
// ends with a single trailing newline.
func Render(scrape scrapemodel.Scrape) []byte {
	order := make([]int, len(scrape.Samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scrape.Samples[order[i]].Metric < scrape.Samples[order[j]].Metric
	})

	var buf bytes.Buffer
	helpEmitted := make(map[string]bool, len(scrape.Docs))

	for _, idx := range order {
		s := scrape.Samples[idx]
		if !helpEmitted[s.Metric] {
			if help, ok := scrape.Docs[s.Metric]; ok {
				fmt.Fprintf(&buf, "# HELP %s %s\n# TYPE %s %s\n", s.Metric, help, s.Metric, s.Value.Kind.String())
			}
			helpEmitted[s.Metric] = true
		}
		renderSample(&buf, s)
	}

	out := buf.Bytes()
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}

func renderSample(buf *bytes.Buffer, s scrapemodel.Sample) {
	switch s.Value.Kind {
	case scrapemodel.KindHistogram:
		for _, b := range s.Value.Buckets {
			extra := "le=\"" + formatBoundary(b.LessThan) + "\""
			writeLine(buf, s.Metric, s.Labels, extra, formatScientific(b.Count))
		}
	case scrapemodel.KindSummary:
		for _, q := range s.Value.Quantiles {
			extra := "quantile=\"" + formatDecimal(q.Quantile) + "\""
			writeLine(buf, s.Metric, s.Labels, extra, formatScientific(q.Count))
		}
	default:
		writeLine(buf, s.Metric, s.Labels, "", formatScientific(s.Value.Scalar))
	}
}

func writeLine(buf *bytes.Buffer, metric string, labels scrapemodel.Labels, extra, value string) {
	buf.WriteString(metric)
	buf.WriteString(renderLabelBlock(labels, extra))
	buf.WriteByte(' ')
	buf.WriteString(value)
	buf.WriteByte('\n')
}

func renderLabelBlock(labels scrapemodel.Labels, extra string) string {
	parts := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		parts = append(parts, l.Name+`="`+escapeLabelValue(l.Value)+`"`)
	}
	sort.Strings(parts)
	if extra != "" {
		parts = append(parts, extra)
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escapeLabelValue(v string) string {
	if !strings.ContainsAny(v, `\"`+"\n") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
	return r.Replace(v)
}

func formatBoundary(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "+Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	default:
		return formatDecimal(x)
	}
}

// formatDecimal reproduces Rust's Display ("{}") formatting for f64: plain
// decimal notation, never scientific, with the shortest digit sequence that
// round-trips.
func formatDecimal(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// formatScientific reproduces Rust's "{:e}" LowerExp formatting: a shortest
// round-tripping mantissa, lowercase 'e', and an unpadded, unsigned-positive
// exponent (e.g. "2.5e1", "1e-2", "0e0").
func formatScientific(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "NaN"
	}

	s := strconv.FormatFloat(v, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")

	sign := ""
	if strings.HasPrefix(exp, "-") {
		sign = "-"
		exp = exp[1:]
	} else if strings.HasPrefix(exp, "+") {
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + "e" + sign + exp
}
