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

// Package labelfilter applies an ordered list of per-target label/name
// rules to a scrape, producing a new scrape containing only the samples
// that survive, with values substituted where ReduceTimeResolution rules
// fired.
package labelfilter

import (
	"strings"
	"time"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"

	"github.com/prometheus-community/metrics-proxy/pkg/samplecache"
	"github.com/prometheus-community/metrics-proxy/pkg/scrapemodel"
)

// ActionKind identifies which effect a filter action has.
type ActionKind int

const (
	ActionKeep ActionKind = iota
	ActionDrop
	ActionReduceTimeResolution
)

// Action is one step of a Filter's action list.
type Action struct {
	Kind       ActionKind
	Resolution time.Duration // meaningful only for ActionReduceTimeResolution
}

// Filter is one compiled rule: it matches a sample when its anchored regex
// fully matches the separator-joined values of SourceLabels (with the
// synthetic "__name__" label and empty-string substitution for labels the
// sample lacks), and then runs its Actions in order against the sample.
type Filter struct {
	SourceLabels []string
	Separator    string
	Regex        *regexp.Regexp
	Actions      []Action
}

// NewFilter compiles pattern as an anchored regex (Prometheus relabeling
// semantics: the match must cover the entire joined value, not a substring)
// and returns a Filter ready for evaluation. sourceLabels defaults to
// ["__name__"] and separator to ";" when empty/unset.
func NewFilter(sourceLabels []string, separator, pattern string, actions []Action) (*Filter, error) {
	if len(sourceLabels) == 0 {
		sourceLabels = []string{"__name__"}
	}
	if separator == "" {
		separator = ";"
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, errors.Wrapf(err, "compiling label filter regex %q", pattern)
	}
	return &Filter{
		SourceLabels: sourceLabels,
		Separator:    separator,
		Regex:        re,
		Actions:      actions,
	}, nil
}

func (f *Filter) joinedValue(s scrapemodel.Sample) string {
	if len(f.SourceLabels) == 1 {
		return labelValue(s, f.SourceLabels[0])
	}
	values := make([]string, len(f.SourceLabels))
	for i, name := range f.SourceLabels {
		values[i] = labelValue(s, name)
	}
	return strings.Join(values, f.Separator)
}

func labelValue(s scrapemodel.Sample, name string) string {
	if name == "__name__" {
		return s.Metric
	}
	if v, ok := s.Labels.Get(name); ok {
		return v
	}
	return ""
}

// Apply runs filters over scrape in order, per sample, consulting cache for
// any ReduceTimeResolution effects, and returns the surviving samples with
// their HELP docs. now is sampled once by the caller and shared across the
// whole pass so every sample's staleness decision is made against the same
// instant.
func Apply(scrape scrapemodel.Scrape, filters []*Filter, cache *samplecache.Cache, now time.Time) scrapemodel.Scrape {
	out := scrapemodel.Scrape{Docs: make(map[string]string)}

	cache.Lock()
	defer cache.Unlock()

	for _, sample := range scrape.Samples {
		var (
			keep         *bool
			cachedSample scrapemodel.Sample
			haveCached   bool
			mustCache    bool
		)

		for _, f := range filters {
			if !f.Regex.MatchString(f.joinedValue(sample)) {
				continue
			}
			for _, action := range f.Actions {
				switch action.Kind {
				case ActionKeep:
					t := true
					keep = &t
				case ActionDrop:
					t := false
					keep = &t
				case ActionReduceTimeResolution:
					if cached, ok := cache.Get(sample, now, action.Resolution); ok {
						cachedSample = cached
						haveCached = true
						mustCache = false
					} else {
						haveCached = false
						mustCache = true
					}
				}
			}
		}

		if keep != nil && !*keep {
			continue
		}

		if _, already := out.Docs[sample.Metric]; !already {
			if help, ok := scrape.Docs[sample.Metric]; ok {
				out.Docs[sample.Metric] = help
			}
		}

		if haveCached {
			out.Samples = append(out.Samples, cachedSample)
			continue
		}
		if mustCache {
			cache.Put(sample, now)
		}
		out.Samples = append(out.Samples, sample)
	}

	return out
}
