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

// Package telemetry registers the proxy's self-observability metrics: the
// coalescer hit/miss counters, plus host process gauges sourced from
// gopsutil, so an operator scraping the optional metrics endpoint sees
// resource usage alongside cache effectiveness.
package telemetry

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Telemetry holds every counter/gauge the proxy emits about itself.
type Telemetry struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// New registers the proxy's metrics on reg and returns a Telemetry to
// record through. reg is expected to be a fresh registry also carrying the
// standard Go/process collectors.
func New(reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metrics_proxy_cache_hits_total",
			Help: "Requests served from the response coalescer's cache, by response status.",
		}, []string{"status"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metrics_proxy_cache_misses_total",
			Help: "Requests that required a fresh backend fetch, by response status.",
		}, []string{"status"}),
	}
	reg.MustRegister(t.cacheHits, t.cacheMisses)
	return t
}

// ObserveCacheOutcome records one coalescer admission. These counters are
// only meaningful (and should only be wired by the caller) when the
// target's cache_duration is greater than zero.
func (t *Telemetry) ObserveCacheOutcome(hit bool, status int) {
	statusLabel := statusClass(status)
	if hit {
		t.cacheHits.WithLabelValues(statusLabel).Inc()
		return
	}
	t.cacheMisses.WithLabelValues(statusLabel).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// HostCollector periodically samples this process's RSS and open file
// descriptor count via gopsutil and exposes them as gauges. Unlike
// prometheus.NewProcessCollector (which reads /proc directly and is always
// registered alongside this one), HostCollector uses gopsutil so the same
// code runs on the non-Linux platforms gopsutil abstracts over.
type HostCollector struct {
	rss *prometheus.Desc
	fds *prometheus.Desc
}

// NewHostCollector returns a HostCollector ready to register.
func NewHostCollector() *HostCollector {
	return &HostCollector{
		rss: prometheus.NewDesc("metrics_proxy_process_resident_memory_bytes", "Resident memory of the metrics-proxy process, sampled via gopsutil.", nil, nil),
		fds: prometheus.NewDesc("metrics_proxy_process_open_fds", "Open file descriptors held by the metrics-proxy process, sampled via gopsutil.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (h *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- h.rss
	ch <- h.fds
}

// Collect implements prometheus.Collector. Sampling failures are skipped
// silently: a self-telemetry gauge that can't be read this scrape simply
// doesn't appear, it never fails the whole scrape.
func (h *HostCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return
	}

	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		ch <- prometheus.MustNewConstMetric(h.rss, prometheus.GaugeValue, float64(mem.RSS))
	}
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(h.fds, prometheus.GaugeValue, float64(fds))
	}
}
