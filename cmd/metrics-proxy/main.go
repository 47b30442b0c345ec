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

// A reverse proxy that re-serves a Prometheus exposition from a backend
// exporter through a configurable pipeline of label filters, coalescing
// concurrent identical requests behind a short-lived response cache.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prometheus-community/metrics-proxy/pkg/coalesce"
	"github.com/prometheus-community/metrics-proxy/pkg/config"
	"github.com/prometheus-community/metrics-proxy/pkg/listener"
	"github.com/prometheus-community/metrics-proxy/pkg/proxier"
	"github.com/prometheus-community/metrics-proxy/pkg/telemetry"
)

// sysexits.h exit codes, referenced by name rather than by number.
const (
	exOK     = 0
	exConfig = 78
	exOSErr  = 71
)

// redisStoreTimeout bounds each individual round trip to a shared_cache
// Redis node; it is independent of any proxy target's own request timeout.
const redisStoreTimeout = 200 * time.Millisecond

func main() {
	os.Exit(run_())
}

func run_() int {
	app := kingpin.New("metrics-proxy", "Reverse proxy that filters and re-renders Prometheus exposition from a backend.")
	configPath := app.Arg("config-file", "Path to the YAML configuration file.").Required().String()

	if _, err := app.Parse(os.Args[1:]); err != nil {
		os.Stderr.WriteString("metrics-proxy: " + err.Error() + "\n")
		return exConfig
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)

	rt, err := config.Load(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "loading configuration failed", "err", err)
		return exConfig
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		telemetry.NewHostCollector(),
	)
	tel := telemetry.New(reg)

	var g run.Group

	addSignalActor(&g, logger)

	for _, group := range listener.GroupByAddr(rt.Proxies, func(p config.RuntimeProxy) http.Handler {
		return proxyHandler(p, tel, logger)
	}) {
		addListenerActor(&g, logger, group)
	}

	if rt.Metrics != nil {
		metricsGroup := &listener.Group{
			Addr:                   rt.Metrics.Listener.Addr,
			TLS:                    rt.Metrics.Listener.TLS,
			HeaderReadTimeout:      rt.Metrics.Listener.HeaderReadTimeout,
			RequestResponseTimeout: rt.Metrics.Listener.RequestResponseTimeout,
			Routes: []listener.Route{
				{Path: rt.Metrics.Listener.HandlerPath, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})},
			},
		}
		addListenerActor(&g, logger, metricsGroup)
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "metrics-proxy exited with error", "err", err)
		return exOSErr
	}
	return exOK
}

func addSignalActor(g *run.Group, logger log.Logger) {
	term := make(chan os.Signal, 1)
	cancel := make(chan struct{})
	signal.Notify(term, os.Interrupt, syscall.SIGTERM)

	g.Add(
		func() error {
			select {
			case <-term:
				level.Info(logger).Log("msg", "received SIGTERM, exiting gracefully...")
			case <-cancel:
			}
			return nil
		},
		func(err error) {
			close(cancel)
		},
	)
}

func addListenerActor(g *run.Group, logger log.Logger, group *listener.Group) {
	srv := listener.NewServer(group, logger)

	g.Add(func() error {
		level.Info(logger).Log("msg", "starting listener", "addr", group.Addr, "tls", group.TLS != nil)
		return srv.ListenAndServe()
	}, func(err error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// proxyHandler wires one RuntimeProxy's backend into an HTTP handler:
// fingerprint the request, consult the coalescer (when cache_duration > 0),
// fetch/filter/render on miss.
func proxyHandler(p config.RuntimeProxy, tel *telemetry.Telemetry, logger log.Logger) http.Handler {
	px := proxier.New(&http.Client{})
	target := proxier.Target{
		BackendURL:     p.Backend.URL,
		RequestTimeout: p.Backend.Timeout,
		Filters:        p.Backend.Filters,
	}

	var coalescer *coalesce.Coalescer
	cachingEnabled := p.Backend.CacheDuration > 0
	if cachingEnabled {
		coalescer = coalesce.New(p.Backend.CacheDuration)
		if len(p.Backend.SharedCache) > 0 {
			coalescer.WithSharedStore(coalesce.NewRedisStore(p.Backend.SharedCache, redisStoreTimeout))
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reqID := uuid.NewString()
		ctx := r.Context()

		var result proxier.Result
		var hit bool

		if cachingEnabled {
			key := fingerprint(r)
			cached, wasHit := coalescer.GetOrInsertWith(key, func() (coalesce.CachedResponse, bool) {
				// Detached from this caller's cancellation: other callers
				// coalesced onto this fetch still need its result.
				res := px.Handle(context.WithoutCancel(ctx), target, r.Header)
				return coalesce.CachedResponse{Status: res.Status, Headers: res.Headers, Body: res.Body}, res.Cacheable()
			})
			result = proxier.Result{Status: cached.Status, Headers: cached.Headers, Body: cached.Body}
			hit = wasHit
			tel.ObserveCacheOutcome(hit, result.Status)
		} else {
			result = px.Handle(ctx, target, r.Header)
		}

		level.Debug(logger).Log("msg", "handled request", "request_id", reqID, "status", result.Status, "cache_hit", hit)

		for name, vals := range result.Headers {
			for _, v := range vals {
				w.Header().Add(name, v)
			}
		}
		w.Header().Set("X-Request-Id", reqID)
		w.WriteHeader(result.Status)
		_, _ = w.Write(result.Body)
	})
}

// fingerprint builds the coalescer key from the URL, Authorization, and
// Proxy-Authorization header values, newline-separated, so two clients
// presenting different credentials never share a cached response.
func fingerprint(r *http.Request) string {
	return r.URL.String() + "\n" + r.Header.Get("Authorization") + "\n" + r.Header.Get("Proxy-Authorization")
}
