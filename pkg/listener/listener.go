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

// Package listener binds one HTTP(S) server per distinct listen address
// from a validated configuration, multiplexing every proxy entry that
// shares that address onto its own handler path.
package listener

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/prometheus-community/metrics-proxy/pkg/config"
)

// Route is one (handler path, handler) pair registered on a group's server.
type Route struct {
	Path    string
	Handler http.Handler
}

// Group is every route sharing one listen address, plus the TLS material
// (validated identical across the group at config load time) and the
// server-wide timeouts, which GroupByAddr takes from the group's first
// proxy entry.
type Group struct {
	Addr                   string
	TLS                    *tls.Certificate
	HeaderReadTimeout      time.Duration
	RequestResponseTimeout time.Duration
	Routes                 []Route
}

// GroupByAddr folds a Runtime's proxies into one Group per distinct listen
// address; the optional metrics endpoint is not included. handlerFor builds
// the http.Handler for each
// RuntimeProxy; it is injected so this package stays ignorant of the
// proxier.
func GroupByAddr(proxies []config.RuntimeProxy, handlerFor func(config.RuntimeProxy) http.Handler) []*Group {
	order := make([]string, 0)
	byAddr := make(map[string]*Group)

	for _, p := range proxies {
		g, ok := byAddr[p.Listener.Addr]
		if !ok {
			g = &Group{
				Addr:                   p.Listener.Addr,
				TLS:                    p.Listener.TLS,
				HeaderReadTimeout:      p.Listener.HeaderReadTimeout,
				RequestResponseTimeout: p.Listener.RequestResponseTimeout,
			}
			byAddr[p.Listener.Addr] = g
			order = append(order, p.Listener.Addr)
		}
		handler := requestBodyTimeout(p.Listener.HeaderReadTimeout, handlerFor(p))
		g.Routes = append(g.Routes, Route{Path: p.Listener.HandlerPath, Handler: handler})
	}

	groups := make([]*Group, 0, len(order))
	for _, addr := range order {
		groups = append(groups, byAddr[addr])
	}
	return groups
}

// Server wraps the *http.Server bound for one Group, applying the
// request-response timeout middleware and per-server read-header timeout.
type Server struct {
	group  *Group
	server *http.Server
}

// NewServer builds (but does not start) the server for group.
func NewServer(group *Group, logger log.Logger) *Server {
	mux := http.NewServeMux()
	for _, r := range group.Routes {
		mux.Handle(r.Path, r.Handler)
	}

	var handler http.Handler = mux
	if group.RequestResponseTimeout > 0 {
		handler = requestResponseTimeout(group.RequestResponseTimeout, handler)
	}
	handler = logRequests(logger, handler)

	srv := &http.Server{
		Addr:              group.Addr,
		Handler:           handler,
		ReadHeaderTimeout: group.HeaderReadTimeout,
	}
	if group.TLS != nil {
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*group.TLS}}
	}

	return &Server{group: group, server: srv}
}

// ListenAndServe blocks serving group's routes until the server is shut
// down or fails to bind.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "binding listener on %s", s.server.Addr)
	}
	if s.group.TLS != nil {
		ln = tls.NewListener(ln, s.server.TLSConfig)
	}

	err = s.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestResponseTimeout bounds total request handling at timeout,
// synthesizing a 504 rather than net/http's built-in TimeoutHandler (which
// always writes 503), since a backend timeout here must read as a gateway
// timeout to the client, not a generic "service unavailable".
func requestResponseTimeout(timeout time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		done := make(chan struct{})
		rec := &bufferedResponse{header: make(http.Header)}
		go func() {
			defer close(done)
			next.ServeHTTP(rec, r.WithContext(ctx))
		}()

		select {
		case <-done:
			rec.flush(w)
		case <-ctx.Done():
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusGatewayTimeout)
			_, _ = w.Write([]byte("request timed out"))
		}
	})
}

// requestBodyTimeout bounds how long reading the inbound request body may
// take, distinct from requestResponseTimeout's bound on the whole
// request/response cycle: a route wraps its own handler with this so a
// slow client trickling in a body can't hold a connection open past the
// listener's configured header-read timeout, even though the header_read_timeout
// itself is usually consumed by the server's own ReadHeaderTimeout. A
// timeout of zero disables the wrapping entirely.
func requestBodyTimeout(timeout time.Duration, next http.Handler) http.Handler {
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		r.Body = &timeoutReadCloser{ctx: ctx, body: r.Body}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// timeoutReadCloser aborts a Read still in flight when ctx expires, since
// http.Request.Body offers no deadline hook of its own.
type timeoutReadCloser struct {
	ctx  context.Context
	body io.ReadCloser
}

func (t *timeoutReadCloser) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.body.Read(p)
		ch <- result{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-t.ctx.Done():
		return 0, t.ctx.Err()
	}
}

func (t *timeoutReadCloser) Close() error { return t.body.Close() }

// bufferedResponse lets the handler goroutine keep writing after the
// request-response timeout fires without racing the real ResponseWriter,
// whose use after the handler returns (or after another goroutine already
// wrote the 504) is undefined by net/http.
type bufferedResponse struct {
	header      http.Header
	status      int
	body        []byte
	wroteHeader bool
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = status
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, vals := range b.header {
		dst[k] = vals
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body)
}

func logRequests(logger log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				level.Error(logger).Log("msg", "panic in request handler", "path", r.URL.Path, "err", rec)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
