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

// Package proxier implements the metrics proxier: it fetches one backend's
// exposition, applies a target's ordered label filters, and re-renders the
// result, mapping every way the fetch or the parse can fail onto the status
// code a client should see.
package proxier

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/prometheus-community/metrics-proxy/pkg/labelfilter"
	"github.com/prometheus-community/metrics-proxy/pkg/render"
	"github.com/prometheus-community/metrics-proxy/pkg/samplecache"
	"github.com/prometheus-community/metrics-proxy/pkg/scrapemodel"
)

// defaultRelayedHeaders is the allowlist of lowercase client header names
// forwarded to the backend when a Target does not configure its own.
var defaultRelayedHeaders = []string{"accept"}

// hopByHopHeaders are stripped from both the backend response (before it is
// returned unfiltered on non-2xx) and the rendered response, per RFC 7230
// §6.1; the proxier is never a tunnel and must not relay per-connection
// state to the client.
var hopByHopHeaders = []string{
	"keep-alive", "transfer-encoding", "te", "connection",
	"trailer", "upgrade", "proxy-authorization", "proxy-authenticate",
}

// maxBackendBodyBytes bounds how much of a backend's response this proxier
// will read, so a misbehaving or compromised backend cannot exhaust memory
// by streaming an unbounded body.
const maxBackendBodyBytes = 64 << 20

// kind identifies which of the five fetch/parse outcomes a ScrapeError
// represents. A closed tagged union rather than sentinel errors, so the
// status-code mapping in resultForError is exhaustive and cannot silently
// fall through.
type kind int

const (
	kindNon200 kind = iota
	kindFetch
	kindTimeout
	kindParse
	kindDecode
)

// ScrapeError reports why a backend scrape did not produce a filterable
// Prometheus exposition. Non200 carries the backend's own status and body so
// the caller can pass it through unmodified.
type ScrapeError struct {
	kind       kind
	non200Code int
	non200Body []byte
	non200Hdr  http.Header
	cause      error
}

func (e *ScrapeError) Error() string {
	switch e.kind {
	case kindNon200:
		return "backend returned non-2xx status " + strconv.Itoa(e.non200Code)
	case kindTimeout:
		return "backend request timed out: " + e.cause.Error()
	case kindFetch:
		return "backend request failed: " + e.cause.Error()
	case kindParse:
		return "parsing backend response failed: " + e.cause.Error()
	case kindDecode:
		return "decoding backend response failed: " + e.cause.Error()
	}
	return "scrape error"
}

func (e *ScrapeError) Unwrap() error { return e.cause }

// Target is the subset of a configured ProxyTarget the proxier needs to
// serve one request.
type Target struct {
	BackendURL     string
	RequestTimeout time.Duration
	RelayedHeaders []string // lowercase; defaults to defaultRelayedHeaders when empty
	Filters        []*labelfilter.Filter
}

// Result is the proxier's output: a (status, headers, body) triple ready
// to be written to the client.
type Result struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Cacheable reports whether r is eligible for coalescer storage: status in
// the 2xx range, matching every rendered-success response and nothing else.
func (r Result) Cacheable() bool { return r.Status >= 200 && r.Status < 300 }

// Doer is the subset of *http.Client the proxier needs; tests substitute a
// fake to control timeouts and failures without a real listener.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Proxier fetches, filters and renders scrapes for a single target.
type Proxier struct {
	client Doer
	cache  *samplecache.Cache
}

// New returns a Proxier that issues backend requests via client and keeps
// per-series state (for ReduceTimeResolution filters) in its own cache,
// private to the target this Proxier serves.
func New(client Doer) *Proxier {
	return &Proxier{client: client, cache: samplecache.New()}
}

// Handle runs the full proxier contract for one client request: project
// headers, fetch, map failures, filter, render.
func (p *Proxier) Handle(ctx context.Context, target Target, clientHeaders http.Header) Result {
	relayed := target.RelayedHeaders
	if len(relayed) == 0 {
		relayed = defaultRelayedHeaders
	}

	reqHeaders := projectHeaders(clientHeaders, relayed)

	body, respHeaders, err := p.fetch(ctx, target, reqHeaders)
	if err != nil {
		return resultForError(err)
	}

	scrape, err := scrapemodel.Parse(body)
	if err != nil {
		k := kindParse
		if errors.Is(err, scrapemodel.ErrNotUTF8) {
			k = kindDecode
		}
		return resultForError(&ScrapeError{kind: k, cause: err})
	}

	filtered := labelfilter.Apply(scrape, target.Filters, p.cache, time.Now())
	rendered := render.Render(filtered)

	hdr := sanitize(respHeaders)
	hdr.Set("Content-Type", "text/plain; version=0.0.4")
	return Result{Status: http.StatusOK, Headers: hdr, Body: rendered}
}

func (p *Proxier) fetch(ctx context.Context, target Target, headers http.Header) ([]byte, http.Header, error) {
	reqCtx := ctx
	if target.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, target.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target.BackendURL, nil)
	if err != nil {
		return nil, nil, &ScrapeError{kind: kindFetch, cause: errors.Wrap(err, "building backend request")}
	}
	req.Header = headers

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, nil, &ScrapeError{kind: kindTimeout, cause: err}
		}
		return nil, nil, &ScrapeError{kind: kindFetch, cause: err}
	}
	defer resp.Body.Close()

	raw, err := scrapemodel.ReadAll(io.LimitReader(resp.Body, maxBackendBodyBytes))
	if err != nil {
		return nil, nil, &ScrapeError{kind: kindFetch, cause: errors.Wrap(err, "reading backend body")}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &ScrapeError{
			kind:       kindNon200,
			non200Code: resp.StatusCode,
			non200Body: raw,
			non200Hdr:  resp.Header,
		}
	}

	return raw, resp.Header, nil
}

func resultForError(err error) Result {
	var se *ScrapeError
	if !errors.As(err, &se) {
		return Result{Status: http.StatusInternalServerError, Headers: textPlainHeaders(), Body: []byte(err.Error())}
	}

	switch se.kind {
	case kindNon200:
		return Result{Status: se.non200Code, Headers: sanitize(se.non200Hdr), Body: se.non200Body}
	case kindTimeout:
		return Result{Status: http.StatusGatewayTimeout, Headers: textPlainHeaders(), Body: []byte(se.Error())}
	case kindFetch:
		return Result{Status: http.StatusBadGateway, Headers: textPlainHeaders(), Body: []byte(se.Error())}
	case kindParse, kindDecode:
		return Result{Status: http.StatusInternalServerError, Headers: textPlainHeaders(), Body: []byte(se.Error())}
	}
	return Result{Status: http.StatusInternalServerError, Headers: textPlainHeaders(), Body: []byte(se.Error())}
}

func textPlainHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain")
	return h
}

func projectHeaders(src http.Header, allow []string) http.Header {
	keep := make(map[string]bool, len(allow))
	for _, name := range allow {
		keep[strings.ToLower(name)] = true
	}

	out := make(http.Header)
	for name, vals := range src {
		if !keep[strings.ToLower(name)] {
			continue
		}
		for _, v := range vals {
			out.Add(name, v)
		}
	}
	return out
}

func sanitize(src http.Header) http.Header {
	drop := make(map[string]bool, len(hopByHopHeaders)+1)
	for _, name := range hopByHopHeaders {
		drop[name] = true
	}
	drop["content-length"] = true

	out := make(http.Header)
	for name, vals := range src {
		if drop[strings.ToLower(name)] {
			continue
		}
		for _, v := range vals {
			out.Add(name, v)
		}
	}
	return out
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
