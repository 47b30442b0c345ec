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

package listener

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prometheus-community/metrics-proxy/pkg/config"
)

func TestGroupByAddrGroupsSharedAddress(t *testing.T) {
	proxies := []config.RuntimeProxy{
		{Listener: config.RuntimeListener{Addr: "127.0.0.1:9000", HandlerPath: "/a"}},
		{Listener: config.RuntimeListener{Addr: "127.0.0.1:9000", HandlerPath: "/b"}},
		{Listener: config.RuntimeListener{Addr: "127.0.0.1:9001", HandlerPath: "/c"}},
	}

	groups := GroupByAddr(proxies, func(p config.RuntimeProxy) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	})

	require.Len(t, groups, 2)

	var nineThousand *Group
	for _, g := range groups {
		if g.Addr == "127.0.0.1:9000" {
			nineThousand = g
		}
	}
	require.NotNil(t, nineThousand)
	require.Len(t, nineThousand.Routes, 2)
}

func TestGroupByAddrPreservesInsertionOrder(t *testing.T) {
	proxies := []config.RuntimeProxy{
		{Listener: config.RuntimeListener{Addr: "127.0.0.1:9002", HandlerPath: "/z"}},
		{Listener: config.RuntimeListener{Addr: "127.0.0.1:9001", HandlerPath: "/a"}},
	}

	groups := GroupByAddr(proxies, func(p config.RuntimeProxy) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	})

	require.Equal(t, "127.0.0.1:9002", groups[0].Addr)
	require.Equal(t, "127.0.0.1:9001", groups[1].Addr)
}

// blockingBody never returns from Read until release is closed.
type blockingBody struct {
	release chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.release
	return 0, io.EOF
}

func (b *blockingBody) Close() error { return nil }

func TestRequestBodyTimeoutAbortsSlowBodyRead(t *testing.T) {
	body := &blockingBody{release: make(chan struct{})}
	defer close(body.release)

	var readErr error
	handler := requestBodyTimeout(10*time.Millisecond, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", body)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Error(t, readErr)
}

func TestRequestBodyTimeoutDisabledWhenZero(t *testing.T) {
	called := false
	handler := requestBodyTimeout(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, called)
}
