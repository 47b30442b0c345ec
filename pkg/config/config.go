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

// Package config loads and validates the metrics-proxy YAML configuration.
//
// The on-disk schema (File and its nested types) is intentionally distinct
// from the runtime model (Runtime and its nested types): the former holds
// URL strings and file paths exactly as the operator wrote them, the latter
// holds parsed socket addresses and loaded TLS material. Load is the only
// place that performs file I/O or touches the network during startup.
package config

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/prometheus-community/metrics-proxy/pkg/labelfilter"
)

// File is the root of the on-disk YAML schema. yaml.v3 is decoded with
// KnownFields(true) (see Load) so an unrecognized key is a load-time error
// rather than a silently ignored typo.
type File struct {
	Metrics *MetricsEndpoint `yaml:"metrics"`
	Proxies []ProxyEntry     `yaml:"proxies"`
}

// MetricsEndpoint configures the optional self-telemetry HTTP endpoint.
type MetricsEndpoint struct {
	URL                    string `yaml:"url"`
	HeaderReadTimeout      string `yaml:"header_read_timeout"`
	RequestResponseTimeout string `yaml:"request_response_timeout"`
	CertificateFile        string `yaml:"certificate_file"`
	KeyFile                string `yaml:"key_file"`
}

// ProxyEntry is one `proxies[]` element: a listener side and a backend side
// joined by an ordered list of label filters.
type ProxyEntry struct {
	ListenOn     ListenOn          `yaml:"listen_on"`
	ConnectTo    ConnectTo         `yaml:"connect_to"`
	LabelFilters []LabelFilterSpec `yaml:"label_filters"`
}

// ListenOn is the inbound side of a ProxyEntry.
type ListenOn struct {
	URL                    string `yaml:"url"`
	CertificateFile        string `yaml:"certificate_file"`
	KeyFile                string `yaml:"key_file"`
	HeaderReadTimeout      string `yaml:"header_read_timeout"`
	RequestResponseTimeout string `yaml:"request_response_timeout"`
}

// ConnectTo is the outbound (backend) side of a ProxyEntry.
type ConnectTo struct {
	URL           string   `yaml:"url"`
	Timeout       string   `yaml:"timeout"`
	CacheDuration string   `yaml:"cache_duration"`
	SharedCache   []string `yaml:"shared_cache"`
}

// LabelFilterSpec mirrors labelfilter.Filter at the YAML layer.
type LabelFilterSpec struct {
	SourceLabels []string     `yaml:"source_labels"`
	Separator    string       `yaml:"separator"`
	Regex        string       `yaml:"regex"`
	Actions      []ActionSpec `yaml:"actions"`
}

// ActionSpec is one element of a LabelFilterSpec's actions list. Exactly one
// of Keep, Drop, or ReduceTimeResolution is set per YAML's `keep | drop |
// {reduce_time_resolution: {...}}` shape; yaml.v3 decodes the scalar forms
// via UnmarshalYAML below.
type ActionSpec struct {
	Keep                 bool
	Drop                 bool
	ReduceTimeResolution *ReduceTimeResolutionSpec
}

// ReduceTimeResolutionSpec is the payload of a reduce_time_resolution action.
type ReduceTimeResolutionSpec struct {
	Resolution string `yaml:"resolution"`
}

// UnmarshalYAML implements the `keep | drop | {reduce_time_resolution: {...}}`
// union: a bare scalar node selects Keep/Drop, a mapping node selects
// ReduceTimeResolution.
func (a *ActionSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		switch node.Value {
		case "keep":
			a.Keep = true
			return nil
		case "drop":
			a.Drop = true
			return nil
		default:
			return errors.Errorf("unrecognized label filter action %q", node.Value)
		}
	}

	var wrapper struct {
		ReduceTimeResolution *ReduceTimeResolutionSpec `yaml:"reduce_time_resolution"`
	}
	if err := node.Decode(&wrapper); err != nil {
		return errors.Wrap(err, "decoding label filter action")
	}
	if wrapper.ReduceTimeResolution == nil {
		return errors.New("label filter action must be keep, drop, or reduce_time_resolution")
	}
	a.ReduceTimeResolution = wrapper.ReduceTimeResolution
	return nil
}

// Load reads path, strictly decodes it as YAML (unknown fields rejected),
// validates it, and transforms it into the runtime model. Any failure here
// is a startup-fatal configuration error (the caller should exit EX_CONFIG).
func Load(path string) (*Runtime, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration file")
	}

	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "parsing configuration YAML")
	}

	return transform(&f)
}

// Runtime is the validated, load-time-resolved configuration the rest of
// the program consumes.
type Runtime struct {
	Metrics *RuntimeMetrics
	Proxies []RuntimeProxy
}

// RuntimeMetrics is the resolved self-telemetry endpoint, if configured.
type RuntimeMetrics struct {
	Listener RuntimeListener
}

// RuntimeProxy pairs a resolved listener side with a resolved backend side.
type RuntimeProxy struct {
	Listener RuntimeListener
	Backend  RuntimeBackend
}

// RuntimeListener is the resolved inbound side: host+port, handler path,
// and loaded TLS material (nil for plain HTTP).
type RuntimeListener struct {
	Addr                   string
	HandlerPath            string
	TLS                    *tls.Certificate
	HeaderReadTimeout      time.Duration
	RequestResponseTimeout time.Duration
}

// RuntimeBackend is the resolved outbound side: the full backend URL, the
// per-request timeout, the coalescer lifetime, the compiled filters, and
// the addresses of any Redis nodes the coalescer should mirror responses
// to (empty unless connect_to.shared_cache was set).
type RuntimeBackend struct {
	URL           string
	Timeout       time.Duration
	CacheDuration time.Duration
	Filters       []*labelfilter.Filter
	SharedCache   []string
}

const minListenPort = 1024

func transform(f *File) (*Runtime, error) {
	rt := &Runtime{}

	if f.Metrics != nil {
		listener, err := transformListener(listenOnFromMetrics(*f.Metrics))
		if err != nil {
			return nil, errors.Wrap(err, "metrics endpoint")
		}
		rt.Metrics = &RuntimeMetrics{Listener: *listener}
	}

	type groupKey struct{ addr string }
	groups := make(map[groupKey][]ListenOn)

	seen := make(map[string]bool)
	for i, p := range f.Proxies {
		listener, err := transformListener(p.ListenOn)
		if err != nil {
			return nil, errors.Wrapf(err, "proxies[%d].listen_on", i)
		}

		key := listener.Addr + "|" + listener.HandlerPath
		if seen[key] {
			return nil, errors.Errorf("proxies[%d]: duplicate (host, port, handler_path) %s", i, key)
		}
		seen[key] = true

		groups[groupKey{listener.Addr}] = append(groups[groupKey{listener.Addr}], p.ListenOn)

		backend, err := transformBackend(p.ConnectTo, p.LabelFilters)
		if err != nil {
			return nil, errors.Wrapf(err, "proxies[%d].connect_to", i)
		}

		rt.Proxies = append(rt.Proxies, RuntimeProxy{Listener: *listener, Backend: *backend})
	}

	for key, entries := range groups {
		if err := validateGroupHomogeneity(entries); err != nil {
			return nil, errors.Wrapf(err, "listen address %s", key.addr)
		}
	}

	return rt, nil
}

func listenOnFromMetrics(m MetricsEndpoint) ListenOn {
	return ListenOn{
		URL:                    m.URL,
		CertificateFile:        m.CertificateFile,
		KeyFile:                m.KeyFile,
		HeaderReadTimeout:      m.HeaderReadTimeout,
		RequestResponseTimeout: m.RequestResponseTimeout,
	}
}

func transformListener(l ListenOn) (*RuntimeListener, error) {
	u, err := url.Parse(l.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing listen_on.url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("listen_on.url scheme must be http or https, got %q", u.Scheme)
	}

	port, err := portOf(u)
	if err != nil {
		return nil, err
	}
	if port < minListenPort {
		return nil, errors.Errorf("listen port %d is below the minimum of %d", port, minListenPort)
	}

	isHTTPS := u.Scheme == "https"
	if isHTTPS && (l.CertificateFile == "" || l.KeyFile == "") {
		return nil, errors.New("https listener requires both certificate_file and key_file")
	}
	if !isHTTPS && (l.CertificateFile != "" || l.KeyFile != "") {
		return nil, errors.New("certificate_file/key_file are forbidden for http listeners")
	}

	var cert *tls.Certificate
	if isHTTPS {
		if err := ValidatePEMKeyType(l.KeyFile); err != nil {
			return nil, err
		}
		loaded, err := tls.LoadX509KeyPair(l.CertificateFile, l.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading TLS certificate/key")
		}
		cert = &loaded
	}

	headerReadTimeout, err := parseDurationOrZero(l.HeaderReadTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "header_read_timeout")
	}
	requestResponseTimeout, err := parseDurationOrZero(l.RequestResponseTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "request_response_timeout")
	}

	return &RuntimeListener{
		Addr:                   u.Host,
		HandlerPath:            u.Path,
		TLS:                    cert,
		HeaderReadTimeout:      headerReadTimeout,
		RequestResponseTimeout: requestResponseTimeout,
	}, nil
}

func transformBackend(c ConnectTo, filterSpecs []LabelFilterSpec) (*RuntimeBackend, error) {
	if _, err := url.Parse(c.URL); err != nil {
		return nil, errors.Wrap(err, "parsing connect_to.url")
	}

	timeout, err := parseDurationOrZero(c.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "timeout")
	}
	cacheDuration, err := parseDurationOrZero(c.CacheDuration)
	if err != nil {
		return nil, errors.Wrap(err, "cache_duration")
	}
	if len(c.SharedCache) > 0 && cacheDuration <= 0 {
		return nil, errors.New("shared_cache requires a non-zero cache_duration")
	}

	filters := make([]*labelfilter.Filter, 0, len(filterSpecs))
	for i, spec := range filterSpecs {
		f, err := transformFilter(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "label_filters[%d]", i)
		}
		filters = append(filters, f)
	}

	return &RuntimeBackend{
		URL:           c.URL,
		Timeout:       timeout,
		CacheDuration: cacheDuration,
		Filters:       filters,
		SharedCache:   c.SharedCache,
	}, nil
}

func transformFilter(spec LabelFilterSpec) (*labelfilter.Filter, error) {
	actions := make([]labelfilter.Action, 0, len(spec.Actions))
	for i, a := range spec.Actions {
		switch {
		case a.Keep:
			actions = append(actions, labelfilter.Action{Kind: labelfilter.ActionKeep})
		case a.Drop:
			actions = append(actions, labelfilter.Action{Kind: labelfilter.ActionDrop})
		case a.ReduceTimeResolution != nil:
			d, err := time.ParseDuration(a.ReduceTimeResolution.Resolution)
			if err != nil {
				return nil, errors.Wrapf(err, "actions[%d].reduce_time_resolution.resolution", i)
			}
			actions = append(actions, labelfilter.Action{Kind: labelfilter.ActionReduceTimeResolution, Resolution: d})
		default:
			return nil, errors.Errorf("actions[%d] has no recognized effect", i)
		}
	}

	return labelfilter.NewFilter(spec.SourceLabels, spec.Separator, spec.Regex, actions)
}

func validateGroupHomogeneity(entries []ListenOn) error {
	if len(entries) < 2 {
		return nil
	}
	first := entries[0]
	firstScheme, _, _ := schemeOf(first.URL)
	for _, e := range entries[1:] {
		scheme, _, err := schemeOf(e.URL)
		if err != nil {
			return err
		}
		if scheme != firstScheme {
			return errors.Errorf("conflicting schemes on shared listen address: %q vs %q", firstScheme, scheme)
		}
		if scheme == "https" {
			if e.CertificateFile != first.CertificateFile || e.KeyFile != first.KeyFile {
				if !sameFileContents(e.CertificateFile, first.CertificateFile) || !sameFileContents(e.KeyFile, first.KeyFile) {
					return errors.New("conflicting TLS certificate/key on shared listen address")
				}
			}
		}
	}
	return nil
}

func sameFileContents(a, b string) bool {
	if a == b {
		return true
	}
	ab, errA := os.ReadFile(a)
	bb, errB := os.ReadFile(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

func schemeOf(rawURL string) (scheme string, host string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	return u.Scheme, u.Host, nil
}

func portOf(u *url.URL) (int, error) {
	portStr := u.Port()
	if portStr == "" {
		return 0, errors.New("listen_on.url must specify an explicit port")
	}
	return strconv.Atoi(portStr)
}

func parseDurationOrZero(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// ValidatePEMKeyType opens path and reports an error unless it contains
// exactly one of a PKCS#8, RSA, or EC private key block.
func ValidatePEMKeyType(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading key file")
	}
	content := string(raw)

	total := 0
	for _, want := range []string{"PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY"} {
		total += strings.Count(content, "-----BEGIN "+want+"-----")
	}
	if total != 1 {
		return fmt.Errorf("key file %s must contain exactly one of a PKCS#8, RSA, or EC private key block, found %d", path, total)
	}
	return nil
}
