// Package testutil provides test doubles for the mirror site: scripted HTTP
// servers that stand in for individual mirror hosts, and an http.Client that
// routes arbitrary hostnames to them.
package testutil

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// MirrorSite simulates one mirror host. Responses are configured per path:
// either a static body, a custom handler, or a scripted sequence of status
// codes that plays out across successive requests.
type MirrorSite struct {
	Host   string
	Server *httptest.Server

	// Tracking
	RequestCount atomic.Int64

	mu        sync.Mutex
	pages     map[string]string
	payloads  map[string][]byte
	handlers  map[string]http.HandlerFunc
	sequences map[string][]int
	paths     []string // request paths in arrival order
}

// SiteOption configures a MirrorSite.
type SiteOption func(*MirrorSite)

// WithPage serves a static HTML/text body for path.
func WithPage(path, body string) SiteOption {
	return func(m *MirrorSite) {
		m.pages[path] = body
	}
}

// WithPayload serves raw bytes for path, with a file content type.
func WithPayload(path string, data []byte) SiteOption {
	return func(m *MirrorSite) {
		m.payloads[path] = data
	}
}

// WithHandler installs a custom handler for path. It takes precedence over
// pages and payloads but still honors a status sequence.
func WithHandler(path string, h http.HandlerFunc) SiteOption {
	return func(m *MirrorSite) {
		m.handlers[path] = h
	}
}

// WithStatusSequence scripts the status codes returned by successive
// requests to path. A 200 entry serves the configured content; the last
// code repeats once the sequence is used up.
func WithStatusSequence(path string, codes ...int) SiteOption {
	return func(m *MirrorSite) {
		m.sequences[path] = codes
	}
}

// NewMirrorSite starts a TLS test server posing as host. The server is shut
// down automatically when the test ends.
func NewMirrorSite(t *testing.T, host string, opts ...SiteOption) *MirrorSite {
	t.Helper()

	m := &MirrorSite{
		Host:      host,
		pages:     make(map[string]string),
		payloads:  make(map[string][]byte),
		handlers:  make(map[string]http.HandlerFunc),
		sequences: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.Server = httptest.NewTLSServer(http.HandlerFunc(m.handleRequest))
	t.Cleanup(m.Server.Close)
	return m
}

// Paths returns the request paths seen so far, in arrival order.
func (m *MirrorSite) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

func (m *MirrorSite) handleRequest(w http.ResponseWriter, r *http.Request) {
	m.RequestCount.Add(1)
	path := r.URL.Path

	m.mu.Lock()
	m.paths = append(m.paths, path)
	code := http.StatusOK
	if seq, ok := m.sequences[path]; ok && len(seq) > 0 {
		code = seq[0]
		if len(seq) > 1 {
			m.sequences[path] = seq[1:]
		}
	}
	page, hasPage := m.pages[path]
	payload, hasPayload := m.payloads[path]
	handler, hasHandler := m.handlers[path]
	m.mu.Unlock()

	if code != http.StatusOK {
		http.Error(w, http.StatusText(code), code)
		return
	}

	switch {
	case hasHandler:
		handler(w, r)
	case hasPayload:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(payload)
	case hasPage:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	default:
		http.NotFound(w, r)
	}
}

// NewClient returns an http.Client that resolves each site's hostname to its
// test server, so code that builds "https://{host}/..." URLs can run against
// the doubles unmodified.
func NewClient(t *testing.T, sites ...*MirrorSite) *http.Client {
	t.Helper()

	targets := make(map[string]string, len(sites))
	for _, site := range sites {
		addr := site.Server.Listener.Addr().String()
		targets[site.Host+":443"] = addr
		targets[site.Host+":80"] = addr
	}

	dialer := &net.Dialer{}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if target, ok := targets[addr]; ok {
				addr = target
			}
			return dialer.DialContext(ctx, network, addr)
		},
	}
	return &http.Client{Transport: transport}
}
