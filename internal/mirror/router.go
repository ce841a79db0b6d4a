// Package mirror implements the request layer shared by every network
// operation: an ordered set of interchangeable mirror hosts, per-host retry
// with exponential backoff, immediate failover on mirror-level failures, and
// promotion of whichever mirror last succeeded.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Endpoint is one mirror host. Rank is its position in the configured order;
// lower ranks are preferred.
type Endpoint struct {
	Host string
	Rank int
}

// Request describes one logical request, independent of which mirror ends up
// serving it. Path must begin with "/".
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values // form body for POST requests
	Header http.Header
}

// Options configures a Router.
type Options struct {
	Endpoints  []string // hostnames in rank order; must be non-empty
	Preferred  string   // optional; moved to the front when present
	MaxRetries int      // per-endpoint attempt budget, default 3
	RateLimit  time.Duration
	Failover   bool
	Client     *http.Client // default: 30s-timeout client
	Logger     *slog.Logger
}

// Router executes requests against the mirror set. All mutable state (the
// active endpoint, the rate-limit clock, cookies) is owned by the Router and
// guarded for concurrent use.
type Router struct {
	client     *http.Client
	log        *slog.Logger
	maxRetries int
	rateDelay  time.Duration
	failover   bool

	mu        sync.Mutex
	endpoints []Endpoint // rank order
	active    int        // index into endpoints

	rateMu   sync.Mutex
	lastSend time.Time

	cookieMu sync.RWMutex
	cookies  map[string]string

	// sleep is a hook so tests can run the backoff schedule without
	// waiting for it.
	sleep func(ctx context.Context, d time.Duration) error
}

const backoffBase = 500 * time.Millisecond

// NewRouter builds a Router over the given mirror hosts.
func NewRouter(opts Options) (*Router, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("mirror: no endpoints configured")
	}

	hosts := make([]string, 0, len(opts.Endpoints))
	if opts.Preferred != "" {
		hosts = append(hosts, opts.Preferred)
	}
	for _, h := range opts.Endpoints {
		if h != opts.Preferred {
			hosts = append(hosts, h)
		}
	}

	endpoints := make([]Endpoint, len(hosts))
	for i, h := range hosts {
		endpoints[i] = Endpoint{Host: h, Rank: i}
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Router{
		client:     client,
		log:        log,
		maxRetries: maxRetries,
		rateDelay:  opts.RateLimit,
		failover:   opts.Failover,
		endpoints:  endpoints,
		cookies:    make(map[string]string),
		sleep:      sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Active returns the endpoint currently preferred by the router.
func (r *Router) Active() Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoints[r.active]
}

// Endpoints returns all endpoints in rank order.
func (r *Router) Endpoints() []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// SetCookies replaces the session cookies sent with every request.
func (r *Router) SetCookies(cookies map[string]string) {
	r.cookieMu.Lock()
	defer r.cookieMu.Unlock()
	r.cookies = make(map[string]string, len(cookies))
	for k, v := range cookies {
		r.cookies[k] = v
	}
}

// Cookies returns a copy of the current session cookies.
func (r *Router) Cookies() map[string]string {
	r.cookieMu.RLock()
	defer r.cookieMu.RUnlock()
	out := make(map[string]string, len(r.cookies))
	for k, v := range r.cookies {
		out[k] = v
	}
	return out
}

// tryOrder returns the endpoints to attempt for one call: the active
// endpoint first, then the rest in rank order. With failover disabled only
// the active endpoint is returned.
func (r *Router) tryOrder() []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := []Endpoint{r.endpoints[r.active]}
	if !r.failover {
		return order
	}
	for i, ep := range r.endpoints {
		if i != r.active {
			order = append(order, ep)
		}
	}
	return order
}

// promote makes ep the active endpoint. Concurrent successes race here;
// last writer wins, which is acceptable because either winner is a mirror
// that just served a request.
func (r *Router) promote(ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cand := range r.endpoints {
		if cand.Host == ep.Host {
			if i != r.active {
				r.log.Info("mirror promoted", "host", ep.Host)
				r.active = i
			}
			return
		}
	}
}

// waitRate enforces the mandatory delay between outbound attempts. The lock
// is held while sleeping so concurrent callers are serialized rather than
// all firing at once after the same deadline.
func (r *Router) waitRate(ctx context.Context) error {
	if r.rateDelay <= 0 {
		return ctx.Err()
	}
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	if !r.lastSend.IsZero() {
		if wait := r.rateDelay - time.Since(r.lastSend); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	r.lastSend = time.Now()
	return nil
}

// Execute runs one logical request against the mirror set. The response is
// from whichever endpoint succeeded; that endpoint is promoted to active.
// When every endpoint fails the returned error is a *ExhaustedError listing
// the hosts attempted.
func (r *Router) Execute(ctx context.Context, req Request) (*http.Response, error) {
	var tried []string

	for _, ep := range r.tryOrder() {
		resp, err := r.attemptEndpoint(ctx, ep, req)
		if err == nil {
			r.promote(ep)
			return resp, nil
		}
		if isTerminal(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tried = append(tried, ep.Host)
		r.log.Warn("mirror failed", "host", ep.Host, "error", err)
	}

	return nil, &ExhaustedError{Tried: tried}
}

// attemptEndpoint runs the per-endpoint retry loop: up to maxRetries
// attempts with doubling backoff for retryable failures, aborting the
// endpoint on the first failover-class failure.
func (r *Router) attemptEndpoint(ctx context.Context, ep Endpoint, req Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)
			if err := r.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		if err := r.waitRate(ctx); err != nil {
			return nil, err
		}

		resp, err := r.send(ctx, ep, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transport-level failure: retry on this endpoint.
			lastErr = err
			continue
		}

		if err := classifyStatus(resp.StatusCode); err != nil {
			drain(resp)
			var rl *RateLimitError
			if errors.As(err, &rl) {
				rl.Host = ep.Host
			}
			if isTerminal(err) || isFailover(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		return resp, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("mirror %s: retries exhausted", ep.Host)
	}
	return nil, lastErr
}

func (r *Router) send(ctx context.Context, ep Endpoint, req Request) (*http.Response, error) {
	u := url.URL{Scheme: "https", Host: ep.Host, Path: req.Path}
	if req.Query != nil {
		u.RawQuery = req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body *strings.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	} else {
		body = strings.NewReader("")
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for key, vals := range req.Header {
		httpReq.Header[key] = vals
	}
	if req.Form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	r.applyHeaders(httpReq)

	return r.client.Do(httpReq)
}

// Fetch retrieves an absolute URL (typically a signed CDN link) with the
// same rate limiting and retry schedule as Execute but without failover:
// signed URLs are host-specific, so there is no alternate mirror to try.
// The caller owns the response body.
func (r *Router) Fetch(ctx context.Context, rawurl string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)
			if err := r.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		if err := r.waitRate(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
		if err != nil {
			return nil, err
		}
		r.applyHeaders(req)

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if err := classifyStatus(resp.StatusCode); err != nil {
			drain(resp)
			if isTerminal(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("fetch %s: %w", rawurl, lastErr)
}

func (r *Router) applyHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	r.cookieMu.RLock()
	for name, value := range r.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	r.cookieMu.RUnlock()
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

func drain(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}
