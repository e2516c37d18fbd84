package proxy_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/filters"
	"github.com/KalanaDananjaya/carbon-apimgt/logging/loggingtest"
	"github.com/KalanaDananjaya/carbon-apimgt/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pizzaShack = proxy.API{
	Name:      "PizzaShackAPI",
	Version:   "1.0.0",
	Context:   "/pizzashack/1.0.0",
	Publisher: "admin",
}

// stepClock advances 10ms on every call
type stepClock struct {
	n atomic.Int64
}

func (c *stepClock) Now() time.Time {
	return time.UnixMilli(1000 + 10*(c.n.Add(1)-1))
}

type recordingFilter struct {
	name     string
	mu       sync.Mutex
	calls    *[]string
	bag      map[string]interface{}
	serve    bool
	panicReq bool
}

func (f *recordingFilter) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.calls = append(*f.calls, f.name+"."+call)
}

func (f *recordingFilter) Request(ctx filters.FilterContext) {
	f.record("request")
	if f.panicReq {
		panic("request filter panic")
	}

	if f.serve {
		ctx.Serve(&http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("cached"))})
	}
}

func (f *recordingFilter) Response(ctx filters.FilterContext) {
	f.record("response")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bag = make(map[string]interface{})
	for k, v := range ctx.StateBag() {
		f.bag[k] = v
	}
}

func newProxy(t *testing.T, backend string, clock *stepClock, fs ...*recordingFilter) *proxy.Proxy {
	t.Helper()

	l := loggingtest.New()
	t.Cleanup(l.Close)

	var rfs []*proxy.RouteFilter
	for _, f := range fs {
		rfs = append(rfs, &proxy.RouteFilter{Filter: f, Name: f.name})
	}

	p, err := proxy.New(proxy.Params{
		Backend:  backend,
		API:      pizzaShack,
		HostName: "gw-1",
		Filters:  rfs,
		Log:      l,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return p
}

func TestForwardsAndStampsInvocation(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/menu", r.URL.Path)
		assert.Equal(t, "size=large", r.URL.RawQuery)
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))
		w.Header().Set("X-Backend", "pizza")
		w.Write([]byte("margherita"))
	}))
	defer backend.Close()

	var calls []string
	f := &recordingFilter{name: "recorder", calls: &calls}
	p := newProxy(t, backend.URL+"/api", &stepClock{}, f)

	req := httptest.NewRequest("GET", "http://gateway/pizzashack/1.0.0/menu?size=large", nil)
	req.Header.Set("Proxy-Authorization", "secret")
	rsp := httptest.NewRecorder()
	p.ServeHTTP(rsp, req)

	assert.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, "margherita", rsp.Body.String())
	assert.Equal(t, "pizza", rsp.Header().Get("X-Backend"))

	assert.Equal(t, []string{"recorder.request", "recorder.response"}, calls)
	assert.Equal(t, map[string]interface{}{
		filters.UsageRequestStartTimeKey: int64(1000),
		filters.UsageBackendStartTimeKey: int64(1010),
		filters.UsageBackendEndTimeKey:   int64(1020),
		filters.UsageHTTPMethodKey:       "GET",
		filters.UsageResourceKey:         "/menu",
		filters.UsageHostNameKey:         "gw-1",
		filters.UsageAPIKey:              "PizzaShackAPI",
		filters.UsageVersionKey:          "1.0.0",
		filters.UsageAPIVersionKey:       "PizzaShackAPI:v1.0.0",
		filters.UsageContextKey:          "/pizzashack/1.0.0",
		filters.UsageAPIPublisherKey:     "admin",
	}, f.bag)
}

func TestResponseFiltersRunInReverse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	var calls []string
	p := newProxy(t, backend.URL, &stepClock{},
		&recordingFilter{name: "a", calls: &calls},
		&recordingFilter{name: "b", calls: &calls},
	)

	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "http://gateway/pizzashack/1.0.0", nil))
	assert.Equal(t, []string{"a.request", "b.request", "b.response", "a.response"}, calls)
}

func TestServedByRequestFilter(t *testing.T) {
	var backendCalls atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendCalls.Add(1)
	}))
	defer backend.Close()

	var calls []string
	outer := &recordingFilter{name: "outer", calls: &calls}
	cache := &recordingFilter{name: "cache", calls: &calls, serve: true}
	skipped := &recordingFilter{name: "skipped", calls: &calls}
	p := newProxy(t, backend.URL, &stepClock{}, outer, cache, skipped)

	rsp := httptest.NewRecorder()
	p.ServeHTTP(rsp, httptest.NewRequest("GET", "http://gateway/pizzashack/1.0.0/menu", nil))

	assert.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, "cached", rsp.Body.String())
	assert.Zero(t, backendCalls.Load())
	assert.Equal(t, []string{"outer.request", "cache.request", "cache.response", "outer.response"}, calls)
	assert.NotContains(t, outer.bag, filters.UsageBackendStartTimeKey)
	assert.NotContains(t, outer.bag, filters.UsageBackendEndTimeKey)
}

func TestBackendFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	var calls []string
	f := &recordingFilter{name: "recorder", calls: &calls}
	p := newProxy(t, backend.URL, &stepClock{}, f)

	rsp := httptest.NewRecorder()
	p.ServeHTTP(rsp, httptest.NewRequest("GET", "http://gateway/pizzashack/1.0.0/menu", nil))

	assert.Equal(t, http.StatusBadGateway, rsp.Code)
	assert.Contains(t, f.bag, filters.UsageBackendStartTimeKey)
	assert.NotContains(t, f.bag, filters.UsageBackendEndTimeKey)
}

func TestFilterPanicDoesNotStopTheRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	var calls []string
	p := newProxy(t, backend.URL, &stepClock{},
		&recordingFilter{name: "panicking", calls: &calls, panicReq: true},
		&recordingFilter{name: "next", calls: &calls},
	)

	rsp := httptest.NewRecorder()
	p.ServeHTTP(rsp, httptest.NewRequest("GET", "http://gateway/pizzashack/1.0.0/menu", nil))

	assert.Equal(t, "ok", rsp.Body.String())
	assert.Equal(t, []string{"panicking.request", "next.request", "next.response", "panicking.response"}, calls)
}

func TestOutsideOfContext(t *testing.T) {
	var calls []string
	p := newProxy(t, "http://backend.invalid", &stepClock{}, &recordingFilter{name: "recorder", calls: &calls})

	for _, path := range []string{"/", "/pizzashack", "/pizzashack/1.0.0x/menu"} {
		t.Run(path, func(t *testing.T) {
			rsp := httptest.NewRecorder()
			p.ServeHTTP(rsp, httptest.NewRequest("GET", "http://gateway"+path, nil))
			assert.Equal(t, http.StatusNotFound, rsp.Code)
		})
	}

	assert.Empty(t, calls)
}

func TestNewValidatesParams(t *testing.T) {
	for _, tc := range []struct {
		title  string
		params proxy.Params
	}{{
		title:  "missing backend",
		params: proxy.Params{},
	}, {
		title:  "relative backend",
		params: proxy.Params{Backend: "backend/api"},
	}, {
		title:  "invalid context",
		params: proxy.Params{Backend: "http://backend", API: proxy.API{Context: "pizzashack"}},
	}} {
		t.Run(tc.title, func(t *testing.T) {
			_, err := proxy.New(tc.params)
			assert.Error(t, err)
		})
	}
}
