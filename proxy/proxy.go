package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/filters"
	"github.com/KalanaDananjaya/carbon-apimgt/logging"
)

const proxyBufferSize = 8192

var (
	ErrMissingBackend = errors.New("missing backend address")
	ErrInvalidContext = errors.New("api context must start with /")
)

var (
	caughtPanic atomic.Bool
	hopHeaders  = map[string]bool{
		"Te":                  true,
		"Connection":          true,
		"Proxy-Connection":    true,
		"Keep-Alive":          true,
		"Proxy-Authenticate":  true,
		"Proxy-Authorization": true,
		"Trailer":             true,
		"Transfer-Encoding":   true,
		"Upgrade":             true,
	}
)

// API describes the single API published by the proxy.
type API struct {
	Name    string
	Version string

	// Context is the path prefix of the API, e.g. /pizzashack/1.0.0.
	// Requests outside of it are answered with 404.
	Context string

	Publisher string
}

// RouteFilter is a named filter instance of the API route.
type RouteFilter struct {
	filters.Filter
	Name string
}

type Params struct {
	// Backend URL. The resource path of the request is appended to its
	// path.
	Backend string

	API API

	// HostName is recorded as the gateway host name of the invocations.
	HostName string

	// Filters are applied in order to the requests, and in reverse
	// order to the responses.
	Filters []*RouteFilter

	// Transport used for the backend requests, defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper

	Log logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Proxy forwards the requests of one API to its backend, while making
// the invocation timestamps and attributes available to the filters.
type Proxy struct {
	backend   *url.URL
	api       API
	routeID   string
	hostName  string
	filters   []*RouteFilter
	transport http.RoundTripper
	log       logging.Logger
	now       func() time.Time
}

func New(p Params) (*Proxy, error) {
	if p.Backend == "" {
		return nil, ErrMissingBackend
	}

	backend, err := url.Parse(p.Backend)
	if err != nil {
		return nil, fmt.Errorf("invalid backend address: %w", err)
	}

	if backend.Scheme == "" || backend.Host == "" {
		return nil, fmt.Errorf("invalid backend address: %s", p.Backend)
	}

	p.API.Context = strings.TrimSuffix(p.API.Context, "/")
	if p.API.Context != "" && !strings.HasPrefix(p.API.Context, "/") {
		return nil, ErrInvalidContext
	}

	if p.Transport == nil {
		p.Transport = http.DefaultTransport
	}

	if p.Log == nil {
		p.Log = logging.New()
	}

	if p.Now == nil {
		p.Now = time.Now
	}

	return &Proxy{
		backend:   backend,
		api:       p.API,
		routeID:   fmt.Sprintf("%s:v%s", p.API.Name, p.API.Version),
		hostName:  p.HostName,
		filters:   p.Filters,
		transport: p.Transport,
		log:       p.Log,
		now:       p.Now,
	}, nil
}

func tryCatch(p func(), onErr func(err interface{}, stack string)) {
	defer func() {
		if err := recover(); err != nil {
			s := ""
			if caughtPanic.CompareAndSwap(false, true) {
				buf := make([]byte, 1024)
				l := runtime.Stack(buf, false)
				s = string(buf[:l])
			}

			onErr(err, s)
		}
	}()

	p()
}

// applies filters to a request
func (p *Proxy) applyFiltersToRequest(ctx *context) []*RouteFilter {
	filters := make([]*RouteFilter, 0, len(p.filters))
	for _, fi := range p.filters {
		tryCatch(func() {
			fi.Request(ctx)
		}, func(err interface{}, stack string) {
			p.log.Errorf("error while processing filter during request: %s: %v (%s)", fi.Name, err, stack)
		})

		filters = append(filters, fi)
		if ctx.Served() {
			break
		}
	}

	return filters
}

// applies filters to a response in reverse order
func (p *Proxy) applyFiltersToResponse(filters []*RouteFilter, ctx *context) {
	last := len(filters) - 1
	for i := range filters {
		fi := filters[last-i]
		tryCatch(func() {
			fi.Response(ctx)
		}, func(err interface{}, stack string) {
			p.log.Errorf("error while processing filters during response: %s: %v (%s)", fi.Name, err, stack)
		})
	}
}

// resource returns the path of the request relative to the API context,
// or false when the request is not for the API.
func (p *Proxy) resource(r *http.Request) (string, bool) {
	path := r.URL.Path
	if p.api.Context != "" {
		if path != p.api.Context && !strings.HasPrefix(path, p.api.Context+"/") {
			return "", false
		}

		path = strings.TrimPrefix(path, p.api.Context)
	}

	if path == "" {
		path = "/"
	}

	return path, true
}

func epochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// stamps the invocation attributes that the gateway knows before any
// filter runs
func (p *Proxy) stampRequest(ctx *context, start time.Time, resource string) {
	sb := ctx.StateBag()
	sb[filters.UsageRequestStartTimeKey] = epochMillis(start)
	sb[filters.UsageHTTPMethodKey] = ctx.request.Method
	sb[filters.UsageResourceKey] = resource
	sb[filters.UsageHostNameKey] = p.hostName
	sb[filters.UsageAPIKey] = p.api.Name
	sb[filters.UsageVersionKey] = p.api.Version
	sb[filters.UsageAPIVersionKey] = p.routeID
	sb[filters.UsageContextKey] = p.api.Context
	sb[filters.UsageAPIPublisherKey] = p.api.Publisher
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}

	return a + b
}

func (p *Proxy) mapRequest(r *http.Request, resource string) (*http.Request, error) {
	u := *p.backend
	u.Path = singleJoiningSlash(p.backend.Path, resource)
	u.RawPath = ""
	u.RawQuery = r.URL.RawQuery

	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}

	rr, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	rr.ContentLength = r.ContentLength
	rr.Header = cloneHeaderExcluding(r.Header, hopHeaders)
	rr.Host = p.backend.Host
	return rr, nil
}

func (p *Proxy) makeBackendRequest(ctx *context, resource string) (*http.Response, error) {
	req, err := p.mapRequest(ctx.request, resource)
	if err != nil {
		return nil, fmt.Errorf("could not map backend request: %w", err)
	}

	sb := ctx.StateBag()
	sb[filters.UsageBackendStartTimeKey] = epochMillis(p.now())
	rsp, err := p.transport.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}

	sb[filters.UsageBackendEndTimeKey] = epochMillis(p.now())
	return rsp, nil
}

// copies a stream with flushing on every successful read operation
// (similar to io.Copy but with flushing)
func copyStream(to *logging.LoggingWriter, from io.Reader) error {
	b := make([]byte, proxyBufferSize)

	for {
		l, rerr := from.Read(b)
		if rerr != nil && rerr != io.EOF {
			return rerr
		}

		if l > 0 {
			_, werr := to.Write(b[:l])
			if werr != nil {
				return werr
			}

			to.Flush()
		}

		if rerr == io.EOF {
			return nil
		}
	}
}

func (p *Proxy) serveResponse(lw *logging.LoggingWriter, ctx *context) {
	code := ctx.response.StatusCode
	if code == 0 {
		code = http.StatusOK
	}

	copyHeaderExcluding(lw.Header(), ctx.response.Header, hopHeaders)
	lw.WriteHeader(code)
	if err := copyStream(lw, ctx.response.Body); err != nil {
		p.log.Errorf("error while copying the response stream: %v", err)
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lw := logging.NewLoggingWriter(w)
	start := p.now()

	ctx := newContext(lw, r, p.routeID)
	defer func() {
		if ctx.response != nil && ctx.response.Body != nil {
			if err := ctx.response.Body.Close(); err != nil {
				p.log.Errorf("error during closing the response body: %v", err)
			}
		}

		logging.LogAccess(&logging.AccessEntry{
			Request:      r,
			ResponseSize: lw.GetBytes(),
			StatusCode:   lw.GetCode(),
			RequestTime:  start,
			Duration:     p.now().Sub(start),
			API:          p.api.Name,
		})
	}()

	resource, ok := p.resource(r)
	if !ok {
		ctx.ensureDefaultResponse()
		p.serveResponse(lw, ctx)
		return
	}

	p.stampRequest(ctx, start, resource)
	processed := p.applyFiltersToRequest(ctx)

	if ctx.Served() {
		ctx.ensureDefaultResponse()
	} else {
		rsp, err := p.makeBackendRequest(ctx, resource)
		if err != nil {
			p.log.Errorf("error while proxying %s %s: %v", r.Method, r.URL.Path, err)
			rsp = errorResponse(r, http.StatusBadGateway)
		}

		ctx.response = rsp
		ctx.ensureDefaultResponse()
	}

	p.applyFiltersToResponse(processed, ctx)
	p.serveResponse(lw, ctx)
}
