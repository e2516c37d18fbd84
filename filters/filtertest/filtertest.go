// Package filtertest implements mock versions of the Filter, Spec and
// FilterContext interfaces used during tests.
package filtertest

import (
	"net/http"

	"github.com/KalanaDananjaya/carbon-apimgt/filters"
)

// Noop filter, used to verify the filter name and the args in the route.
// Implements both the Filter and the Spec interfaces.
type Filter struct {
	FilterName string
	Args       []interface{}
}

// Simple FilterContext implementation.
type Context struct {
	FResponseWriter     http.ResponseWriter
	FRequest            *http.Request
	FResponse           *http.Response
	FServed             bool
	FServedWithResponse bool
	FStateBag           map[string]interface{}
	FRouteID            string
}

func (spec *Filter) Name() string                    { return spec.FilterName }
func (f *Filter) Request(ctx filters.FilterContext)  {}
func (f *Filter) Response(ctx filters.FilterContext) {}

func (fc *Context) ResponseWriter() http.ResponseWriter { return fc.FResponseWriter }
func (fc *Context) Request() *http.Request              { return fc.FRequest }
func (fc *Context) Response() *http.Response            { return fc.FResponse }
func (fc *Context) MarkServed()                         { fc.FServed = true }
func (fc *Context) Served() bool                        { return fc.FServed }
func (fc *Context) RouteID() string                     { return fc.FRouteID }

func (fc *Context) StateBag() map[string]interface{} {
	if fc.FStateBag == nil {
		fc.FStateBag = make(map[string]interface{})
	}

	return fc.FStateBag
}

func (fc *Context) Serve(r *http.Response) {
	fc.FServedWithResponse = true
	fc.FResponse = r
	fc.FServed = true
}

func (spec *Filter) CreateFilter(config []interface{}) (filters.Filter, error) {
	return &Filter{spec.FilterName, config}, nil
}
