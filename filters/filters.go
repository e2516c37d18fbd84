package filters

import (
	"errors"
	"net/http"
)

const (
	// UsageRequestStartTimeKey is the state bag key of the epoch
	// millisecond timestamp when the gateway received the request.
	UsageRequestStartTimeKey = "api.ut.requestTime"

	// UsageBackendStartTimeKey is the state bag key of the epoch
	// millisecond timestamp when the backend request was sent.
	UsageBackendStartTimeKey = "api.ut.backendRequestTime"

	// UsageBackendEndTimeKey is the state bag key of the epoch
	// millisecond timestamp when the backend response was received.
	UsageBackendEndTimeKey = "api.ut.backendRequestEndTime"

	UsageConsumerKeyKey     = "api.ut.consumerKey"
	UsageUserIDKey          = "api.ut.userId"
	UsageContextKey         = "api.ut.context"
	UsageAPIVersionKey      = "api.ut.api_version"
	UsageAPIKey             = "api.ut.api"
	UsageVersionKey         = "api.ut.version"
	UsageResourceKey        = "api.ut.resource"
	UsageHTTPMethodKey      = "api.ut.HTTP_METHOD"
	UsageHostNameKey        = "api.ut.hostName"
	UsageAPIPublisherKey    = "api.ut.apiPublisher"
	UsageApplicationNameKey = "api.ut.application.name"
	UsageApplicationIDKey   = "api.ut.application.id"
)

// ErrInvalidFilterParameters is used in case of invalid filter parameters.
var ErrInvalidFilterParameters = errors.New("invalid filter parameters")

// FilterContext object providing state and information that is unique to a request.
type FilterContext interface {
	// The response writer object belonging to the incoming request. Used by
	// filters that handle the requests themselves.
	ResponseWriter() http.ResponseWriter

	// The incoming request object. It is forwarded to the route endpoint
	// with its properties changed by the filters.
	Request() *http.Request

	// The response object. It is returned to the client with its
	// properties changed by the filters.
	Response() *http.Response

	// Marks the request served. Response filters of the route are
	// still executed, but no backend request is made.
	MarkServed()

	// Serve a request with the provided response. It can be used by
	// filters that handle the requests themselves. FilterContext.Served()
	// will return true after this call.
	Serve(*http.Response)

	// Indicates if the request has been handled by a filter or the
	// response was served.
	Served() bool

	// Provides a read-write state bag, unique to a request and shared by
	// all the filters in the route. This is where the mediation engine
	// leaves the timestamps and identity attributes of an invocation.
	StateBag() map[string]interface{}

	// Gives filters access to the route id of the current route.
	RouteID() string
}

// Filters are created by the Spec components, optionally using filter
// specific settings. When implementing filters, it needs to be taken
// into consideration, that filter instances are route specific and not
// request specific, so any state stored with a filter is shared between
// all requests.
type Filter interface {
	// The request method is called on a filter on incoming requests. At
	// this stage, the FilterContext.Response() method returns nil.
	Request(FilterContext)

	// The response method is called on a filter after the response was
	// received from the backend. Returning from it without calling Serve
	// lets the response continue towards the client unchanged.
	Response(FilterContext)
}

// FilterCloser are Filters that need to cleanup resources after
// filter termination.
type FilterCloser interface {
	Filter
	Close() error
}

// Spec objects are specifications for filters. When initializing the
// routes, the Filter instances are created using the filter specs
// identified by their name.
type Spec interface {
	// Name gives the name of the Spec. It is used to identify filters in
	// a route definition.
	Name() string

	// CreateFilter creates a Filter instance. Called with the parameters
	// in the route definition while initializing a route.
	CreateFilter(config []interface{}) (Filter, error)
}
