package usagepublisher

import (
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/filters"
	"github.com/KalanaDananjaya/carbon-apimgt/logging"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/KalanaDananjaya/carbon-apimgt/tenant"
	"github.com/sirupsen/logrus"
)

const Name = "apiUsagePublisher"

var log = logrus.WithField("filter", Name)

// Options configure the filter specification. They are read once, when
// the specification is created.
type Options struct {
	// Enabled switches the whole feature. When false, the
	// specification creates noop filters.
	Enabled bool

	// Publisher is the name of the publisher in Registry.
	Publisher string

	// Registry of the available publishers. An empty registry is used
	// when nil, which disables publishing.
	Registry *publisher.Registry

	// TenantResolver derives the tenant domain of the user. Defaults
	// to tenant.Domain.
	TenantResolver tenant.Resolver

	// Log receives the diagnostics of the filter. Defaults to the
	// application log.
	Log logging.Logger

	// Now returns the current time, defaults to time.Now.
	Now func() time.Time
}

type spec struct {
	handle   *publisher.Handle
	tenantOf tenant.Resolver
	log      logging.Logger
	now      func() time.Time
}

// New creates the specification of the apiUsagePublisher filter. All
// the filters created by the specification share one publisher, which
// is initialized on the first response they observe.
//
// The returned specification implements io.Closer, closing it closes
// the publisher.
func New(o Options) filters.Spec {
	if !o.Enabled {
		log.Debugf("filter %q is not enabled. spec returns `noop` filters.", Name)
		return &noopSpec{&noopFilter{}}
	}

	if o.Registry == nil {
		o.Registry = publisher.NewRegistry()
	}

	if o.TenantResolver == nil {
		o.TenantResolver = tenant.Domain
	}

	if o.Log == nil {
		o.Log = logging.New().WithFields(map[string]interface{}{"filter": Name})
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	s := &spec{
		handle:   publisher.NewHandle(o.Registry, o.Publisher, o.Log),
		tenantOf: o.TenantResolver,
		log:      o.Log,
		now:      o.Now,
	}

	log.Debugf("created filter spec with publisher %q", o.Publisher)
	return s
}

func (s *spec) Name() string { return Name }

// CreateFilter creates a filter instance. The filter takes no arguments.
//
//	apiUsagePublisher()
func (s *spec) CreateFilter(args []interface{}) (filters.Filter, error) {
	if len(args) != 0 {
		return nil, filters.ErrInvalidFilterParameters
	}

	return &filter{
		handle:   s.handle,
		tenantOf: s.tenantOf,
		log:      s.log,
		now:      s.now,
	}, nil
}

func (s *spec) Close() error {
	return s.handle.Close()
}
