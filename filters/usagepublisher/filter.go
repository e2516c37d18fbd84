package usagepublisher

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/filters"
	"github.com/KalanaDananjaya/carbon-apimgt/logging"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/KalanaDananjaya/carbon-apimgt/tenant"
)

var errPanic = errors.New("panic while publishing")

type filter struct {
	handle   *publisher.Handle
	tenantOf tenant.Resolver
	log      logging.Logger
	now      func() time.Time
}

// Request records the request start time, unless the mediation engine
// has already done it.
func (f *filter) Request(c filters.FilterContext) {
	bag := c.StateBag()
	if _, ok := bag[filters.UsageRequestStartTimeKey]; !ok {
		bag[filters.UsageRequestStartTimeKey] = f.now().UnixMilli()
	}
}

// Response measures the invocation and publishes its usage event. This
// is the only place where the failures of measuring and publishing are
// handled: they are logged, and the response always continues unchanged.
func (f *filter) Response(c filters.FilterContext) {
	defer func() {
		if err := recover(); err != nil {
			f.logFailure(c, fmt.Errorf("%w: %v", errPanic, err))
		}
	}()

	if err := f.publish(c); err != nil {
		f.logFailure(c, err)
	}
}

func (f *filter) publish(c filters.FilterContext) error {
	p, err := f.handle.Get()
	if err != nil {
		// logged once by the handle
		return nil
	}

	responseEnd := f.now()
	bag := c.StateBag()
	ts, err := readTimestamps(bag)
	if err != nil {
		return err
	}

	var header http.Header
	rsp := c.Response()
	if rsp != nil {
		header = rsp.Header
	}

	size := ResolveSize(header, responseBody{rsp}, f.log)

	t := ComputeTiming(ts.requestStart, ts.backendStart, ts.backendEnd, responseEnd.UnixMilli())
	if !t.Complete && ts.requestStart != 0 {
		f.log.Debugf(
			"Incomplete timestamps, publishing zero timing: backend start %d, backend end %d",
			ts.backendStart, ts.backendEnd,
		)
	}

	e := assemble(bag, t, size, responseEnd, f.tenantOf)
	if err := p.Publish(e); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", f.handle.Name(), err)
	}

	return nil
}

func (f *filter) logFailure(c filters.FilterContext, err error) {
	fields := map[string]interface{}{
		"route": c.RouteID(),
	}

	bag := c.StateBag()
	if api := stringValue(bag, filters.UsageAPIKey); api != "" {
		fields["api"] = api
	}

	if r := c.Request(); r != nil {
		fields["method"] = r.Method
		if r.URL != nil {
			fields["path"] = r.URL.Path
		}
	}

	f.log.WithFields(fields).Errorf("Cannot publish response event: %v", err)
}
