/*
Package publisher defines the analytics publisher capability that
receives the usage events of API invocations, and the lookup of the
configured implementation by name.

Publishers are registered in a Registry under a name. The usage
publisher filter holds a Handle, which resolves the configured name,
constructs the publisher and calls Init exactly once, on first use. When
any of these steps fails, the Handle keeps the error for its whole
lifetime and no event is published.
*/
package publisher

import (
	"errors"
	"time"
)

var (
	// ErrUnknownPublisher is returned when the configured name is not
	// registered.
	ErrUnknownPublisher = errors.New("unknown publisher")

	// ErrPublisherClosed is returned by publishers that received an
	// event after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// Event is the usage record of one API invocation. It is assembled once
// per response and must not be modified after it was handed to a
// publisher.
type Event struct {
	ConsumerKey     string
	Username        string
	TenantDomain    string
	Context         string
	APIVersion      string
	API             string
	Version         string
	ResourcePath    string
	Method          string
	HostName        string
	APIPublisher    string
	ApplicationName string
	ApplicationID   string

	// ResponseTime is the total time between receiving the request and
	// sending the response.
	ResponseTime time.Duration

	// ServiceTime is the part of ResponseTime spent in the gateway.
	ServiceTime time.Duration

	// BackendTime is the part of ResponseTime spent waiting for the
	// backend.
	BackendTime time.Duration

	// CacheHit is inferred from the missing backend round trip, it is
	// not signaled by the cache.
	CacheHit bool

	ResponseSize int64

	// EventTime is the time when the response was observed.
	EventTime time.Time
}

// Publisher implementations receive the usage events. Publish may be
// called concurrently, and it must not panic on sink failures but return
// them as errors. Timeouts and backpressure are the responsibility of
// the implementation.
type Publisher interface {
	// Init is called once, before the first Publish.
	Init() error

	Publish(*Event) error

	// Close releases the resources of the publisher. Buffered events
	// are flushed when possible.
	Close() error
}

// Values returns the flat representation of the event used by the
// structured sinks. Durations are in milliseconds, the event time is in
// epoch milliseconds.
func (e *Event) Values() map[string]interface{} {
	return map[string]interface{}{
		"consumer_key":     e.ConsumerKey,
		"username":         e.Username,
		"tenant_domain":    e.TenantDomain,
		"context":          e.Context,
		"api_version":      e.APIVersion,
		"api":              e.API,
		"version":          e.Version,
		"resource_path":    e.ResourcePath,
		"method":           e.Method,
		"host_name":        e.HostName,
		"api_publisher":    e.APIPublisher,
		"application_name": e.ApplicationName,
		"application_id":   e.ApplicationID,
		"response_time_ms": e.ResponseTime.Milliseconds(),
		"service_time_ms":  e.ServiceTime.Milliseconds(),
		"backend_time_ms":  e.BackendTime.Milliseconds(),
		"cache_hit":        e.CacheHit,
		"response_size":    e.ResponseSize,
		"event_time":       e.EventTime.UnixMilli(),
	}
}
