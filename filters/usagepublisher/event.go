package usagepublisher

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/filters"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/KalanaDananjaya/carbon-apimgt/tenant"
)

var errInvalidTimestamp = errors.New("invalid timestamp")

type timestamps struct {
	requestStart int64
	backendStart int64
	backendEnd   int64
}

func readTimestamps(bag map[string]interface{}) (ts timestamps, err error) {
	if ts.requestStart, err = timestamp(bag, filters.UsageRequestStartTimeKey); err != nil {
		return
	}

	if ts.backendStart, err = timestamp(bag, filters.UsageBackendStartTimeKey); err != nil {
		return
	}

	ts.backendEnd, err = timestamp(bag, filters.UsageBackendEndTimeKey)
	return
}

// timestamp reads an epoch millisecond value from the state bag. Missing
// values are 0.
func timestamp(bag map[string]interface{}, key string) (int64, error) {
	switch v := bag[key].(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case time.Time:
		if v.IsZero() {
			return 0, nil
		}

		return v.UnixMilli(), nil
	case string:
		if v == "" {
			return 0, nil
		}

		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", errInvalidTimestamp, key, v)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", errInvalidTimestamp, key, v)
	}
}

func stringValue(bag map[string]interface{}, key string) string {
	switch v := bag[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func assemble(bag map[string]interface{}, t Timing, size int64, eventTime time.Time, tenantOf tenant.Resolver) *publisher.Event {
	username := stringValue(bag, filters.UsageUserIDKey)
	return &publisher.Event{
		ConsumerKey:     stringValue(bag, filters.UsageConsumerKeyKey),
		Username:        username,
		TenantDomain:    tenantOf(username),
		Context:         stringValue(bag, filters.UsageContextKey),
		APIVersion:      stringValue(bag, filters.UsageAPIVersionKey),
		API:             stringValue(bag, filters.UsageAPIKey),
		Version:         stringValue(bag, filters.UsageVersionKey),
		ResourcePath:    stringValue(bag, filters.UsageResourceKey),
		Method:          stringValue(bag, filters.UsageHTTPMethodKey),
		HostName:        stringValue(bag, filters.UsageHostNameKey),
		APIPublisher:    stringValue(bag, filters.UsageAPIPublisherKey),
		ApplicationName: stringValue(bag, filters.UsageApplicationNameKey),
		ApplicationID:   stringValue(bag, filters.UsageApplicationIDKey),
		ResponseTime:    t.ResponseTime,
		ServiceTime:     t.ServiceTime,
		BackendTime:     t.BackendTime,
		CacheHit:        t.CacheHit,
		ResponseSize:    size,
		EventTime:       eventTime,
	}
}
