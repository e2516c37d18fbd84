package promstats_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/promstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(cacheHit bool) *publisher.Event {
	e := &publisher.Event{
		API:          "PizzaShackAPI",
		Version:      "1.0.0",
		Method:       "GET",
		TenantDomain: "carbon.super",
		ResponseTime: 100 * time.Millisecond,
		ServiceTime:  30 * time.Millisecond,
		BackendTime:  70 * time.Millisecond,
		ResponseSize: 523,
	}

	if cacheHit {
		e.CacheHit = true
		e.ServiceTime = e.ResponseTime
		e.BackendTime = 0
	}

	return e
}

func TestPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := promstats.New(promstats.Options{Registry: reg})
	require.NoError(t, p.Init())

	require.NoError(t, p.Publish(event(false)))
	require.NoError(t, p.Publish(event(false)))
	require.NoError(t, p.Publish(event(true)))

	n, err := testutil.GatherAndCount(reg,
		"apimgt_usage_response_duration_seconds",
		"apimgt_usage_backend_duration_seconds",
		"apimgt_usage_requests_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "one series per histogram, two for the request counter")

	rsp := httptest.NewRecorder()
	p.Handler().ServeHTTP(rsp, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `apimgt_usage_requests_total{api="PizzaShackAPI",cache_hit="false",method="GET",tenant="carbon.super",version="1.0.0"} 2`)
	assert.Contains(t, string(body), `apimgt_usage_requests_total{api="PizzaShackAPI",cache_hit="true",method="GET",tenant="carbon.super",version="1.0.0"} 1`)
	assert.Contains(t, string(body), `apimgt_usage_backend_duration_seconds_count{api="PizzaShackAPI",method="GET",tenant="carbon.super",version="1.0.0"} 2`)
	assert.Contains(t, string(body), `apimgt_usage_response_size_bytes_sum{api="PizzaShackAPI",method="GET",tenant="carbon.super",version="1.0.0"} 1569`)
}

func TestInitFailsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := promstats.New(promstats.Options{Registry: reg})
	require.NoError(t, first.Init())

	second := promstats.New(promstats.Options{Registry: reg})
	assert.Error(t, second.Init())

	require.NoError(t, first.Close())
	assert.NoError(t, second.Init(), "names are free again after close")
}
