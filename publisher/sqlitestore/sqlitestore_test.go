package sqlitestore_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/logging/loggingtest"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/sqlitestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublisher(t *testing.T, o sqlitestore.Options) (*sqlitestore.Publisher, string) {
	t.Helper()

	l := loggingtest.New()
	t.Cleanup(l.Close)

	o.Path = filepath.Join(t.TempDir(), "usage.db")
	o.Log = l
	p := sqlitestore.New(o)
	require.NoError(t, p.Init())
	return p, o.Path
}

func testEvent() *publisher.Event {
	return &publisher.Event{
		ConsumerKey:  "ck",
		Username:     "alice@wso2.com",
		TenantDomain: "wso2.com",
		API:          "PizzaShackAPI",
		Version:      "1.0.0",
		Method:       "GET",
		ResponseTime: 100 * time.Millisecond,
		ServiceTime:  30 * time.Millisecond,
		BackendTime:  70 * time.Millisecond,
		ResponseSize: 523,
		EventTime:    time.UnixMilli(1700000000100),
	}
}

func TestFlush(t *testing.T) {
	p, _ := newPublisher(t, sqlitestore.Options{FlushInterval: time.Hour})
	defer p.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(testEvent()))
	}

	require.NoError(t, p.Flush(context.Background()))
	n, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestBatchSizeTriggersWrite(t *testing.T) {
	p, _ := newPublisher(t, sqlitestore.Options{BatchSize: 2, FlushInterval: time.Hour})
	defer p.Close()

	require.NoError(t, p.Publish(testEvent()))
	require.NoError(t, p.Publish(testEvent()))

	assert.Eventually(t, func() bool {
		n, err := p.Count(context.Background())
		return err == nil && n == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCloseWritesPendingEvents(t *testing.T) {
	p, path := newPublisher(t, sqlitestore.Options{FlushInterval: time.Hour})
	e := testEvent()
	e.CacheHit = true
	require.NoError(t, p.Publish(e))
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish(testEvent()), publisher.ErrPublisherClosed)
	assert.ErrorIs(t, p.Flush(context.Background()), publisher.ErrPublisherClosed)
	assert.NoError(t, p.Close(), "second close")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var (
		api, tenant            string
		responseTime, cacheHit int64
		size, eventTime        int64
	)

	require.NoError(t, db.QueryRow(
		"SELECT api, tenant_domain, response_time_ms, cache_hit, response_size, event_time FROM usage_events",
	).Scan(&api, &tenant, &responseTime, &cacheHit, &size, &eventTime))

	assert.Equal(t, "PizzaShackAPI", api)
	assert.Equal(t, "wso2.com", tenant)
	assert.Equal(t, int64(100), responseTime)
	assert.Equal(t, int64(1), cacheHit)
	assert.Equal(t, int64(523), size)
	assert.Equal(t, int64(1700000000100), eventTime)
}

func TestInitRequiresPath(t *testing.T) {
	p := sqlitestore.New(sqlitestore.Options{})
	assert.ErrorIs(t, p.Init(), sqlitestore.ErrMissingPath)
	assert.NoError(t, p.Close())
}
