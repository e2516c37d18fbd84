// Package sqlitestore implements a publisher that stores the usage
// events in a local SQLite database.
//
// Publish only enqueues the event. A background flusher writes the
// events in batches, when the batch size is reached or the flush
// interval elapses. When the buffer is full, the event is dropped and
// Publish returns ErrBufferFull.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/logging"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	Name = "sqlite"

	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultBufferSize    = 10000
	DefaultBusyTimeout   = 5 * time.Second
)

var (
	ErrMissingPath = errors.New("missing sqlite database path")
	ErrBufferFull  = errors.New("usage event buffer full")
)

type Options struct {
	// Path of the database file.
	Path string

	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
	BusyTimeout   time.Duration

	Log logging.Logger
}

type Publisher struct {
	options Options
	db      *sql.DB
	buffer  chan *publisher.Event
	flush   chan chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_events (
	id TEXT PRIMARY KEY,
	event_time INTEGER NOT NULL,
	consumer_key TEXT,
	username TEXT,
	tenant_domain TEXT,
	context TEXT,
	api_version TEXT,
	api TEXT,
	version TEXT,
	resource_path TEXT,
	method TEXT,
	host_name TEXT,
	api_publisher TEXT,
	application_name TEXT,
	application_id TEXT,
	response_time_ms INTEGER NOT NULL,
	service_time_ms INTEGER NOT NULL,
	backend_time_ms INTEGER NOT NULL,
	cache_hit INTEGER NOT NULL,
	response_size INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_events_time ON usage_events(event_time);
CREATE INDEX IF NOT EXISTS idx_usage_events_api ON usage_events(api, version);
`

const insertEvent = `
INSERT INTO usage_events (
	id, event_time, consumer_key, username, tenant_domain, context,
	api_version, api, version, resource_path, method, host_name,
	api_publisher, application_name, application_id,
	response_time_ms, service_time_ms, backend_time_ms, cache_hit, response_size
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func New(o Options) *Publisher {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}

	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}

	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	return &Publisher{
		options: o,
		buffer:  make(chan *publisher.Event, o.BufferSize),
		flush:   make(chan chan error),
		done:    make(chan struct{}),
	}
}

// Init opens the database, creates the schema and starts the background
// flusher.
func (p *Publisher) Init() error {
	if p.options.Path == "" {
		return ErrMissingPath
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		p.options.Path,
		p.options.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	p.db = db
	p.wg.Add(1)
	go p.flusher()
	return nil
}

// Publish enqueues the event without blocking.
func (p *Publisher) Publish(e *publisher.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return publisher.ErrPublisherClosed
	}

	select {
	case p.buffer <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

// Flush writes the pending events and waits for the write to finish.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return publisher.ErrPublisherClosed
	}

	rsp := make(chan error, 1)
	select {
	case p.flush <- rsp:
	case <-p.done:
		return publisher.ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-rsp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of the stored events.
func (p *Publisher) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_events").Scan(&n)
	return n, err
}

// Close stops the flusher, writes the pending events and closes the
// database.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	close(p.done)
	p.wg.Wait()
	return p.db.Close()
}

func (p *Publisher) flusher() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.options.FlushInterval)
	defer ticker.Stop()

	var batch []*publisher.Event
	writeBatch := func() error {
		err := p.write(context.Background(), batch)
		if err != nil {
			p.options.Log.Errorf("Failed to store %d usage events: %v", len(batch), err)
		}

		batch = nil
		return err
	}

	for {
		select {
		case <-p.done:
			batch = append(batch, p.drain()...)
			writeBatch()
			return
		case rsp := <-p.flush:
			batch = append(batch, p.drain()...)
			rsp <- writeBatch()
		case e := <-p.buffer:
			batch = append(batch, e)
			if len(batch) >= p.options.BatchSize {
				writeBatch()
			}
		case <-ticker.C:
			writeBatch()
		}
	}
}

func (p *Publisher) drain() []*publisher.Event {
	var events []*publisher.Event
	for {
		select {
		case e := <-p.buffer:
			events = append(events, e)
		default:
			return events
		}
	}
}

func (p *Publisher) write(ctx context.Context, events []*publisher.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return err
	}

	defer stmt.Close()

	for _, e := range events {
		cacheHit := 0
		if e.CacheHit {
			cacheHit = 1
		}

		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), e.EventTime.UnixMilli(),
			e.ConsumerKey, e.Username, e.TenantDomain, e.Context,
			e.APIVersion, e.API, e.Version, e.ResourcePath, e.Method, e.HostName,
			e.APIPublisher, e.ApplicationName, e.ApplicationID,
			e.ResponseTime.Milliseconds(), e.ServiceTime.Milliseconds(), e.BackendTime.Milliseconds(),
			cacheHit, e.ResponseSize,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}
