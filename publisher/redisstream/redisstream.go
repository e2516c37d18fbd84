// Package redisstream implements a publisher that appends every usage
// event to a capped Redis stream with XADD.
//
// Writes are guarded by a consecutive failure circuit breaker, so a
// failing Redis does not cost a network round trip on every API
// invocation. While the breaker is open, Publish returns ErrBreakerOpen.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/logging"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	Name = "redis"

	DefaultStream          = "apimgt:usage"
	DefaultMaxLen          = 100000
	DefaultWriteTimeout    = 100 * time.Millisecond
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 10 * time.Second
	DefaultInitRetries     = 5
	DefaultRetryInterval   = 100 * time.Millisecond
)

var (
	ErrMissingAddress = errors.New("missing redis address")
	ErrBreakerOpen    = errors.New("redis usage stream breaker open")
)

type Options struct {
	Addr     string
	Password string
	DB       int

	// Stream key, defaults to DefaultStream.
	Stream string

	// MaxLen is the approximate cap of the stream. Zero means
	// DefaultMaxLen, negative values disable trimming.
	MaxLen int64

	WriteTimeout time.Duration

	// BreakerFailures is the number of consecutive XADD failures that
	// open the breaker.
	BreakerFailures int

	// BreakerTimeout is how long the breaker stays open before a trial
	// request is let through.
	BreakerTimeout time.Duration

	// InitRetries bounds the number of PING attempts in Init.
	InitRetries int

	// RetryInterval is the initial backoff interval between the PING
	// attempts.
	RetryInterval time.Duration

	Log logging.Logger
}

// streamClient is the subset of the redis client used by the publisher.
type streamClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type Publisher struct {
	options Options
	dial    func(*redis.Options) streamClient
	client  streamClient
	breaker *gobreaker.TwoStepCircuitBreaker
}

func dialRedis(o *redis.Options) streamClient {
	return redis.NewClient(o)
}

func New(o Options) *Publisher {
	if o.Stream == "" {
		o.Stream = DefaultStream
	}

	if o.MaxLen == 0 {
		o.MaxLen = DefaultMaxLen
	}

	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}

	if o.BreakerFailures <= 0 {
		o.BreakerFailures = DefaultBreakerFailures
	}

	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = DefaultBreakerTimeout
	}

	if o.InitRetries <= 0 {
		o.InitRetries = DefaultInitRetries
	}

	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	p := &Publisher{options: o, dial: dialRedis}
	p.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        o.Stream,
		MaxRequests: 1,
		Timeout:     o.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return int(c.ConsecutiveFailures) >= o.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.Log.Infof("redis usage stream breaker %s went from %v to %v", name, from, to)
		},
	})

	return p
}

// Init connects to Redis and pings it with exponential backoff. When
// Redis stays unreachable, the publisher is reported as failed.
func (p *Publisher) Init() error {
	if p.options.Addr == "" {
		return ErrMissingAddress
	}

	p.client = p.dial(&redis.Options{
		Addr:         p.options.Addr,
		Password:     p.options.Password,
		DB:           p.options.DB,
		WriteTimeout: p.options.WriteTimeout,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.options.RetryInterval

	_, err := backoff.Retry(context.Background(), func() (string, error) {
		s, err := p.client.Ping(context.Background()).Result()
		if err != nil {
			p.options.Log.Infof("Failed to ping redis, retry with backoff: %v", err)
		}

		return s, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.options.InitRetries)))

	if err != nil {
		p.client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", p.options.Addr, err)
	}

	return nil
}

func (p *Publisher) Publish(e *publisher.Event) error {
	done, err := p.breaker.Allow()
	if err != nil {
		return ErrBreakerOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.options.WriteTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: p.options.Stream,
		Values: e.Values(),
	}

	if p.options.MaxLen > 0 {
		args.MaxLen = p.options.MaxLen
		args.Approx = true
	}

	err = p.client.XAdd(ctx, args).Err()
	done(err == nil)
	if err != nil {
		return fmt.Errorf("failed to add usage event to stream %s: %w", p.options.Stream, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}

	return p.client.Close()
}
