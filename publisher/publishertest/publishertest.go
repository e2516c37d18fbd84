// Package publishertest provides a recording publisher for tests.
package publishertest

import (
	"sync"
	"sync/atomic"

	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
)

// Recorder is a publisher.Publisher that keeps the published events in
// memory. The error and panic fields configure failures and must be set
// before the recorder is used.
type Recorder struct {
	InitErr    error
	PublishErr error
	PanicOn    string

	// When Release is set, Init blocks until it is closed.
	Release chan struct{}

	initCalls    atomic.Int64
	publishCalls atomic.Int64
	closeCalls   atomic.Int64

	mu     sync.Mutex
	events []*publisher.Event
}

func (r *Recorder) Init() error {
	r.initCalls.Add(1)
	if r.PanicOn == "init" {
		panic("recorder init panic")
	}

	if r.Release != nil {
		<-r.Release
	}

	return r.InitErr
}

func (r *Recorder) Publish(e *publisher.Event) error {
	r.publishCalls.Add(1)
	if r.PanicOn == "publish" {
		panic("recorder publish panic")
	}

	if r.PublishErr != nil {
		return r.PublishErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error {
	r.closeCalls.Add(1)
	return nil
}

// Events returns a copy of the successfully published events.
func (r *Recorder) Events() []*publisher.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*publisher.Event(nil), r.events...)
}

func (r *Recorder) InitCalls() int64    { return r.initCalls.Load() }
func (r *Recorder) PublishCalls() int64 { return r.publishCalls.Load() }
func (r *Recorder) CloseCalls() int64   { return r.closeCalls.Load() }

// Factory returns a factory that always returns the recorder, and counts
// its own calls in the provided counter when not nil.
func (r *Recorder) Factory(calls *atomic.Int64) publisher.Factory {
	return func() (publisher.Publisher, error) {
		if calls != nil {
			calls.Add(1)
		}

		return r, nil
	}
}
