package publisher

import (
	"fmt"
	"sync"

	"github.com/KalanaDananjaya/carbon-apimgt/logging"
)

// Handle is the shared, lazily initialized reference to the configured
// publisher. The first call to Get resolves, constructs and initializes
// the publisher. Concurrent callers wait for that to finish, and all of
// them, as well as all later callers, observe the same result.
//
// A failed initialization is permanent for the Handle: it is logged once
// and then only returned as an error.
type Handle struct {
	name     string
	registry *Registry
	log      logging.Logger

	once sync.Once
	p    Publisher
	err  error
}

// NewHandle creates a handle for the publisher registered under name.
// Nothing is resolved until the first call to Get.
func NewHandle(r *Registry, name string, l logging.Logger) *Handle {
	if l == nil {
		l = logging.New()
	}

	return &Handle{
		name:     name,
		registry: r,
		log:      l,
	}
}

// Name returns the configured publisher name.
func (h *Handle) Name() string { return h.name }

// Get returns the initialized publisher, or the permanent error of its
// initialization.
func (h *Handle) Get() (Publisher, error) {
	h.once.Do(h.init)
	return h.p, h.err
}

func (h *Handle) init() {
	h.log.Debugf("Instantiating usage publisher %q", h.name)
	defer func() {
		if err := recover(); err != nil {
			h.p = nil
			h.err = fmt.Errorf("panic while initializing publisher %q: %v", h.name, err)
			h.log.Errorf("Usage publishing disabled: %v", h.err)
		}
	}()

	p, err := h.registry.Create(h.name)
	if err != nil {
		h.err = err
		h.log.Errorf("Usage publishing disabled: %v", err)
		return
	}

	if err := p.Init(); err != nil {
		h.err = fmt.Errorf("failed to initialize publisher %q: %w", h.name, err)
		h.log.Errorf("Usage publishing disabled: %v", h.err)
		if cerr := p.Close(); cerr != nil {
			h.log.Debugf("Failed to close publisher %q after failed init: %v", h.name, cerr)
		}

		return
	}

	h.p = p
	h.log.Infof("Usage publisher %q initialized", h.name)
}

// Close closes the publisher if it was initialized. Calling Close before
// the first Get prevents the initialization.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.err = fmt.Errorf("publisher %q: %w", h.name, ErrPublisherClosed)
	})

	if h.p == nil {
		return nil
	}

	return h.p.Close()
}
