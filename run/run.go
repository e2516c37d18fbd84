// Package run starts the gateway: the API proxy with the usage publisher
// filter, and the metrics listener.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/filters"
	"github.com/KalanaDananjaya/carbon-apimgt/filters/usagepublisher"
	"github.com/KalanaDananjaya/carbon-apimgt/proxy"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/builtin"
	"github.com/KalanaDananjaya/carbon-apimgt/tenant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReadHeaderTimeout = 60 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

type Options struct {
	// Network address of the API proxy.
	Address string

	// Network address of the /metrics endpoint. Empty disables it.
	MetricsListener string

	// Enables the Go runtime and process collectors.
	EnableRuntimeMetrics bool

	// Backend URL of the API.
	Backend string

	API proxy.API

	// GatewayHostName is recorded in the usage events.
	GatewayHostName string

	EnableUsagePublisher bool

	// UsagePublisher is the name of the builtin publisher.
	UsagePublisher string

	// Settings of the builtin publishers. The Prometheus registry is
	// set by Run.
	Publishers builtin.Options

	// SuperTenantDomain is the tenant of the users without a tenant
	// qualified name.
	SuperTenantDomain string

	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds the graceful shutdown of the listeners.
	ShutdownTimeout time.Duration

	// CustomFilters are appended to the API route after the usage
	// publisher filter.
	CustomFilters []*proxy.RouteFilter
}

func (o *Options) defaults() {
	if o.ReadHeaderTimeout <= 0 {
		o.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaultShutdownTimeout
	}

	if o.SuperTenantDomain == "" {
		o.SuperTenantDomain = tenant.SuperTenantDomain
	}
}

// Run listens on the configured addresses and serves until the context
// is done.
func Run(ctx context.Context, o Options) error {
	pl, err := net.Listen("tcp", o.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", o.Address, err)
	}

	var ml net.Listener
	if o.MetricsListener != "" {
		ml, err = net.Listen("tcp", o.MetricsListener)
		if err != nil {
			pl.Close()
			return fmt.Errorf("failed to listen on %s: %w", o.MetricsListener, err)
		}
	}

	return Serve(ctx, o, pl, ml)
}

// Serve serves the API proxy on pl and the metrics on ml, when ml is
// not nil, until the context is done. It takes ownership of the
// listeners.
func Serve(ctx context.Context, o Options, pl, ml net.Listener) (err error) {
	o.defaults()

	defer func() {
		if err == nil {
			return
		}

		pl.Close()
		if ml != nil {
			ml.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	if o.EnableRuntimeMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(collectors.NewGoCollector())
	}

	o.Publishers.Prometheus.Registry = reg

	spec := usagepublisher.New(usagepublisher.Options{
		Enabled:        o.EnableUsagePublisher,
		Publisher:      o.UsagePublisher,
		Registry:       builtin.Registry(o.Publishers),
		TenantResolver: tenant.WithDefault(o.SuperTenantDomain),
	})

	defer func() {
		if c, ok := spec.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Errorf("Failed to close the usage publisher: %v", err)
			}
		}
	}()

	registry := make(filters.Registry)
	registry.Register(spec)

	var uf filters.Filter
	uf, err = registry.Create(usagepublisher.Name)
	if err != nil {
		return err
	}

	routeFilters := append([]*proxy.RouteFilter{{Filter: uf, Name: usagepublisher.Name}}, o.CustomFilters...)
	var px *proxy.Proxy
	px, err = proxy.New(proxy.Params{
		Backend:  o.Backend,
		API:      o.API,
		HostName: o.GatewayHostName,
		Filters:  routeFilters,
	})
	if err != nil {
		return err
	}

	servers := []*http.Server{{Handler: px, ReadHeaderTimeout: o.ReadHeaderTimeout}}
	listeners := []net.Listener{pl}
	if ml != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{Handler: mux, ReadHeaderTimeout: o.ReadHeaderTimeout})
		listeners = append(listeners, ml)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range servers {
		srv, l := servers[i], listeners[i]
		g.Go(func() error {
			log.Infof("Listening on %v", l.Addr())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listener error on %v: %w", l.Addr(), err)
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		sctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(sctx))
		}

		return errors.Join(errs...)
	})

	return g.Wait()
}
