// Package builtin provides the registry of the publishers shipped with
// the gateway.
package builtin

import (
	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/applog"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/promstats"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/redisstream"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/sqlitestore"
)

// Options contains the settings of every builtin publisher. Only the
// settings of the publisher selected by name are used.
type Options struct {
	Log        applog.Options
	Prometheus promstats.Options
	Redis      redisstream.Options
	SQLite     sqlitestore.Options
}

// Registry returns a registry with the builtin publishers registered
// under their names: log, prometheus, redis and sqlite.
func Registry(o Options) *publisher.Registry {
	r := publisher.NewRegistry()
	r.Register(applog.Name, func() (publisher.Publisher, error) {
		return applog.New(o.Log), nil
	})

	r.Register(promstats.Name, func() (publisher.Publisher, error) {
		return promstats.New(o.Prometheus), nil
	})

	r.Register(redisstream.Name, func() (publisher.Publisher, error) {
		return redisstream.New(o.Redis), nil
	})

	r.Register(sqlitestore.Name, func() (publisher.Publisher, error) {
		return sqlitestore.New(o.SQLite), nil
	})

	return r
}
