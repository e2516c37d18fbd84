// Package applog implements a publisher that writes the usage events as
// structured logrus entries. It is the default publisher, useful when the
// events are collected by the log shipping of the platform.
package applog

import (
	"io"
	"os"

	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/sirupsen/logrus"
)

const Name = "log"

type Options struct {
	// Output of the entries, defaults to os.Stdout.
	Output io.Writer

	// JSON switches from the logrus text format to JSON.
	JSON bool

	// Level of the entries, defaults to info.
	Level logrus.Level
}

type Publisher struct {
	logger *logrus.Logger
	level  logrus.Level
}

func New(o Options) *Publisher {
	if o.Output == nil {
		o.Output = os.Stdout
	}

	if o.Level == logrus.PanicLevel {
		o.Level = logrus.InfoLevel
	}

	l := logrus.New()
	l.SetOutput(o.Output)
	l.SetLevel(o.Level)
	if o.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return &Publisher{logger: l, level: o.Level}
}

func (p *Publisher) Init() error { return nil }

func (p *Publisher) Publish(e *publisher.Event) error {
	p.logger.WithFields(logrus.Fields(e.Values())).Log(p.level, "usage event")
	return nil
}

func (p *Publisher) Close() error { return nil }
