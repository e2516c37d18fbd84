package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/KalanaDananjaya/carbon-apimgt/logging"
	"github.com/sirupsen/logrus"
)

func TestLogger(t *testing.T) {
	l := logrus.New()
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	log := logging.NewWithLogger(l)

	for _, tt := range []struct {
		name string
		log  func()
		want string
	}{
		{"error", func() { log.Error("error") }, "error"},
		{"errorf", func() { log.Errorf("errorf: %s", "foo") }, "errorf: foo"},
		{"warn", func() { log.Warn("warn") }, "warn"},
		{"warnf", func() { log.Warnf("warnf: %s", "foo") }, "warnf: foo"},
		{"info", func() { log.Info("info") }, "info"},
		{"infof", func() { log.Infof("infof: %s", "foo") }, "infof: foo"},
		{"debug", func() { log.Debug("debug") }, "debug"},
		{"debugf", func() { log.Debugf("debugf: %s", "foo") }, "debugf: foo"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			if s := buf.String(); !strings.Contains(s, tt.want) {
				t.Fatalf("want %q in %q", tt.want, s)
			}
		})
	}
}

func TestLoggerWithFields(t *testing.T) {
	l := logrus.New()
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	base := logging.NewWithLogger(l)
	base.WithFields(map[string]interface{}{"api": "pizza"}).Info("with")
	if s := buf.String(); !strings.Contains(s, "api=pizza") {
		t.Fatalf("field missing: %q", s)
	}

	buf.Reset()
	base.Info("without")
	if s := buf.String(); strings.Contains(s, "api=pizza") {
		t.Fatalf("fields leaked into the parent logger: %q", s)
	}
}
