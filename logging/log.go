package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type prefixFormatter struct {
	prefix    string
	formatter logrus.Formatter
}

// Init options for logging.
type Options struct {

	// Prefix for application log entries. Primarily used to be
	// able to select the application log entries when the output
	// is shared with other processes.
	ApplicationLogPrefix string

	// Output for the application log entries, when nil,
	// os.Stderr is used.
	ApplicationLogOutput io.Writer

	// When set, log in JSON format is used
	ApplicationLogJSONEnabled bool

	// Minimum level of the application log entries.
	ApplicationLogLevel logrus.Level

	// Output for the access log entries, when nil, os.Stderr is used.
	AccessLogOutput io.Writer

	// When set, no access log is printed.
	AccessLogDisabled bool
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}

	return append([]byte(f.prefix), b...), nil
}

func initApplicationLog(prefix string, output io.Writer, jsonEnabled bool) {
	var formatter logrus.Formatter = &logrus.TextFormatter{}
	if jsonEnabled {
		formatter = &logrus.JSONFormatter{}
	}

	if prefix != "" {
		formatter = &prefixFormatter{prefix, formatter}
	}

	logrus.SetFormatter(formatter)

	if output != nil {
		logrus.SetOutput(output)
	}
}

func initAccessLog(output io.Writer) {
	if output == nil {
		output = os.Stderr
	}

	l := logrus.New()
	l.Formatter = &accessLogFormatter{accessLogFormat}
	l.Out = output
	l.Level = logrus.InfoLevel
	accessLog = l
}

// Initializes logging.
func Init(o Options) {
	initApplicationLog(o.ApplicationLogPrefix, o.ApplicationLogOutput, o.ApplicationLogJSONEnabled)
	logrus.SetLevel(o.ApplicationLogLevel)

	if o.AccessLogDisabled {
		accessLog = nil
	} else {
		initAccessLog(o.AccessLogOutput)
	}
}
