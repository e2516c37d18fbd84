/*
This command starts an API gateway that proxies a single API to its
backend and publishes the usage event of every invocation.

For the list of command line options, run:

	carbon-apimgt -help

Example:

	carbon-apimgt \
		-backend https://localhost:9443/am/sample/pizzashack/v1/api \
		-api-name PizzaShackAPI -api-version 1.0.0 -api-context /pizzashack/1.0.0 \
		-enable-usage-publisher -usage-publisher prometheus
*/
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/KalanaDananjaya/carbon-apimgt/config"
	"github.com/KalanaDananjaya/carbon-apimgt/logging"
	"github.com/KalanaDananjaya/carbon-apimgt/run"
	log "github.com/sirupsen/logrus"
)

func openLog(path string) (io.Writer, error) {
	if path == "" {
		return nil, nil
	}

	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("Error processing config: %s", err)
	}

	appLog, err := openLog(cfg.ApplicationLog)
	if err != nil {
		log.Fatalf("Failed to open application log: %v", err)
	}

	accessLog, err := openLog(cfg.AccessLog)
	if err != nil {
		log.Fatalf("Failed to open access log: %v", err)
	}

	logging.Init(logging.Options{
		ApplicationLogPrefix:      cfg.ApplicationLogPrefix,
		ApplicationLogOutput:      appLog,
		ApplicationLogJSONEnabled: cfg.ApplicationLogJSONEnabled,
		ApplicationLogLevel:       cfg.ApplicationLogLevel,
		AccessLogOutput:           accessLog,
		AccessLogDisabled:         cfg.AccessLogDisabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run.Run(ctx, cfg.ToOptions()); err != nil {
		log.Fatal(err)
	}
}
