package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KalanaDananjaya/carbon-apimgt/proxy"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/applog"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/builtin"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/promstats"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/redisstream"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/sqlitestore"
	"github.com/KalanaDananjaya/carbon-apimgt/run"
	"github.com/KalanaDananjaya/carbon-apimgt/tenant"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"read-header-timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown-timeout"`

	// API:
	Backend         string `yaml:"backend"`
	APIName         string `yaml:"api-name"`
	APIVersion      string `yaml:"api-version"`
	APIContext      string `yaml:"api-context"`
	APIPublisher    string `yaml:"api-publisher"`
	GatewayHostName string `yaml:"gateway-host-name"`

	// usage publishing:
	EnableUsagePublisher bool   `yaml:"enable-usage-publisher"`
	UsagePublisher       string `yaml:"usage-publisher"`
	UsagePublisherClass  string `yaml:"usage-publisher-class"`
	SuperTenantDomain    string `yaml:"super-tenant-domain"`

	UsageLogJSONEnabled bool `yaml:"usage-log-json-enabled"`

	UsagePrometheusNamespace       string    `yaml:"usage-prometheus-namespace"`
	UsageHistogramBucketsString    string    `yaml:"usage-histogram-buckets"`
	UsageHistogramBuckets          []float64 `yaml:"-"`
	UsageResponseSizeBucketsString string    `yaml:"usage-response-size-buckets"`
	UsageResponseSizeBuckets       []float64 `yaml:"-"`

	UsageRedisAddress         string        `yaml:"usage-redis-address"`
	UsageRedisPassword        string        `yaml:"usage-redis-password"`
	UsageRedisDB              int           `yaml:"usage-redis-db"`
	UsageRedisStream          string        `yaml:"usage-redis-stream"`
	UsageRedisMaxLen          int64         `yaml:"usage-redis-max-len"`
	UsageRedisWriteTimeout    time.Duration `yaml:"usage-redis-write-timeout"`
	UsageRedisBreakerFailures int           `yaml:"usage-redis-breaker-failures"`
	UsageRedisBreakerTimeout  time.Duration `yaml:"usage-redis-breaker-timeout"`
	UsageRedisInitRetries     int           `yaml:"usage-redis-init-retries"`

	UsageSQLitePath          string        `yaml:"usage-sqlite-path"`
	UsageSQLiteBatchSize     int           `yaml:"usage-sqlite-batch-size"`
	UsageSQLiteFlushInterval time.Duration `yaml:"usage-sqlite-flush-interval"`
	UsageSQLiteBufferSize    int           `yaml:"usage-sqlite-buffer-size"`

	// logging, metrics:
	MetricsListener           string    `yaml:"metrics-listener"`
	EnableRuntimeMetrics      bool      `yaml:"runtime-metrics"`
	ApplicationLog            string    `yaml:"application-log"`
	ApplicationLogLevel       log.Level `yaml:"-"`
	ApplicationLogLevelString string    `yaml:"application-log-level"`
	ApplicationLogPrefix      string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled bool      `yaml:"application-log-json-enabled"`
	AccessLog                 string    `yaml:"access-log"`
	AccessLogDisabled         bool      `yaml:"access-log-disabled"`
}

const (
	defaultAddress         = ":8280"
	defaultMetricsListener = ":9911"

	// environment keys:
	redisPasswordEnv = "USAGE_REDIS_PASSWORD"
)

func NewConfig() *Config {
	cfg := new(Config)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", defaultAddress, "network address that the gateway should listen on")
	flag.DurationVar(&cfg.ReadHeaderTimeout, "read-header-timeout", 60*time.Second, "set ReadHeaderTimeout for http server connections")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "maximum duration of the graceful shutdown of the listeners")

	// API:
	flag.StringVar(&cfg.Backend, "backend", "", "URL of the API backend, the resource path of the requests is appended to its path")
	flag.StringVar(&cfg.APIName, "api-name", "", "name of the published API")
	flag.StringVar(&cfg.APIVersion, "api-version", "", "version of the published API")
	flag.StringVar(&cfg.APIContext, "api-context", "", "path prefix of the published API, e.g. /pizzashack/1.0.0")
	flag.StringVar(&cfg.APIPublisher, "api-publisher", "", "publisher of the API recorded in the usage events")
	flag.StringVar(&cfg.GatewayHostName, "gateway-host-name", hostname, "host name of the gateway recorded in the usage events")

	// usage publishing:
	flag.BoolVar(&cfg.EnableUsagePublisher, "enable-usage-publisher", false, "enables publishing the usage event of every API invocation")
	flag.StringVar(&cfg.UsagePublisher, "usage-publisher", applog.Name, "name of the usage publisher: log, prometheus, redis or sqlite")
	flag.StringVar(&cfg.UsagePublisherClass, "usage-publisher-class", "", "*Deprecated*: publishers are selected by name, use -usage-publisher")
	flag.StringVar(&cfg.SuperTenantDomain, "super-tenant-domain", tenant.SuperTenantDomain, "tenant domain of the users without a tenant qualified name")
	flag.BoolVar(&cfg.UsageLogJSONEnabled, "usage-log-json-enabled", false, "when this flag is set, the log publisher writes the usage events in JSON format")
	flag.StringVar(&cfg.UsagePrometheusNamespace, "usage-prometheus-namespace", "", "namespace of the usage metrics of the prometheus publisher")
	flag.StringVar(&cfg.UsageHistogramBucketsString, "usage-histogram-buckets", "", "use custom buckets for the usage duration histograms, in seconds, comma separated")
	flag.StringVar(&cfg.UsageResponseSizeBucketsString, "usage-response-size-buckets", "", "use custom buckets for the usage response size histogram, in bytes, comma separated")
	flag.StringVar(&cfg.UsageRedisAddress, "usage-redis-address", "", "address of the redis server of the redis publisher")
	flag.StringVar(&cfg.UsageRedisPassword, "usage-redis-password", "", "password of the redis server, can also be set with the "+redisPasswordEnv+" environment variable")
	flag.IntVar(&cfg.UsageRedisDB, "usage-redis-db", 0, "redis database of the redis publisher")
	flag.StringVar(&cfg.UsageRedisStream, "usage-redis-stream", redisstream.DefaultStream, "key of the redis stream receiving the usage events")
	flag.Int64Var(&cfg.UsageRedisMaxLen, "usage-redis-max-len", redisstream.DefaultMaxLen, "approximate maximum length of the redis stream, negative disables trimming")
	flag.DurationVar(&cfg.UsageRedisWriteTimeout, "usage-redis-write-timeout", redisstream.DefaultWriteTimeout, "timeout of adding a usage event to the redis stream")
	flag.IntVar(&cfg.UsageRedisBreakerFailures, "usage-redis-breaker-failures", redisstream.DefaultBreakerFailures, "consecutive redis failures that open the circuit breaker of the redis publisher")
	flag.DurationVar(&cfg.UsageRedisBreakerTimeout, "usage-redis-breaker-timeout", redisstream.DefaultBreakerTimeout, "duration of the open state of the circuit breaker of the redis publisher")
	flag.IntVar(&cfg.UsageRedisInitRetries, "usage-redis-init-retries", redisstream.DefaultInitRetries, "attempts to reach redis when the redis publisher is initialized")
	flag.StringVar(&cfg.UsageSQLitePath, "usage-sqlite-path", "", "database file of the sqlite publisher")
	flag.IntVar(&cfg.UsageSQLiteBatchSize, "usage-sqlite-batch-size", sqlitestore.DefaultBatchSize, "number of usage events written in one transaction by the sqlite publisher")
	flag.DurationVar(&cfg.UsageSQLiteFlushInterval, "usage-sqlite-flush-interval", sqlitestore.DefaultFlushInterval, "maximum delay of writing the buffered usage events by the sqlite publisher")
	flag.IntVar(&cfg.UsageSQLiteBufferSize, "usage-sqlite-buffer-size", sqlitestore.DefaultBufferSize, "number of usage events buffered by the sqlite publisher, events are dropped when full")

	// logging, metrics:
	flag.StringVar(&cfg.MetricsListener, "metrics-listener", defaultMetricsListener, "network address used for exposing the /metrics endpoint. An empty value disables it.")
	flag.BoolVar(&cfg.EnableRuntimeMetrics, "runtime-metrics", true, "enables the Go runtime and process metrics")
	flag.StringVar(&cfg.ApplicationLog, "application-log", "", "output file for the application log. When not set, /dev/stderr is used")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.StringVar(&cfg.AccessLog, "access-log", "", "output file for the access log, When not set, /dev/stderr is used")
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "when this flag is set, no access log is printed")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	_, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}

	if c.Backend == "" {
		return errors.New("missing backend")
	}

	if c.APIContext != "" && !strings.HasPrefix(c.APIContext, "/") {
		return fmt.Errorf("invalid api-context: %q, must start with /", c.APIContext)
	}

	_, err = c.parseHistogramBuckets(c.UsageHistogramBucketsString, prometheus.DefBuckets)
	if err != nil {
		return err
	}

	_, err = c.parseHistogramBuckets(c.UsageResponseSizeBucketsString, promstats.DefaultResponseSizeBuckets)
	return err
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	configKeys := make(map[string]interface{})
	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		_ = yaml.Unmarshal(yamlFile, configKeys)

		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	c.checkDeprecated(configKeys,
		"usage-publisher-class",
	)

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	c.UsageHistogramBuckets, _ = c.parseHistogramBuckets(c.UsageHistogramBucketsString, prometheus.DefBuckets)
	c.UsageResponseSizeBuckets, _ = c.parseHistogramBuckets(c.UsageResponseSizeBucketsString, promstats.DefaultResponseSizeBuckets)

	c.parseEnv()
	return nil
}

func (c *Config) ToOptions() run.Options {
	return run.Options{
		Address:              c.Address,
		MetricsListener:      c.MetricsListener,
		EnableRuntimeMetrics: c.EnableRuntimeMetrics,
		ReadHeaderTimeout:    c.ReadHeaderTimeout,
		ShutdownTimeout:      c.ShutdownTimeout,

		Backend: c.Backend,
		API: proxy.API{
			Name:      c.APIName,
			Version:   c.APIVersion,
			Context:   c.APIContext,
			Publisher: c.APIPublisher,
		},
		GatewayHostName: c.GatewayHostName,

		EnableUsagePublisher: c.EnableUsagePublisher,
		UsagePublisher:       c.UsagePublisher,
		SuperTenantDomain:    c.SuperTenantDomain,
		Publishers: builtin.Options{
			Log: applog.Options{
				JSON: c.UsageLogJSONEnabled,
			},
			Prometheus: promstats.Options{
				Namespace:           c.UsagePrometheusNamespace,
				HistogramBuckets:    c.UsageHistogramBuckets,
				ResponseSizeBuckets: c.UsageResponseSizeBuckets,
			},
			Redis: redisstream.Options{
				Addr:            c.UsageRedisAddress,
				Password:        c.UsageRedisPassword,
				DB:              c.UsageRedisDB,
				Stream:          c.UsageRedisStream,
				MaxLen:          c.UsageRedisMaxLen,
				WriteTimeout:    c.UsageRedisWriteTimeout,
				BreakerFailures: c.UsageRedisBreakerFailures,
				BreakerTimeout:  c.UsageRedisBreakerTimeout,
				InitRetries:     c.UsageRedisInitRetries,
			},
			SQLite: sqlitestore.Options{
				Path:          c.UsageSQLitePath,
				BatchSize:     c.UsageSQLiteBatchSize,
				FlushInterval: c.UsageSQLiteFlushInterval,
				BufferSize:    c.UsageSQLiteBufferSize,
			},
		},
	}
}

func (c *Config) parseHistogramBuckets(bucketString string, defaultBuckets []float64) ([]float64, error) {
	if bucketString == "" {
		return defaultBuckets, nil
	}

	var result []float64
	thresholds := strings.Split(bucketString, ",")
	for _, v := range thresholds {
		bucket, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse histogram buckets: %w", err)
		}

		result = append(result, bucket)
	}

	sort.Float64s(result)
	return result, nil
}

func (c *Config) parseEnv() {
	// Set Redis password from environment variable if not set earlier (configuration file)
	if c.UsageRedisPassword == "" {
		c.UsageRedisPassword = os.Getenv(redisPasswordEnv)
	}
}

func (c *Config) checkDeprecated(configKeys map[string]interface{}, options ...string) {
	flagKeys := make(map[string]bool)
	c.Flags.Visit(func(f *flag.Flag) { flagKeys[f.Name] = true })

	for _, name := range options {
		_, ck := configKeys[name]
		_, fk := flagKeys[name]
		if ck || fk {
			f := c.Flags.Lookup(name)
			log.Warnf("%s: %s", f.Name, f.Usage)
		}
	}
}
