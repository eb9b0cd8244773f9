package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/handler/api"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/scheduler"
	trainmetrics "FinCast/internal/service/metrics"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/lstm"
	"FinCast/internal/services/marketdata"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/queue"
	"FinCast/pkg/tracing"
)

// ProvideLogger builds the root logger from the logger section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("service", "fincast")), nil
}

// ProvideTracing installs the global tracer provider.
func ProvideTracing(cfg *config.Config) (tracing.ShutdownFunc, error) {
	return tracing.Setup(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
}

// ProvideMetrics creates the Prometheus recorder and registers the training collectors.
func ProvideMetrics() domrepo.Metrics {
	trainmetrics.Register()
	return metrics.New()
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend != "memory" || cfg.Queue.Backend == "redis"
}

// ProvideRedisClient dials Redis when a cache or queue backend needs it, otherwise returns nil.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !needsRedis(cfg) {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideCache selects the cache backend.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, func(), error) {
	var svc cache.Service
	switch cfg.Cache.Backend {
	case "memory":
		svc = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		)
	case "redis":
		svc = cache.NewRedisCache(client, cache.WithRedisPrefix(cfg.Cache.Prefix))
	case "layered":
		svc = cache.NewLayeredCache(
			cache.NewRedisCache(client, cache.WithRedisPrefix(cfg.Cache.Prefix)),
			time.Minute,
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		)
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	return svc, func() { _ = svc.Close() }, nil
}

// ProvideBarStore opens the ClickHouse bar store and creates its schema. It is nil when ClickHouse is disabled.
func ProvideBarStore(cfg *config.Config, log *applogger.Logger) (*internalrepo.CHBarStore, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	store := internalrepo.NewCHBarStore(client, log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// ProvidePriceProvider selects where daily bars come from. Remote providers are cached.
func ProvidePriceProvider(cfg *config.Config, bars *internalrepo.CHBarStore, c cache.Service, log *applogger.Logger) (domrepo.PriceProvider, func(), error) {
	md := cfg.MarketData
	switch md.Provider {
	case "alphavantage":
		client := xhttp.NewClient(xhttp.WithTimeout(md.AlphaVantage.Timeout), xhttp.WithRetries(2, time.Second))
		p := marketdata.NewAlphaVantage(md.AlphaVantage.APIKey, md.AlphaVantage.BaseURL, client)
		return internalrepo.NewCachedProvider(p, c, md.CacheTTL, log), func() {}, nil
	case "yahoo":
		client := xhttp.NewClient(xhttp.WithTimeout(md.Yahoo.Timeout), xhttp.WithRetries(2, time.Second))
		p := marketdata.NewYahoo(md.Yahoo.BaseURL, client)
		return internalrepo.NewCachedProvider(p, c, md.CacheTTL, log), func() {}, nil
	case "clickhouse":
		if bars == nil {
			return nil, nil, fmt.Errorf("clickhouse provider needs clickhouse.enabled")
		}
		return bars, func() {}, nil
	case "influxdb":
		store := internalrepo.NewInfluxBarStore(internalrepo.InfluxConfig{
			URL:         cfg.InfluxDB.URL,
			Token:       cfg.InfluxDB.Token,
			Org:         cfg.InfluxDB.Org,
			Bucket:      cfg.InfluxDB.Bucket,
			Measurement: cfg.InfluxDB.Measurement,
		}, log)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Health(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("influxdb: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown market data provider %q", md.Provider)
	}
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideForecastPublisher publishes finished forecasts to Kafka when a producer exists.
func ProvideForecastPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.ForecastPublisher {
	if producer == nil {
		return internalrepo.NopForecastPublisher{}
	}
	return internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.Topics.Forecasts)
}

// ProvideKafkaConsumer creates the bar ingestion consumer, or nil when it is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers, cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBarsHandler stores bars consumed from Kafka. It is nil without a bar store.
func ProvideBarsHandler(cfg *config.Config, bars *internalrepo.CHBarStore, m domrepo.Metrics) *usecase.KafkaBarsHandler {
	if bars == nil {
		return nil
	}
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topics.Bars, bars, m)
}

// LSTMConfig copies the hyperparameters out of the forecast section.
func LSTMConfig(fc config.ForecastConfig) lstm.Config {
	return lstm.Config{
		Lookback:      fc.Lookback,
		Horizon:       fc.Horizon,
		Epochs:        fc.Epochs,
		BatchSize:     fc.BatchSize,
		LearningRate:  fc.LearningRate,
		HiddenSize:    fc.HiddenSize,
		TrainFraction: fc.TrainFraction,
		Seed:          fc.Seed,
		Workers:       fc.Workers,
	}
}

func ProvideForecaster(cfg *config.Config, log *applogger.Logger) (domsvc.PriceForecaster, error) {
	svc, err := lstm.NewService(LSTMConfig(cfg.Forecast), log)
	if err != nil {
		return nil, fmt.Errorf("forecaster: %w", err)
	}
	return svc, nil
}

func ProvideForecastUseCase(
	cfg *config.Config,
	provider domrepo.PriceProvider,
	forecaster domsvc.PriceForecaster,
	publisher domrepo.ForecastPublisher,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.ForecastUseCase {
	return usecase.NewForecastUseCase(provider, forecaster, publisher, m, log,
		usecase.WithHistoryDays(cfg.Forecast.HistoryDays),
		usecase.WithRunTimeout(cfg.Forecast.Timeout),
	)
}

// ProvideQueue selects the job queue backend.
func ProvideQueue(cfg *config.Config, client *redis.Client, log *applogger.Logger) queue.Queue {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	if cfg.Queue.Backend == "redis" {
		return queue.NewRedisQueue(log, qc, client, queue.WithKeyPrefix(cfg.Cache.Prefix+":queue"))
	}
	return queue.NewMemoryQueue(log, qc)
}

// ProvideJobStore keeps jobs in the cache. A layered cache would serve stale
// jobs from its local tier, so jobs skip it and go straight to Redis.
func ProvideJobStore(cfg *config.Config, client *redis.Client, c cache.Service) domrepo.JobStore {
	if cfg.Cache.Backend == "layered" {
		c = cache.NewRedisCache(client, cache.WithRedisPrefix(cfg.Cache.Prefix))
	}
	return internalrepo.NewCacheJobStore(c, cfg.Queue.JobTTL)
}

// ProvideProgressBus uses Redis Pub/Sub when jobs may run in another process.
func ProvideProgressBus(cfg *config.Config, client *redis.Client, log *applogger.Logger) (domrepo.ProgressBus, func()) {
	var bus domrepo.ProgressBus
	if cfg.Queue.Backend == "redis" {
		bus = internalrepo.NewRedisProgressBus(client, cfg.Cache.Prefix, log)
	} else {
		bus = internalrepo.NewMemoryProgressBus()
	}
	return bus, func() { _ = bus.Close() }
}

func ProvideForecastJobs(
	uc *usecase.ForecastUseCase,
	store domrepo.JobStore,
	bus domrepo.ProgressBus,
	q queue.Queue,
	log *applogger.Logger,
) *usecase.ForecastJobs {
	return usecase.NewForecastJobs(uc, store, bus, q, log)
}

func ProvideMarketUseCase(cfg *config.Config, provider domrepo.PriceProvider) *usecase.MarketUseCase {
	return usecase.NewMarketUseCase(provider, cfg.Symbols)
}

// ProvideLedger opens the SQLite portfolio ledger.
func ProvideLedger(cfg *config.Config, log *applogger.Logger) (domrepo.Ledger, func(), error) {
	ledger, err := internalrepo.NewSQLiteLedger(cfg.Ledger.Path, log)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: %w", err)
	}
	return ledger, func() { _ = ledger.Close() }, nil
}

func ProvidePortfolioUseCase(ledger domrepo.Ledger) *usecase.PortfolioUseCase {
	return usecase.NewPortfolioUseCase(ledger)
}

// ProvideLimiter returns nil when rate limiting is disabled.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
}

// ProvideRouter groups the API handlers.
func ProvideRouter(
	log *applogger.Logger,
	forecasts *usecase.ForecastUseCase,
	jobs *usecase.ForecastJobs,
	market *usecase.MarketUseCase,
	portfolio *usecase.PortfolioUseCase,
	bus domrepo.ProgressBus,
	limiter *ratelimit.Limiter,
) *api.Router {
	return api.NewRouter(
		api.NewForecastHandler(log, forecasts, jobs),
		api.NewMarketHandler(log, market),
		api.NewPortfolioHandler(log, portfolio),
		api.NewProgressHandler(log, jobs, bus),
		limiter,
	)
}

// ProvideHTTPServer builds the echo server from the server and metrics config.
func ProvideHTTPServer(cfg *config.Config, router *api.Router, log *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(router, log,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideScheduler returns nil when scheduled forecasts are disabled.
func ProvideScheduler(cfg *config.Config, jobs *usecase.ForecastJobs, c cache.Service, log *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	s, err := scheduler.New(cfg.Scheduler.Spec, cfg.Scheduler.Watchlist, jobs, c, log)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return s, nil
}
