package di

import (
	"fmt"

	drepo "Aurelius/internal/domain/repository"
	internalrepo "Aurelius/internal/repository"
	"Aurelius/internal/service/polygon"
	"Aurelius/internal/service/ratelimit"
	"Aurelius/internal/services/backtest"
	"Aurelius/internal/usecase"
	"Aurelius/pkg/cache"
	pkgch "Aurelius/pkg/clickhouse"
	"Aurelius/pkg/config"
	pkgkafka "Aurelius/pkg/kafka"
	applogger "Aurelius/pkg/logger"
	"Aurelius/pkg/metrics"
	"Aurelius/pkg/server"
	"Aurelius/pkg/util"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		EchoStdout: cfg.Log.EchoStdout,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideMetricsPort exposes the recorder through the domain port.
func ProvideMetricsPort(r *metrics.Recorder) drepo.Metrics {
	return r
}

// ProvideCache creates the provider response cache. Returns nil for backend none.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	redisOpts := func() []cache.RedisOption {
		r := cfg.Cache.Redis
		return []cache.RedisOption{
			cache.WithRedisHost(r.Host),
			cache.WithRedisPort(r.Port),
			cache.WithRedisPassword(r.Password),
			cache.WithRedisDB(r.DB),
			cache.WithRedisPrefix(r.Prefix),
		}
	}

	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)), nil
	case "redis":
		rc, err := cache.NewRedisCache(redisOpts()...)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return rc, nil
	case "layered":
		rc, err := cache.NewRedisCache(redisOpts()...)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize)), nil
	default:
		return nil, nil
	}
}

// ProvideLimiter creates the process-wide provider rate gate.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Provider.MinInterval)
}

// ProvideMarketDataSource creates the Polygon client behind the rate gate.
func ProvideMarketDataSource(
	cfg *config.Config,
	gate *ratelimit.Limiter,
	respCache cache.Service,
	m drepo.Metrics,
	l *applogger.Logger,
) drepo.MarketDataSource {
	opts := []polygon.Option{
		polygon.WithTimeout(cfg.Provider.RequestTimeout),
		polygon.WithLimit(cfg.Provider.Limit),
		polygon.WithMetrics(m),
		polygon.WithLogger(l),
	}
	if cfg.Provider.Adjusted != nil {
		opts = append(opts, polygon.WithAdjusted(*cfg.Provider.Adjusted))
	}
	if respCache != nil {
		opts = append(opts, polygon.WithCache(respCache, cfg.Cache.TTL))
	}
	return polygon.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, gate, opts...)
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	ch := cfg.Storage.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideStore creates the configured Schema Store backend.
func ProvideStore(cfg *config.Config, l *applogger.Logger) (drepo.Store, error) {
	switch cfg.Storage.Backend {
	case "clickhouse":
		client, err := ProvideClickHouseClient(cfg)
		if err != nil {
			return nil, err
		}
		return internalrepo.NewClickHouseStore(client, l), nil
	default:
		return internalrepo.NewSQLiteStore(cfg.Storage.SQLite.Dir,
			internalrepo.WithSQLiteLogger(l),
			internalrepo.WithSQLiteBusyTimeout(cfg.Storage.SQLite.BusyTimeout),
		), nil
	}
}

// ProvideKafkaProducer creates a Kafka producer, or nil when kafka export is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	k := cfg.Export.Kafka
	if !k.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideResultSink fans results out to files and, when enabled, Kafka.
func ProvideResultSink(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) (drepo.ResultSink, error) {
	files, err := internalrepo.NewFileSink(cfg.Export.Dir, cfg.Export.Format, l)
	if err != nil {
		return nil, err
	}
	if producer == nil {
		return files, nil
	}
	return internalrepo.MultiSink{files, internalrepo.NewKafkaSink(producer, cfg.Export.Kafka.Topic)}, nil
}

// ProvideMarketDates loads the optional market calendar.
func ProvideMarketDates(cfg *config.Config) (server.MarketDates, error) {
	if cfg.Calendar.File == "" {
		return nil, nil
	}
	dates, err := util.ReadCalendar(cfg.Calendar.File, cfg.Calendar.Column)
	if err != nil {
		return nil, err
	}
	return server.MarketDates(dates), nil
}

// ProvideRegistry creates the strategy registry with the valuation policy.
func ProvideRegistry(cfg *config.Config, dates server.MarketDates) (*backtest.Registry, error) {
	return backtest.NewRegistry(
		backtest.WithValuation(cfg.Backtest.Valuation),
		backtest.WithMarketDates(dates.Strings()),
	)
}

// ProvideIngestor creates the ingestion use case.
func ProvideIngestor(
	src drepo.MarketDataSource,
	store drepo.Store,
	m drepo.Metrics,
	progress *usecase.Progress,
	l *applogger.Logger,
) *usecase.Ingestor {
	return usecase.NewIngestor(src, store, m, progress, l)
}

// ProvideBacktester creates the backtest use case.
func ProvideBacktester(
	cfg *config.Config,
	store drepo.Store,
	registry *backtest.Registry,
	sink drepo.ResultSink,
	m drepo.Metrics,
	book *usecase.ResultBook,
	l *applogger.Logger,
) *usecase.Backtester {
	return usecase.NewBacktester(store, registry, sink, m, book, cfg.Backtest.Workers, l)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	store drepo.Store,
	sink drepo.ResultSink,
	respCache cache.Service,
	recorder *metrics.Recorder,
	ingestor *usecase.Ingestor,
	auditor *usecase.Auditor,
	backtester *usecase.Backtester,
	progress *usecase.Progress,
	dates server.MarketDates,
) *server.App {
	return server.New(cfg, l, store, sink, respCache, recorder, ingestor, auditor, backtester, progress, dates)
}
