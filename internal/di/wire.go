//go:build wireinject
// +build wireinject

package di

import (
	"Aurelius/internal/usecase"
	"Aurelius/pkg/config"
	"Aurelius/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideMetricsPort,
		ProvideMarketDates,

		// Infrastructure clients
		ProvideCache,
		ProvideLimiter,
		ProvideKafkaProducer,

		// Repositories
		ProvideMarketDataSource,
		ProvideStore,
		ProvideResultSink,

		// Use cases
		usecase.NewProgress,
		usecase.NewResultBook,
		usecase.NewAuditor,
		ProvideRegistry,
		ProvideIngestor,
		ProvideBacktester,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
