//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	"FinCast/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup closes infrastructure clients in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideTracing,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideCache,
		ProvideBarStore,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideLedger,

		// Repositories
		ProvidePriceProvider,
		ProvideForecastPublisher,
		ProvideJobStore,
		ProvideProgressBus,
		ProvideQueue,

		// Use cases
		ProvideForecaster,
		ProvideForecastUseCase,
		ProvideForecastJobs,
		ProvideMarketUseCase,
		ProvidePortfolioUseCase,
		ProvideBarsHandler,
		ProvideScheduler,

		// HTTP
		ProvideLimiter,
		ProvideRouter,
		ProvideHTTPServer,

		// Application server
		wire.Struct(new(server.Components), "*"),
		server.New,
	)
	return nil, nil, nil
}

// InitializeForecast builds only what a one-off command line forecast needs.
func InitializeForecast(cfg *config.Config) (*usecase.ForecastUseCase, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisClient,
		ProvideCache,
		ProvideBarStore,
		ProvidePriceProvider,
		ProvideKafkaProducer,
		ProvideForecastPublisher,
		ProvideForecaster,
		ProvideForecastUseCase,
	)
	return nil, nil, nil
}
