//go:build wireinject
// +build wireinject

package di

import (
	"SignalBoard/pkg/config"
	"SignalBoard/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideTokenSource,

		// Infrastructure clients
		ProvideBytesCache,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideRedisQueue,
		ProvideClosers,

		// Collaborators and repositories
		ProvideBotClient,
		ProvideJournalSink,

		// Use cases
		ProvideJournal,
		ProvideBoard,
		ProvideChannels,
		ProvideChartSession,

		// HTTP
		ProvideDashboardHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
