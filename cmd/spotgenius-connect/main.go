package main

import (
	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/peers"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/features"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/logger"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/migration"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/metrics"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/tracing"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/payment"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	providerrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/repository"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/scheduler"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/seed"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/server"
	sessionrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/session/repository"
	taskrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/task/repository"
	violationrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/repository"
	"github.com/sharmadiveshwins/spotgenius-connect/pkg/db"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.EnsureVocabulary(conn)
		}),

		fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) error {
			_, err := tracing.NewProvider(lc, tracing.Config{
				Enabled:          cfg.Tracing.Enabled,
				ServiceName:      "spotgenius-connect",
				ServiceVersion:   version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.Tracing.Endpoint,
				ExporterProtocol: cfg.Tracing.Protocol,
				SamplingRatio:    cfg.Tracing.SamplingRatio,
			}, log)
			return err
		}),
		fx.Provide(func(cfg config.Config) (*metrics.HTTPMetrics, error) {
			return metrics.NewHTTPMetrics(metrics.Config{
				ServiceName: "spotgenius-connect",
				Environment: cfg.Environment,
			}, otel.GetMeterProvider())
		}),

		// Persistence layer.
		fx.Provide(
			providerrepo.Provide,
			sessionrepo.Provide,
			taskrepo.Provide,
			violationrepo.Provide,
		),

		// Outbound clients and the provider request engine.
		fx.Provide(
			sgadmin.New,
			func(cfg config.Config, log *zap.Logger) *peers.RetryPool {
				return peers.NewRetryPool(cfg.Peers.RetryWorkers, log)
			},
			peers.New,
			engine.New,
		),

		payment.Module,
		dispatcher.Module,
		features.Module,
		scheduler.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterAPIRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
