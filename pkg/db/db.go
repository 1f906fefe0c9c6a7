// Package db opens the gorm connection for the service.
package db

import (
	"fmt"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open builds a *gorm.DB from the configured driver and DSN.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres", "":
		dialector = gormpostgres.Open(cfg.Database.DSN)
	case "sqlite":
		dialector = gormsqlite.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Named("db").Info("database connected", zap.String("driver", cfg.Database.Driver))
	return conn, nil
}

// Module provides the database connection to the fx graph.
var Module = fx.Module("db",
	fx.Provide(Open),
)
