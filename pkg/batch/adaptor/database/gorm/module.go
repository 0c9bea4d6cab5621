package gorm

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// NewDBProvider opens the configured database and closes it when the application stops.
// Import a driver subpackage (sqlite, mysql, postgres) to register its dialector.
func NewDBProvider(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	dbCfg, err := cfg.DatabaseConfig()
	if err != nil {
		return nil, err
	}
	db, err := Open(dbCfg, cfg.Stepguard.System.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing %s connection.", dbCfg.Type)
			return Close(db)
		},
	})
	return db, nil
}

// Module provides *gorm.DB and a GORM-backed tx.TransactionManager.
var Module = fx.Options(
	fx.Provide(
		NewDBProvider,
		fx.Annotate(NewGormTransactionManager, fx.As(new(tx.TransactionManager))),
	),
)
