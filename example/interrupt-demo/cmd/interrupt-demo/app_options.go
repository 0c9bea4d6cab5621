package main

import (
	"context"

	"go.uber.org/fx"

	gormadaptor "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm"
	_ "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm/mysql"
	_ "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm/postgres"
	_ "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm/sqlite"
	usecase "github.com/tigerroll/stepguard/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/engine/step/synchronizer"
	inframetrics "github.com/tigerroll/stepguard/pkg/batch/infrastructure/metrics"
	inmemoryRepo "github.com/tigerroll/stepguard/pkg/batch/infrastructure/repository/inmemory"
	sqlRepo "github.com/tigerroll/stepguard/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/stepguard/pkg/batch/listener/logging"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"

	demostep "github.com/tigerroll/stepguard/example/interrupt-demo/internal/step"
)

// GetApplicationOptions builds the fx options of the demo.
// The configuration is loaded once up front to choose between the in-memory and SQL job repository.
func GetApplicationOptions(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) []fx.Option {
	cfg, err := config.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	var options []fx.Option
	options = append(options, fx.Supply(
		embeddedConfig,
		fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
	))
	options = append(options, logger.Module)
	options = append(options, config.Module)
	options = append(options, inframetrics.Module)
	options = append(options, synchronizer.Module)
	options = append(options, logging.Module)
	options = append(options, usecase.Module)

	if cfg.Stepguard.Infrastructure.JobRepository == config.JobRepositorySQL {
		logger.Infof("Using the SQL job repository.")
		options = append(options, gormadaptor.Module)
		options = append(options, sqlRepo.Module)
	} else {
		logger.Infof("Using the in-memory job repository.")
		options = append(options, inmemoryRepo.Module)
		options = append(options, fx.Provide(fx.Annotate(
			tx.NewResourcelessTransactionManager,
			fx.As(new(tx.TransactionManager)),
		)))
	}

	options = append(options, demostep.Module)
	options = append(options, fx.Invoke(registerMetricsEndpoint))
	options = append(options, fx.Invoke(fx.Annotate(startStepExecution, fx.ParamTags("", "", "", "", "", "", `name:"appCtx"`))))
	return options
}
