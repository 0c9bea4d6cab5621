package sql

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
)

// JobRepositoryParams defines the dependencies for NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

// NewJobRepository migrates the schema and returns the SQL job repository.
func NewJobRepository(p JobRepositoryParams) (repository.JobRepository, error) {
	dbCfg, err := p.Config.DatabaseConfig()
	if err != nil {
		return nil, err
	}
	if err := Migrate(context.Background(), p.DB, dbCfg.Type); err != nil {
		return nil, repoError("failed to migrate job repository schema", err)
	}
	return NewSQLJobRepository(p.DB), nil
}

// Module provides the SQL JobRepository. It needs a *gorm.DB, e.g. from the gorm adaptor module.
var Module = fx.Options(
	fx.Provide(NewJobRepository),
)
