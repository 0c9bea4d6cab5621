// Package sqlite registers the SQLite dialector with the gorm adaptor.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
)

func init() {
	gormadaptor.RegisterDialector("sqlite", NewDialector)
}

// NewDialector opens the SQLite file named by cfg.Database. ":memory:" is accepted.
func NewDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg.Database == "" {
		return nil, errors.New("sqlite database path cannot be empty")
	}
	return sqlite.Open(cfg.Database), nil
}
