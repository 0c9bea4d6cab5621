// Package postgres registers the PostgreSQL dialector with the gorm adaptor.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
)

func init() {
	gormadaptor.RegisterDialector("postgres", NewDialector)
}

// NewDialector builds a PostgreSQL dialector from cfg.
func NewDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	return postgres.Open(DSN(cfg)), nil
}

// DSN returns a key/value connection string.
func DSN(c config.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}
