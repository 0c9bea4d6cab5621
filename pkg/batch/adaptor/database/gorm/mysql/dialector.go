// Package mysql registers the MySQL dialector with the gorm adaptor.
package mysql

import (
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
)

func init() {
	gormadaptor.RegisterDialector("mysql", NewDialector)
}

// NewDialector builds a MySQL dialector from cfg.
func NewDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	return mysql.Open(DSN(cfg)), nil
}

// DSN formats cfg for the MySQL driver with utf8mb4, parsed times and the local time zone.
func DSN(c config.DatabaseConfig) string {
	dc := gomysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Loc = time.Local
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}
