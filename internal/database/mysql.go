package database

import (
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		var err error
		if dsn, err = mysqlDSN(cfg); err != nil {
			return nil, err
		}
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

// mysqlDSN builds a go-sql-driver DSN from the discrete fields. parseTime is
// required for gorm to scan DATETIME columns into time.Time.
func mysqlDSN(cfg Config) (string, error) {
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql requires a username and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	cred := cfg.User
	if cfg.Password != "" {
		cred += ":" + cfg.Password
	}

	return fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cred, host, port, cfg.Name), nil
}
