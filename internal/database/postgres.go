package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		var err error
		if dsn, err = postgresDSN(cfg); err != nil {
			return nil, err
		}
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// postgresDSN builds a keyword/value DSN from the discrete fields. sslmode is
// pinned to disable for same-host deployments; TLS setups supply database.dsn
// directly.
func postgresDSN(cfg Config) (string, error) {
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres requires a username and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d user=%s dbname=%s sslmode=disable", host, port, cfg.User, cfg.Name)
	if cfg.Password != "" {
		fmt.Fprintf(&b, " password=%s", cfg.Password)
	}
	return b.String(), nil
}
