package config

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxConfig renders the pool configuration for the local mirror
// database. The process is a short-lived CLI run, not a resident
// service, so the pool stays small and pgx's default health checking
// is left alone.
func (c *DatabaseConfig) PgxConfig() (*pgxpool.Config, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	cfg.MaxConns = int32(c.MaxOpenConns)
	cfg.MinConns = int32(c.MaxIdleConns)
	cfg.MaxConnLifetime = c.ConnMaxLifetime
	cfg.MaxConnIdleTime = c.ConnMaxIdleTime

	return cfg, nil
}
