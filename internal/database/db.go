package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Config carries the MySQL connection settings. MaxConns caps both the
// open and idle side of the pool; ConnMaxLifetime recycles connections
// so long-lived pools survive MySQL-side wait_timeout. Zero values fall
// back to defaults suited to this service's short point queries.
type Config struct {
	User, Pass      string
	Host, Port      string
	Name            string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// dsn builds the driver DSN. parseTime is required: set_at, confirmed_at
// and created_at are DATETIME columns scanned into time.Time and
// sql.NullTime, and without it the driver hands back []byte. loc=UTC
// keeps the parsed values in the zone the repositories write in.
func (c Config) dsn() string {
	auth := c.User
	if c.Pass != "" {
		auth = fmt.Sprintf("%s:%s", c.User, c.Pass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, c.Host, c.Port, c.Name)
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 25
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	return c
}

// Open connects to MySQL, applies the pool settings and verifies the
// connection with a bounded ping.
func Open(cfg Config) (*sql.DB, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}
