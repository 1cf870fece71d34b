package database

import (
	"context"
	"database/sql"
)

// schema holds the DDL for the tables this service owns.  The storage
// layer enforces the two uniqueness constraints the service relies on:
// one (user_id, email) pair per user and globally unique confirmation
// keys.  Statements are idempotent so EnsureSchema can run on every
// startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email      VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS email_addresses (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id          BIGINT UNSIGNED NOT NULL,
		email            VARCHAR(255) NOT NULL,
		confirmation_key VARCHAR(40) NOT NULL,
		set_at           DATETIME NOT NULL,
		confirmed_at     DATETIME NULL,
		created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_email_addresses_user_email (user_id, email),
		UNIQUE KEY uq_email_addresses_key (confirmation_key),
		CONSTRAINT fk_email_addresses_user FOREIGN KEY (user_id)
			REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the service's tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
