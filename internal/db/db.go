// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/config"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	logrus.WithFields(logrus.Fields{
		"host": cfg.Host,
		"db":   cfg.DBName,
		"user": cfg.User,
	}).Info("connecting to database")

	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logrus.Info("connected to database")
	return conn, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		email VARCHAR(254) UNIQUE NOT NULL,
		username VARCHAR(150) NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS clients (
		id SERIAL PRIMARY KEY,
		full_name VARCHAR(150) NOT NULL,
		email VARCHAR(150) NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id SERIAL PRIMARY KEY,
		title VARCHAR(100) NOT NULL,
		text TEXT NOT NULL,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS mailings (
		id SERIAL PRIMARY KEY,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		periodicity VARCHAR(16) NOT NULL CHECK (periodicity IN ('daily', 'weekly', 'monthly')),
		status VARCHAR(16) NOT NULL DEFAULT 'created' CHECK (status IN ('created', 'started', 'completed')),
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		message_id INTEGER REFERENCES messages(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS mailing_clients (
		mailing_id INTEGER NOT NULL REFERENCES mailings(id) ON DELETE CASCADE,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		PRIMARY KEY (mailing_id, client_id)
	)`,

	`CREATE TABLE IF NOT EXISTS delivery_logs (
		id SERIAL PRIMARY KEY,
		time TIMESTAMPTZ NOT NULL,
		status BOOLEAN NOT NULL,
		server_response TEXT NOT NULL DEFAULT '',
		recipient VARCHAR(150) NOT NULL DEFAULT '',
		mailing_id INTEGER NOT NULL REFERENCES mailings(id) ON DELETE CASCADE,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_mailings_dispatch ON mailings(periodicity, status, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_mailings_owner ON mailings(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_logs_owner_time ON delivery_logs(owner_id, time DESC)`,
}

// RunMigrations creates the schema. Every statement is idempotent.
func RunMigrations(conn *sql.DB) error {
	for i, m := range migrations {
		if _, err := conn.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	logrus.WithField("count", len(migrations)).Info("database migrations applied")
	return nil
}
