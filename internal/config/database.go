package config

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rongwang/library-rental/internal/utils"
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config, logger *utils.Logger) (*sqlx.DB, error) {
	driver, err := driverName(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(cfg.Database.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	// Create tables if they don't exist
	if err := createTables(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func driverName(driver string) (string, error) {
	switch driver {
	case "", "postgres":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		username VARCHAR(150) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id VARCHAR(36) PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		balance NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(100) UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id VARCHAR(36) PRIMARY KEY,
		title VARCHAR(100) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image VARCHAR(255) NOT NULL DEFAULT '',
		borrowing_price NUMERIC(8, 2) NOT NULL CHECK (borrowing_price >= 0),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS book_categories (
		book_id VARCHAR(36) NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		category_id VARCHAR(36) NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		PRIMARY KEY (book_id, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS borrowed_books (
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		book_id VARCHAR(36) NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, book_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		book_id VARCHAR(36) NOT NULL REFERENCES books(id),
		amount NUMERIC(8, 2) NOT NULL,
		balance_after NUMERIC(12, 2) NOT NULL,
		borrow_date TIMESTAMP NOT NULL,
		return_date TIMESTAMP NULL,
		CHECK (return_date IS NULL OR return_date >= borrow_date)
	)`,
	`CREATE TABLE IF NOT EXISTS deposits (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
		balance_after NUMERIC(12, 2) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id VARCHAR(36) PRIMARY KEY,
		book_id VARCHAR(36) NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		review TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id, borrow_date DESC)",
	"CREATE INDEX IF NOT EXISTS idx_transactions_open ON transactions(user_id, book_id) WHERE return_date IS NULL",
	"CREATE INDEX IF NOT EXISTS idx_deposits_user_id ON deposits(user_id, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_reviews_book_id ON reviews(book_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_book_categories_category ON book_categories(category_id)",
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB, logger *utils.Logger) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			// indexes are not critical
			logger.Warn("failed to create index", "statement", idx, "error", err)
		}
	}

	return nil
}
