// Package sqlstore keeps the usage log in a SQL table. Postgres (lib/pq),
// MySQL (go-sql-driver/mysql) and SQLite (go-sqlite3) are supported; each
// append is a single-row INSERT, so concurrent writers never lose entries.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported driver names, as registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
)

// PoolConfig holds connection pool settings
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps the sql.DB connection pool with its dialect
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// Open opens a connection pool for driver and verifies it with a ping
func Open(driver, dsn string, pool PoolConfig, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn, err := prepareDSN(driver, dsn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("usage database connection established", zap.String("driver", driver))

	return NewDB(sqlDB, driver, logger)
}

// NewDB wraps an existing pool. Used by Open and by tests with sqlmock.
func NewDB(sqlDB *sql.DB, driver string, logger *zap.Logger) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{DB: sqlDB, driver: driver, logger: logger}, nil
}

// prepareDSN validates driver-specific DSNs before opening
func prepareDSN(driver, dsn string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("%s DSN cannot be empty", driver)
	}

	switch driver {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid mysql DSN: %w", err)
		}
		return cfg.FormatDSN(), nil
	case DriverSQLite:
		path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") && path != ":memory:" {
			dsn = "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000"
		}
		return dsn, nil
	case DriverPostgres:
		return dsn, nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Driver returns the dialect name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing usage database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// placeholder returns the n-th (1-based) bind parameter for the dialect
func (db *DB) placeholder(n int) string {
	if db.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// placeholders returns a comma-separated list of count bind parameters
func (db *DB) placeholders(count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = db.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// InitSchema creates the usage_log table and its indexes.
// Timestamps are stored as RFC 3339 text so the writer's UTC offset survives.
func (db *DB) InitSchema(ctx context.Context) error {
	var statements []string

	switch db.driver {
	case DriverPostgres:
		statements = []string{
			`CREATE TABLE IF NOT EXISTS usage_log (
				id BIGSERIAL PRIMARY KEY,
				timestamp VARCHAR(40) NOT NULL,
				agent VARCHAR(255) NOT NULL,
				provider VARCHAR(100) NOT NULL,
				tokens_in INTEGER NOT NULL,
				tokens_out INTEGER NOT NULL,
				total_tokens INTEGER NOT NULL,
				cost_usd DOUBLE PRECISION NOT NULL,
				status VARCHAR(20) NOT NULL,
				metadata TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_log_agent ON usage_log(agent)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_log_timestamp ON usage_log(timestamp)`,
		}
	case DriverMySQL:
		statements = []string{
			`CREATE TABLE IF NOT EXISTS usage_log (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				timestamp VARCHAR(40) NOT NULL,
				agent VARCHAR(255) NOT NULL,
				provider VARCHAR(100) NOT NULL,
				tokens_in INT NOT NULL,
				tokens_out INT NOT NULL,
				total_tokens INT NOT NULL,
				cost_usd DOUBLE NOT NULL,
				status VARCHAR(20) NOT NULL,
				metadata TEXT,
				INDEX idx_usage_log_agent (agent),
				INDEX idx_usage_log_timestamp (timestamp)
			)`,
		}
	case DriverSQLite:
		statements = []string{
			`CREATE TABLE IF NOT EXISTS usage_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp TEXT NOT NULL,
				agent TEXT NOT NULL,
				provider TEXT NOT NULL,
				tokens_in INTEGER NOT NULL,
				tokens_out INTEGER NOT NULL,
				total_tokens INTEGER NOT NULL,
				cost_usd REAL NOT NULL,
				status TEXT NOT NULL,
				metadata TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_log_agent ON usage_log(agent)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_log_timestamp ON usage_log(timestamp)`,
		}
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize usage schema: %w", err)
		}
	}

	db.logger.Info("usage schema initialized", zap.String("driver", db.driver))
	return nil
}
