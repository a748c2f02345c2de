package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know about
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds database connection configuration
type Config struct {
	Driver string

	// SQLite
	Path         string
	BusyTimeout  time.Duration
	ResetOnStart bool

	// PostgreSQL
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Client represents a database client
type Client struct {
	db     *sqlx.DB
	config *Config
	logger *slog.Logger
}

// NewClient creates a new database client for the configured driver
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	driver, dsn, err := dataSource(config)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to database",
		slog.String("driver", driver),
		slog.String("target", describeTarget(config)),
	)

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		logger.Error("Failed to connect to database",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database",
			slog.Any("error", err),
		)
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &Client{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("Successfully connected to database",
		slog.String("driver", driver),
		slog.Int("max_open_conns", config.MaxOpenConns),
	)

	return client, nil
}

// dataSource builds the driver name and DSN. SQLite pragmas are passed
// through the DSN so that every pooled connection gets them.
func dataSource(config *Config) (string, string, error) {
	switch config.Driver {
	case DriverSQLite, "":
		if config.Path == "" {
			return "", "", fmt.Errorf("sqlite path is required")
		}
		if config.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
				return "", "", fmt.Errorf("failed to create database directory: %w", err)
			}
			if config.ResetOnStart {
				if err := os.Remove(config.Path); err != nil && !os.IsNotExist(err) {
					return "", "", fmt.Errorf("failed to reset database: %w", err)
				}
			}
		}

		busy := config.BusyTimeout
		if busy <= 0 {
			busy = 10 * time.Second
		}

		q := url.Values{}
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
		q.Add("_pragma", "foreign_keys(ON)")

		return DriverSQLite, "file:" + config.Path + "?" + q.Encode(), nil

	case DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host,
			config.Port,
			config.User,
			config.Password,
			config.Database,
			config.SSLMode,
		)
		return DriverPostgres, dsn, nil

	default:
		return "", "", fmt.Errorf("unsupported database driver: %q", config.Driver)
	}
}

func describeTarget(config *Config) string {
	if config.Driver == DriverPostgres {
		return fmt.Sprintf("%s:%d/%s", config.Host, config.Port, config.Database)
	}
	return config.Path
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Driver returns the normalized driver name
func (c *Client) Driver() string {
	if c.config.Driver == "" {
		return DriverSQLite
	}
	return c.config.Driver
}

// Close closes the database connection
func (c *Client) Close() error {
	c.logger.Info("Closing database connection")

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("Database connection closed successfully")
	return nil
}

// Ping checks the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Stats returns database statistics
func (c *Client) Stats() string {
	stats := c.db.Stats()
	return fmt.Sprintf(
		"MaxOpenConns: %d, OpenConns: %d, InUse: %d, Idle: %d, WaitCount: %d, WaitDuration: %s",
		stats.MaxOpenConnections,
		stats.OpenConnections,
		stats.InUse,
		stats.Idle,
		stats.WaitCount,
		stats.WaitDuration,
	)
}

// HealthCheck performs a health check on the database
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := c.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database query health check failed: %w", err)
	}

	return nil
}

// IsBusy reports whether err is a transient SQLite lock error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
