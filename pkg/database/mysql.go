package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// MySQLConfig holds MySQL connection configuration
type MySQLConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	TLS             string
	Charset         string
	Loc             string
	DialTimeout     time.Duration
	QueryTimeout    time.Duration
}

// MySQLDatabase represents a MySQL database connection
type MySQLDatabase struct {
	db           *sqlx.DB
	queryTimeout time.Duration
	logger       *logrus.Logger
}

// driverConfig translates MySQLConfig into the driver's own configuration
func driverConfig(config MySQLConfig) (*mysql.Config, error) {
	loc, err := time.LoadLocation(config.Loc)
	if err != nil {
		return nil, fmt.Errorf("invalid database timezone %q: %w", config.Loc, err)
	}

	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	cfg.DBName = config.Database
	cfg.ParseTime = true
	cfg.Loc = loc
	cfg.Params = map[string]string{"charset": config.Charset}
	if config.TLS != "" {
		cfg.TLSConfig = config.TLS
	}
	if config.DialTimeout > 0 {
		cfg.Timeout = config.DialTimeout
	}
	return cfg, nil
}

// NewMySQLDatabase opens the pool and verifies the connection
func NewMySQLDatabase(ctx context.Context, config MySQLConfig, logger *logrus.Logger) (*MySQLDatabase, error) {
	cfg, err := driverConfig(config)
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connector: %w", err)
	}

	db := sqlx.NewDb(sql.OpenDB(connector), "mysql")

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
	}).Info("Connected to MySQL database")

	return NewFromDB(db, config.QueryTimeout, logger), nil
}

// NewFromDB wraps an existing handle; used with sqlmock in tests
func NewFromDB(db *sqlx.DB, queryTimeout time.Duration, logger *logrus.Logger) *MySQLDatabase {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &MySQLDatabase{
		db:           db,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// Close closes the database connection
func (m *MySQLDatabase) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Health checks database health
func (m *MySQLDatabase) Health(ctx context.Context) error {
	ctx, cancel := m.getContext(ctx)
	defer cancel()

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// getContext bounds a query by the configured timeout
func (m *MySQLDatabase) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, m.queryTimeout)
}
