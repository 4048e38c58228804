package database

import (
	"fmt"

	"commetrics-server/pkg/config"

	"github.com/sirupsen/logrus"
)

// LoadMySQLConfig converts the database section of the application config
func LoadMySQLConfig(logger *logrus.Logger, cfg config.DatabaseConfig) MySQLConfig {
	mysqlConfig := MySQLConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Database:        cfg.Name,
		Username:        cfg.Username,
		Password:        cfg.Password,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		TLS:             cfg.TLS,
		Charset:         cfg.Charset,
		Loc:             cfg.Timezone,
		QueryTimeout:    cfg.QueryTimeout,
	}

	logger.WithFields(logrus.Fields{
		"host":              mysqlConfig.Host,
		"port":              mysqlConfig.Port,
		"database":          mysqlConfig.Database,
		"username":          mysqlConfig.Username,
		"max_open_conns":    mysqlConfig.MaxOpenConns,
		"max_idle_conns":    mysqlConfig.MaxIdleConns,
		"conn_max_lifetime": mysqlConfig.ConnMaxLifetime,
		"conn_max_idle":     mysqlConfig.ConnMaxIdleTime,
		"tls":               mysqlConfig.TLS,
		"charset":           mysqlConfig.Charset,
	}).Info("MySQL configuration loaded")

	return mysqlConfig
}

// ValidateConfig validates the MySQL configuration
func ValidateConfig(config MySQLConfig) error {
	if config.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", config.Port)
	}

	if config.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if config.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive: %d", config.MaxOpenConns)
	}

	if config.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative: %d", config.MaxIdleConns)
	}

	if config.MaxIdleConns > config.MaxOpenConns {
		return fmt.Errorf("max idle connections (%d) cannot exceed max open connections (%d)",
			config.MaxIdleConns, config.MaxOpenConns)
	}

	if config.ConnMaxLifetime <= 0 {
		return fmt.Errorf("connection max lifetime must be positive: %v", config.ConnMaxLifetime)
	}

	if config.Charset == "" {
		return fmt.Errorf("database charset is required")
	}

	return nil
}
