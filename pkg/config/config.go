package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"commetrics-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Messaging MessagingConfig `json:"messaging" yaml:"messaging"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Analysis  AnalysisConfig  `json:"analysis" yaml:"analysis"`
	Digest    DigestConfig    `json:"digest" yaml:"digest"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Watch CONFIG_FILE and re-apply reloadable settings on change
	HotReload bool `json:"hot_reload" yaml:"hot_reload" env:"CONFIG_HOT_RELOAD" default:"false"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	// HTTP port
	Port int `json:"port" yaml:"port" env:"HTTP_PORT" default:"8080"`

	// Whether the /metrics endpoint is exposed
	EnableMetrics bool `json:"enable_metrics" yaml:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`

	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level
	Level string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Log format (json or text)
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT" default:"json"`

	// Log output file (empty = stdout)
	OutputFile string `json:"output_file" yaml:"output_file" env:"LOG_OUTPUT_FILE"`
}

// DatabaseConfig holds the MySQL connection holding calls and transcripts
type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host" env:"DB_HOST" default:"localhost"`
	Port     int    `json:"port" yaml:"port" env:"DB_PORT" default:"3306"`
	Name     string `json:"name" yaml:"name" env:"DB_NAME" default:"callcenter"`
	Username string `json:"username" yaml:"username" env:"DB_USERNAME" default:"commetrics"`
	Password string `json:"-" yaml:"password" env:"DB_PASSWORD"`

	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" default:"5m"`

	// TLS mode passed to the driver ("false", "true", "skip-verify", "preferred")
	TLS      string `json:"tls" yaml:"tls" env:"DB_TLS" default:"false"`
	Charset  string `json:"charset" yaml:"charset" env:"DB_CHARSET" default:"utf8mb4"`
	Timezone string `json:"timezone" yaml:"timezone" env:"DB_TIMEZONE" default:"UTC"`

	// Upper bound for a single report query
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout" env:"DB_QUERY_TIMEOUT" default:"30s"`

	// Consecutive query failures before report requests fail fast (0 = no breaker)
	BreakerFailures int           `json:"breaker_failures" yaml:"breaker_failures" env:"DB_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `json:"breaker_timeout" yaml:"breaker_timeout" env:"DB_BREAKER_TIMEOUT" default:"30s"`
}

// CacheConfig holds the Redis report cache settings
type CacheConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled" env:"CACHE_ENABLED" default:"false"`
	Address   string        `json:"address" yaml:"address" env:"REDIS_ADDRESS" default:"localhost:6379"`
	Password  string        `json:"-" yaml:"password" env:"REDIS_PASSWORD"`
	Database  int           `json:"database" yaml:"database" env:"REDIS_DATABASE" default:"0"`
	TTL       time.Duration `json:"ttl" yaml:"ttl" env:"CACHE_TTL" default:"5m"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix" env:"CACHE_KEY_PREFIX" default:"commetrics:report:"`
}

// MessagingConfig holds the AMQP alert publisher settings
type MessagingConfig struct {
	// AMQP URL; alert publishing is disabled when empty
	AMQPUrl string `json:"-" yaml:"amqp_url" env:"AMQP_URL"`

	AlertQueue     string        `json:"alert_queue" yaml:"alert_queue" env:"AMQP_ALERT_QUEUE" default:"commetrics_alerts"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"AMQP_CONNECT_TIMEOUT" default:"10s"`
}

// Enabled reports whether an AMQP broker is configured
func (m MessagingConfig) Enabled() bool {
	return m.AMQPUrl != ""
}

// AuthConfig holds bearer token validation settings
type AuthConfig struct {
	// Whether authentication is enabled
	Enabled bool `json:"enabled" yaml:"enabled" env:"AUTH_ENABLED" default:"false"`

	// HMAC secret for HS256 tokens
	JWTSecret string `json:"-" yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`

	// Expected token issuer (empty = not checked)
	JWTIssuer string `json:"jwt_issuer" yaml:"jwt_issuer" env:"AUTH_JWT_ISSUER" default:"commetrics-server"`

	// Role that sees every department
	AdminRole string `json:"admin_role" yaml:"admin_role" env:"AUTH_ADMIN_ROLE" default:"admin"`
}

// AnalysisConfig controls the metrics engine and report defaults
type AnalysisConfig struct {
	// Worker limit for per-call analysis (0 = number of CPUs)
	Workers int `json:"workers" yaml:"workers" env:"ANALYSIS_WORKERS" default:"0"`

	DefaultPeriodDays int `json:"default_period_days" yaml:"default_period_days" env:"ANALYSIS_DEFAULT_PERIOD_DAYS" default:"30"`
	MaxPeriodDays     int `json:"max_period_days" yaml:"max_period_days" env:"ANALYSIS_MAX_PERIOD_DAYS" default:"365"`

	// Location used to resolve "today" for relative periods
	Timezone string `json:"timezone" yaml:"timezone" env:"ANALYSIS_TIMEZONE" default:"UTC"`
}

// Location returns the configured time zone, falling back to UTC
func (a AnalysisConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DigestConfig controls the scheduled severity digest
type DigestConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"DIGEST_ENABLED" default:"false"`

	// Cron expression with a leading seconds field
	Schedule string `json:"schedule" yaml:"schedule" env:"DIGEST_SCHEDULE" default:"0 0 8 * * MON-FRI"`

	PeriodDays  int           `json:"period_days" yaml:"period_days" env:"DIGEST_PERIOD_DAYS" default:"7"`
	MinSeverity string        `json:"min_severity" yaml:"min_severity" env:"DIGEST_MIN_SEVERITY" default:"critical"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" env:"DIGEST_TIMEOUT" default:"2m"`
}

// TracingConfig controls OpenTelemetry span export
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"TRACING_ENABLED" default:"false"`

	// OTLP gRPC collector address (host:port)
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"TRACING_ENDPOINT"`
	Insecure bool   `json:"insecure" yaml:"insecure" env:"TRACING_INSECURE" default:"true"`

	ServiceName string  `json:"service_name" yaml:"service_name" env:"TRACING_SERVICE_NAME" default:"commetrics-server"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" env:"TRACING_SAMPLE_RATIO" default:"1.0"`
}

// RateLimitConfig bounds report and subscription requests per client
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"RATE_LIMIT_ENABLED" default:"false"`

	// Sustained requests per second per client
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" env:"RATE_LIMIT_RPS" default:"5"`
	Burst             int     `json:"burst" yaml:"burst" env:"RATE_LIMIT_BURST" default:"20"`

	// Idle clients are forgotten after this long
	ClientTTL time.Duration `json:"client_ttl" yaml:"client_ttl" env:"RATE_LIMIT_CLIENT_TTL" default:"10m"`
}

// Default returns the configuration used before any file or environment overrides
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8080,
			EnableMetrics:   true,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            3306,
			Name:            "callcenter",
			Username:        "commetrics",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			TLS:             "false",
			Charset:         "utf8mb4",
			Timezone:        "UTC",
			QueryTimeout:    30 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			Address:   "localhost:6379",
			TTL:       5 * time.Minute,
			KeyPrefix: "commetrics:report:",
		},
		Messaging: MessagingConfig{
			AlertQueue:     "commetrics_alerts",
			ConnectTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWTIssuer: "commetrics-server",
			AdminRole: "admin",
		},
		Analysis: AnalysisConfig{
			DefaultPeriodDays: 30,
			MaxPeriodDays:     365,
			Timezone:          "UTC",
		},
		Digest: DigestConfig{
			Schedule:    "0 0 8 * * MON-FRI",
			PeriodDays:  7,
			MinSeverity: "critical",
			Timeout:     2 * time.Minute,
		},
		Tracing: TracingConfig{
			Insecure:    true,
			ServiceName: "commetrics-server",
			SampleRatio: 1.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
			ClientTTL:         10 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and the environment (including .env), in increasing precedence.
func Load(logger *logrus.Logger) (*Config, error) {
	loadDotEnv(logger)

	config := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(logger, path, config); err != nil {
			return nil, err
		}
	}

	loaders := []struct {
		name string
		load func() error
	}{
		{"HTTP", func() error { return loadHTTPConfig(logger, &config.HTTP) }},
		{"logging", func() error { return loadLoggingConfig(logger, &config.Logging) }},
		{"database", func() error { return loadDatabaseConfig(logger, &config.Database) }},
		{"cache", func() error { return loadCacheConfig(logger, &config.Cache) }},
		{"messaging", func() error { return loadMessagingConfig(logger, &config.Messaging) }},
		{"authentication", func() error { return loadAuthConfig(logger, &config.Auth) }},
		{"analysis", func() error { return loadAnalysisConfig(logger, &config.Analysis) }},
		{"digest", func() error { return loadDigestConfig(logger, &config.Digest) }},
		{"tracing", func() error { return loadTracingConfig(logger, &config.Tracing) }},
		{"rate limit", func() error { return loadRateLimitConfig(logger, &config.RateLimit) }},
	}

	for _, l := range loaders {
		if err := l.load(); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to load %s configuration", l.name))
		}
	}

	config.HotReload = getEnvBool("CONFIG_HOT_RELOAD", config.HotReload)

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// loadDotEnv tries the usual .env locations; variables already present in the
// environment are never overwritten.
func loadDotEnv(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		logger.WithField("path", absPath).Debug("Attempting to load .env file")

		if err := godotenv.Load(envFile); err == nil {
			loadedFrom = absPath
			break
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}
}

// loadFile overlays a YAML configuration file onto config
func loadFile(logger *logrus.Logger, path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to read config file: %s", path))
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.NewInvalidInput(fmt.Sprintf("failed to parse config file %s: %v", path, err),
			map[string]interface{}{"path": path})
	}

	logger.WithField("path", path).Info("Loaded configuration file")
	return nil
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	port := getEnvInt("HTTP_PORT", config.Port)
	if port < 1 || port > 65535 {
		logger.WithField("port", port).Warn("Invalid HTTP_PORT value, using default: 8080")
		port = 8080
	}
	config.Port = port

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", config.EnableMetrics)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", config.ReadTimeout)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", config.WriteTimeout)
	config.IdleTimeout = getEnvDuration("HTTP_IDLE_TIMEOUT", config.IdleTimeout)
	config.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", config.ShutdownTimeout)

	return nil
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) error {
	config.Level = getEnv("LOG_LEVEL", config.Level)
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", config.Format)
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", config.OutputFile)

	return nil
}

func loadDatabaseConfig(logger *logrus.Logger, config *DatabaseConfig) error {
	config.Host = getEnv("DB_HOST", config.Host)
	config.Port = getEnvInt("DB_PORT", config.Port)
	config.Name = getEnv("DB_NAME", config.Name)
	config.Username = getEnv("DB_USERNAME", config.Username)
	config.Password = getEnv("DB_PASSWORD", config.Password)
	config.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", config.MaxOpenConns)
	config.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", config.MaxIdleConns)
	config.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", config.ConnMaxLifetime)
	config.ConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", config.ConnMaxIdleTime)
	config.TLS = getEnv("DB_TLS", config.TLS)
	config.Charset = getEnv("DB_CHARSET", config.Charset)
	config.Timezone = getEnv("DB_TIMEZONE", config.Timezone)
	config.QueryTimeout = getEnvDuration("DB_QUERY_TIMEOUT", config.QueryTimeout)
	config.BreakerFailures = getEnvInt("DB_BREAKER_FAILURES", config.BreakerFailures)
	config.BreakerTimeout = getEnvDuration("DB_BREAKER_TIMEOUT", config.BreakerTimeout)
	if config.BreakerFailures < 0 {
		logger.Warn("DB_BREAKER_FAILURES cannot be negative, disabling the circuit breaker")
		config.BreakerFailures = 0
	}

	logger.WithFields(logrus.Fields{
		"host":           config.Host,
		"port":           config.Port,
		"database":       config.Name,
		"username":       config.Username,
		"max_open_conns": config.MaxOpenConns,
		"max_idle_conns": config.MaxIdleConns,
	}).Debug("Database configuration loaded")

	return nil
}

func loadCacheConfig(logger *logrus.Logger, config *CacheConfig) error {
	config.Enabled = getEnvBool("CACHE_ENABLED", config.Enabled)
	config.Address = getEnv("REDIS_ADDRESS", config.Address)
	config.Password = getEnv("REDIS_PASSWORD", config.Password)
	config.Database = getEnvInt("REDIS_DATABASE", config.Database)
	config.TTL = getEnvDuration("CACHE_TTL", config.TTL)
	config.KeyPrefix = getEnv("CACHE_KEY_PREFIX", config.KeyPrefix)

	if config.Enabled && config.TTL <= 0 {
		logger.Warn("CACHE_TTL must be positive, using default: 5m")
		config.TTL = 5 * time.Minute
	}

	return nil
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) error {
	config.AMQPUrl = getEnv("AMQP_URL", config.AMQPUrl)
	config.AlertQueue = getEnv("AMQP_ALERT_QUEUE", config.AlertQueue)
	config.ConnectTimeout = getEnvDuration("AMQP_CONNECT_TIMEOUT", config.ConnectTimeout)

	if config.AMQPUrl != "" && config.AlertQueue == "" {
		logger.Warn("Incomplete AMQP configuration: AMQP_ALERT_QUEUE is empty, using default: commetrics_alerts")
		config.AlertQueue = "commetrics_alerts"
	}

	return nil
}

func loadAuthConfig(logger *logrus.Logger, config *AuthConfig) error {
	config.Enabled = getEnvBool("AUTH_ENABLED", config.Enabled)
	config.JWTSecret = getEnv("AUTH_JWT_SECRET", config.JWTSecret)
	config.JWTIssuer = getEnv("AUTH_JWT_ISSUER", config.JWTIssuer)
	config.AdminRole = getEnv("AUTH_ADMIN_ROLE", config.AdminRole)

	if !config.Enabled {
		logger.Warn("Authentication is disabled; every caller sees all departments")
	}

	return nil
}

func loadAnalysisConfig(logger *logrus.Logger, config *AnalysisConfig) error {
	config.Workers = getEnvInt("ANALYSIS_WORKERS", config.Workers)
	if config.Workers < 0 {
		logger.Warn("ANALYSIS_WORKERS cannot be negative, using number of CPUs")
		config.Workers = 0
	}

	config.DefaultPeriodDays = getEnvInt("ANALYSIS_DEFAULT_PERIOD_DAYS", config.DefaultPeriodDays)
	config.MaxPeriodDays = getEnvInt("ANALYSIS_MAX_PERIOD_DAYS", config.MaxPeriodDays)
	config.Timezone = getEnv("ANALYSIS_TIMEZONE", config.Timezone)

	return nil
}

func loadDigestConfig(logger *logrus.Logger, config *DigestConfig) error {
	config.Enabled = getEnvBool("DIGEST_ENABLED", config.Enabled)
	config.Schedule = getEnv("DIGEST_SCHEDULE", config.Schedule)
	config.PeriodDays = getEnvInt("DIGEST_PERIOD_DAYS", config.PeriodDays)
	config.MinSeverity = strings.ToLower(getEnv("DIGEST_MIN_SEVERITY", config.MinSeverity))
	config.Timeout = getEnvDuration("DIGEST_TIMEOUT", config.Timeout)

	return nil
}

func loadTracingConfig(logger *logrus.Logger, config *TracingConfig) error {
	config.Enabled = getEnvBool("TRACING_ENABLED", config.Enabled)
	config.Endpoint = getEnv("TRACING_ENDPOINT", config.Endpoint)
	config.Insecure = getEnvBool("TRACING_INSECURE", config.Insecure)
	config.ServiceName = getEnv("TRACING_SERVICE_NAME", config.ServiceName)
	config.SampleRatio = getEnvFloat("TRACING_SAMPLE_RATIO", config.SampleRatio)

	if config.SampleRatio <= 0 || config.SampleRatio > 1 {
		logger.WithField("sample_ratio", config.SampleRatio).Warn("TRACING_SAMPLE_RATIO must be in (0, 1], using 1.0")
		config.SampleRatio = 1.0
	}
	if config.Enabled && config.Endpoint == "" {
		logger.Warn("TRACING_ENABLED without TRACING_ENDPOINT; spans are recorded but not exported")
	}

	return nil
}

func loadRateLimitConfig(logger *logrus.Logger, config *RateLimitConfig) error {
	config.Enabled = getEnvBool("RATE_LIMIT_ENABLED", config.Enabled)
	config.RequestsPerSecond = getEnvFloat("RATE_LIMIT_RPS", config.RequestsPerSecond)
	config.Burst = getEnvInt("RATE_LIMIT_BURST", config.Burst)
	config.ClientTTL = getEnvDuration("RATE_LIMIT_CLIENT_TTL", config.ClientTTL)

	return nil
}

// validateConfig checks cross-field constraints once every section is loaded
func validateConfig(logger *logrus.Logger, config *Config) error {
	if config.Database.Host == "" {
		return errors.New("database host is required (DB_HOST)")
	}
	if config.Database.Name == "" {
		return errors.New("database name is required (DB_NAME)")
	}
	if config.Database.MaxIdleConns > config.Database.MaxOpenConns {
		return errors.New(fmt.Sprintf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)",
			config.Database.MaxIdleConns, config.Database.MaxOpenConns))
	}

	if config.Auth.Enabled && strings.TrimSpace(config.Auth.JWTSecret) == "" {
		return errors.New("AUTH_ENABLED is true but AUTH_JWT_SECRET is empty")
	}

	if config.Analysis.DefaultPeriodDays < 1 {
		return errors.New("ANALYSIS_DEFAULT_PERIOD_DAYS must be at least 1")
	}
	if config.Analysis.MaxPeriodDays < config.Analysis.DefaultPeriodDays {
		return errors.New(fmt.Sprintf("ANALYSIS_MAX_PERIOD_DAYS (%d) must not be below ANALYSIS_DEFAULT_PERIOD_DAYS (%d)",
			config.Analysis.MaxPeriodDays, config.Analysis.DefaultPeriodDays))
	}
	if _, err := time.LoadLocation(config.Analysis.Timezone); err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid ANALYSIS_TIMEZONE: %s", config.Analysis.Timezone))
	}

	if config.Digest.Enabled {
		if config.Digest.PeriodDays < 1 || config.Digest.PeriodDays > config.Analysis.MaxPeriodDays {
			return errors.New(fmt.Sprintf("DIGEST_PERIOD_DAYS must be between 1 and %d", config.Analysis.MaxPeriodDays))
		}
		switch config.Digest.MinSeverity {
		case "critical", "warning", "good":
		default:
			return errors.New(fmt.Sprintf("invalid DIGEST_MIN_SEVERITY: %s", config.Digest.MinSeverity))
		}
		if !config.Messaging.Enabled() {
			logger.Warn("Digest enabled without AMQP_URL; alerts will only reach WebSocket subscribers")
		}
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("RATE_LIMIT_RPS must be positive")
		}
		if config.RateLimit.Burst < 1 {
			return errors.New("RATE_LIMIT_BURST must be at least 1")
		}
	}

	if config.HotReload && getEnv("CONFIG_FILE", "") == "" {
		logger.Warn("CONFIG_HOT_RELOAD is set but CONFIG_FILE is empty; nothing to watch")
	}

	if config.Logging.OutputFile != "" {
		f, err := os.OpenFile(config.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("cannot write to log file: %s", config.Logging.OutputFile))
		}
		f.Close()
	}

	return nil
}

// ApplyLogging applies the logging section to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
