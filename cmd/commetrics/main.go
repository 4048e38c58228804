package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commetrics-server/pkg/access"
	"commetrics-server/pkg/cache"
	"commetrics-server/pkg/circuitbreaker"
	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/config"
	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/database"
	"commetrics-server/pkg/digest"
	httpserver "commetrics-server/pkg/http"
	"commetrics-server/pkg/messaging"
	"commetrics-server/pkg/metrics"
	"commetrics-server/pkg/ratelimit"
	"commetrics-server/pkg/report"
	"commetrics-server/pkg/telemetry/tracing"
	"commetrics-server/pkg/version"

	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.New()

	appConfig       *config.Config
	db              *database.MySQLDatabase
	reportCache     *cache.RedisReportCache
	alertPublisher  *messaging.AMQPPublisher
	alertHub        *httpserver.AlertHub
	httpServer      *httpserver.Server
	digestScheduler *digest.Scheduler
	configWatcher   *config.Watcher
	tracingShutdown func(context.Context) error

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	// Basic JSON logging until the configuration is loaded
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	go alertHub.Run(rootCtx)

	if err := httpServer.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start HTTP server")
	}

	if digestScheduler != nil {
		if err := digestScheduler.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start digest scheduler")
		}
	}

	logger.WithFields(logrus.Fields{
		"version": version.Version,
		"port":    appConfig.HTTP.Port,
	}).Info("Communication metrics server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdown()
}

// initialize loads configuration and wires all components
func initialize() error {
	var err error

	appConfig, err = config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := appConfig.ApplyLogging(logger); err != nil {
		return fmt.Errorf("failed to apply logging configuration: %w", err)
	}
	logger.WithField("level", logger.GetLevel().String()).Info("Log level set")

	metrics.EnableMetrics(appConfig.HTTP.EnableMetrics)
	metrics.Init(logger)

	tracingShutdown, err = tracing.Init(rootCtx, appConfig.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// The call database is required
	dbConfig := database.LoadMySQLConfig(logger, appConfig.Database)
	if err := database.ValidateConfig(dbConfig); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	connectCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
	db, err = database.NewMySQLDatabase(connectCtx, dbConfig, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repository := database.NewRepository(db, logger)

	var breaker *circuitbreaker.CircuitBreaker
	if appConfig.Database.BreakerFailures > 0 {
		breaker = circuitbreaker.NewCircuitBreaker("mysql", circuitbreaker.Config{
			FailureThreshold: int64(appConfig.Database.BreakerFailures),
			Timeout:          appConfig.Database.BreakerTimeout,
		}, logger)
	}
	callSource := report.WithCircuitBreaker(repository, breaker)

	// The report cache is optional; reports are computed on every request without it
	var serviceCache report.Cache
	if appConfig.Cache.Enabled {
		cacheCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		reportCache, err = cache.NewRedisReportCache(cacheCtx, cache.Config{
			Address:   appConfig.Cache.Address,
			Password:  appConfig.Cache.Password,
			Database:  appConfig.Cache.Database,
			TTL:       appConfig.Cache.TTL,
			KeyPrefix: appConfig.Cache.KeyPrefix,
		}, logger)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Report cache unavailable, continuing without cache")
			reportCache = nil
		} else {
			serviceCache = reportCache
		}
	}

	engine := communication.NewEngine(logger, communication.Options{
		Workers:  appConfig.Analysis.Workers,
		Observer: metrics.EngineObserver{},
	})
	reports := report.NewService(callSource, serviceCache, engine, report.Defaults{
		PeriodDays:    appConfig.Analysis.DefaultPeriodDays,
		MaxPeriodDays: appConfig.Analysis.MaxPeriodDays,
		Location:      appConfig.Analysis.Location(),
	}, logger)

	authorizer := access.NewAuthorizer(access.Config{
		Enabled:   appConfig.Auth.Enabled,
		Secret:    appConfig.Auth.JWTSecret,
		Issuer:    appConfig.Auth.JWTIssuer,
		AdminRole: appConfig.Auth.AdminRole,
	}, logger)
	if !appConfig.Auth.Enabled {
		logger.Warn("Authentication disabled: every caller sees every department")
	}

	httpServer = httpserver.NewServer(logger, httpserver.ConfigFrom(appConfig.HTTP))
	httpServer.SetCorrelationMiddleware(correlation.NewHTTPMiddleware(logger))
	httpServer.SetAccessMiddleware(authorizer)
	if appConfig.Tracing.Enabled {
		httpServer.SetTracingMiddleware(tracing.HTTPMiddleware{})
	}
	if appConfig.RateLimit.Enabled {
		limiter := ratelimit.NewHTTPMiddleware(ratelimit.Config{
			RequestsPerSecond: appConfig.RateLimit.RequestsPerSecond,
			Burst:             appConfig.RateLimit.Burst,
			ClientTTL:         appConfig.RateLimit.ClientTTL,
			ExemptIPs:         []string{"127.0.0.1", "::1"},
		}, logger)
		go limiter.Limiter().Run(rootCtx)
		httpServer.SetRateLimitMiddleware(limiter)
		httpServer.AddStatusProvider("rate_limited_clients", func() interface{} { return limiter.Limiter().ClientCount() })
	}
	httpServer.AddHealthCheck("database", true, repository.Health)
	if breaker != nil {
		httpServer.AddStatusProvider("database_circuit", func() interface{} { return breaker.Statistics() })
	}
	if reportCache != nil {
		httpServer.AddHealthCheck("cache", false, reportCache.Ping)
	}

	httpserver.NewCommunicationMetricsHandler(logger, reports).RegisterHandlers(httpServer)

	alertHub = httpserver.NewAlertHub(logger)
	alertHub.RegisterHandlers(httpServer)
	httpServer.AddStatusProvider("alert_subscribers", func() interface{} { return alertHub.ClientCount() })

	// AMQP is optional; alerts still reach WebSocket subscribers without it
	sinks := []digest.Sink{alertHub}
	if appConfig.Messaging.Enabled() {
		alertPublisher = messaging.NewAMQPPublisher(logger, messaging.AMQPConfig{
			URL:            appConfig.Messaging.AMQPUrl,
			QueueName:      appConfig.Messaging.AlertQueue,
			ConnectTimeout: appConfig.Messaging.ConnectTimeout,
		})
		if err := alertPublisher.Connect(rootCtx); err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP, alert publishing disabled")
			alertPublisher = nil
		} else {
			sinks = append(sinks, alertPublisher)
			httpServer.AddHealthCheck("amqp", false, func(ctx context.Context) error {
				if !alertPublisher.IsConnected() {
					return messaging.ErrNotConnected
				}
				return nil
			})
		}
	}

	if appConfig.Digest.Enabled {
		minSeverity, err := communication.ParseSeverity(appConfig.Digest.MinSeverity)
		if err != nil {
			return fmt.Errorf("invalid digest configuration: %w", err)
		}
		d := digest.New(reports, digest.Config{
			Schedule:    appConfig.Digest.Schedule,
			PeriodDays:  appConfig.Digest.PeriodDays,
			MinSeverity: minSeverity,
			Timeout:     appConfig.Digest.Timeout,
		}, logger, sinks...)
		digestScheduler = digest.NewScheduler(appConfig.Digest.Schedule, d, logger)
		httpServer.AddStatusProvider("digest_next_run", func() interface{} { return digestScheduler.NextRun() })
	}

	if appConfig.HotReload {
		if err := startConfigWatcher(); err != nil {
			logger.WithError(err).Warn("Configuration hot-reload unavailable")
		}
	}

	return nil
}

// startConfigWatcher re-applies the logging section whenever CONFIG_FILE changes
func startConfigWatcher() error {
	var err error
	configWatcher, err = config.NewWatcher(os.Getenv("CONFIG_FILE"), appConfig, logger)
	if err != nil {
		return err
	}

	configWatcher.OnReload(func(oldConfig, newConfig *config.Config) error {
		return newConfig.ApplyLogging(logger)
	})

	if err := configWatcher.Start(rootCtx); err != nil {
		configWatcher = nil
		return err
	}
	return nil
}

// shutdown stops components in reverse dependency order
func shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), appConfig.HTTP.ShutdownTimeout+appConfig.Digest.Timeout)
	defer shutdownCancel()

	if httpServer != nil {
		httpCtx, cancel := context.WithTimeout(shutdownCtx, appConfig.HTTP.ShutdownTimeout)
		if err := httpServer.Shutdown(httpCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
		cancel()
	}

	if digestScheduler != nil {
		digestScheduler.Stop(shutdownCtx)
	}

	if configWatcher != nil {
		configWatcher.Stop()
	}

	// stops the alert hub
	rootCancel()

	if alertPublisher != nil {
		alertPublisher.Disconnect()
	}

	if reportCache != nil {
		if err := reportCache.Close(); err != nil {
			logger.WithError(err).Warn("Error closing report cache")
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Error closing database connection")
		} else {
			logger.Info("Database connection closed")
		}
	}

	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Error shutting down tracing")
		}
	}

	logger.Info("Application shut down gracefully")
}
