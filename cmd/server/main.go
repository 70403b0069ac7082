package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/api"
	"github.com/kenneth/redaction-gateway/internal/audit"
	"github.com/kenneth/redaction-gateway/internal/config"
	"github.com/kenneth/redaction-gateway/internal/crypto"
	"github.com/kenneth/redaction-gateway/internal/metrics"
	"github.com/kenneth/redaction-gateway/internal/middleware"
	"github.com/kenneth/redaction-gateway/internal/redaction"
	"github.com/kenneth/redaction-gateway/internal/session"
	"github.com/kenneth/redaction-gateway/internal/store"
	"github.com/kenneth/redaction-gateway/internal/tracing"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level from config
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting Redaction Gateway")

	// Initialize metrics
	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()

	// Initialize tracing if enabled
	tracerProvider, err := tracing.NewProvider(context.Background(), &cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}
	if tracerProvider != nil {
		logger.WithFields(logrus.Fields{
			"exporter":       cfg.Tracing.Exporter,
			"sampling_ratio": cfg.Tracing.SamplingRatio,
		}).Info("Tracing enabled")
	}

	// Connect to the session metadata store
	metaStore, err := store.New(&cfg.Store, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to session store")
	}
	defer metaStore.Close()

	// Initialize the session sealer
	sealer, err := crypto.NewSealer(cfg.Session.SealAlgorithm)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create sealer")
	}
	logger.WithField("algorithm", sealer.Algorithm()).Info("Session sealing configured")

	// Build the redaction engines
	engines := []redaction.Engine{redaction.NewRuleEngine()}
	if cfg.Engine.Vision.Endpoint != "" {
		engines = append(engines, redaction.NewVisionEngine(&cfg.Engine.Vision, cfg.Engine.Timeout))
		logger.WithField("endpoint", cfg.Engine.Vision.Endpoint).Info("Vision engine enabled")
	} else {
		logger.Info("Vision engine disabled (no inference endpoint configured)")
	}
	gateway := redaction.NewGateway(engines...)

	// Build the session service
	service, err := session.NewService(cfg, metaStore, gateway, sealer, m, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create session service")
	}

	// Initialize audit logger if enabled
	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
		logger.WithFields(logrus.Fields{
			"max_events": cfg.Audit.MaxEvents,
		}).Info("Audit logging enabled")
	}

	// Initialize API handler
	handler := api.NewHandler(service, metaStore, logger, m, auditLogger, cfg)

	// Setup router
	router := mux.NewRouter()

	// Register metrics endpoint
	router.Handle("/metrics", m.Handler()).Methods("GET")

	// Register API routes
	handler.RegisterRoutes(router)

	// Apply middleware
	httpHandler := http.Handler(router)
	if cfg.Tracing.Enabled {
		httpHandler = middleware.TracingMiddleware(cfg.Tracing.RedactSensitive)(httpHandler)
	}
	httpHandler = middleware.RecoveryMiddleware(logger)(httpHandler)
	httpHandler = middleware.LoggingMiddleware(logger, m)(httpHandler)
	httpHandler = middleware.SecurityHeadersMiddleware()(httpHandler)

	// Add rate limiting if enabled
	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			cfg.RateLimit.Limit,
			cfg.RateLimit.Window,
			logger,
		)
		defer rateLimiter.Stop()
		httpHandler = middleware.RateLimitMiddleware(rateLimiter)(httpHandler)
		logger.WithFields(logrus.Fields{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}).Info("Rate limiting enabled")
	}

	// Watch the config file for reloadable changes
	reloader, err := config.NewConfigReloader(configPath, cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Config reloader not started")
	} else {
		reloader.SetOnReloadCallback(func(old, new *config.Config) error {
			if level, err := logrus.ParseLevel(new.LogLevel); err == nil {
				logger.SetLevel(level)
			}
			return nil
		})
		go reloader.Start()
		defer reloader.Stop()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		var err error
		if cfg.TLS.Enabled {
			logger.WithFields(logrus.Fields{
				"addr":      cfg.ListenAddr,
				"cert_file": cfg.TLS.CertFile,
				"key_file":  cfg.TLS.KeyFile,
			}).Info("Starting HTTPS server")
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.WithField("addr", cfg.ListenAddr).Info("Starting HTTP server")
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server stopped gracefully")
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Trace exporter shutdown failed")
	}
}
