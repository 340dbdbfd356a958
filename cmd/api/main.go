package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veridia/wellguard/db"
	"github.com/veridia/wellguard/internal/auth"
	"github.com/veridia/wellguard/internal/background"
	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/database"
	"github.com/veridia/wellguard/internal/handlers"
	"github.com/veridia/wellguard/internal/metrics"
	middlewareCustom "github.com/veridia/wellguard/internal/middleware"
	"github.com/veridia/wellguard/internal/ratelimit"
	"github.com/veridia/wellguard/internal/repositories"
	"github.com/veridia/wellguard/internal/routes"
	"github.com/veridia/wellguard/internal/services"
	pkghttp "github.com/veridia/wellguard/pkg/http"
	pkglogger "github.com/veridia/wellguard/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	conn, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx, conn.Pool); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Repositories
	userRepo := repositories.NewUserRepository(conn)
	attemptRepo := repositories.NewLoginAttemptRepository(conn)
	lockoutRepo := repositories.NewLockoutRepository(conn)
	tokenRepo := repositories.NewResetTokenRepository(conn)
	sessionRepo := repositories.NewSessionRepository(conn)

	// Shared infrastructure
	auditLogger := pkglogger.NewAuditLogger(logger)
	m := metrics.New()
	limiter := ratelimit.NewMemoryLimiter(logger)
	ipConfig := &pkghttp.IPConfig{
		TrustedProxies: parseTrustedProxies(os.Getenv("TRUSTED_PROXIES")),
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Security.TimingDelayMs,
		RandomDelayMs: cfg.Security.TimingRandomMs,
		AlwaysDelay:   true,
	})

	mailer, err := services.NewAWSSESMailer(cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.ResetURLBase, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	lockoutService := services.NewLockoutService(lockoutRepo, mailer, cfg.Security, logger, auditLogger, m)
	attemptService := services.NewAttemptService(attemptRepo, userRepo, lockoutService, cfg.Security, logger, auditLogger, m)
	resetService := services.NewResetService(tokenRepo, userRepo, sessionRepo, lockoutService, mailer, timingDelay, cfg.Security, logger, auditLogger, m)
	sessionService := services.NewSessionService(sessionRepo, mailer, cfg.Security, logger, auditLogger, m)

	// Handlers
	attemptAccounts := handlers.NewAccountLimiter(limiter, "login_account", cfg.Security.StrictLimit, m)
	resetAccounts := handlers.NewAccountLimiter(limiter, "reset_account", cfg.Security.StrictLimit, m)
	attemptHandler := handlers.NewAttemptHandler(attemptService, ipConfig, attemptAccounts)
	resetHandler := handlers.NewResetHandler(resetService, ipConfig, resetAccounts)
	sessionHandler := handlers.NewSessionHandler(sessionService, ipConfig)
	adminHandler := handlers.NewAdminHandler(lockoutService, userRepo)

	resolver := auth.NewResolver(cfg.Auth.JWTSecret)

	// Background housekeeping
	cleanupManager := background.NewCleanupManager(attemptRepo, tokenRepo, logger, cfg.Auth.CleanupInterval)

	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Deps{
		AttemptHandler: attemptHandler,
		ResetHandler:   resetHandler,
		SessionHandler: sessionHandler,
		AdminHandler:   adminHandler,
		Resolver:       resolver,
		UserRepo:       userRepo,
		Limiter:        limiter,
		Security:       cfg.Security,
		IPConfig:       ipConfig,
		Metrics:        m,
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := conn.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	go cleanupManager.Start(backgroundCtx)
	go limiter.StartSweeper(backgroundCtx, cfg.Security.SweepInterval)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	backgroundCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseTrustedProxies parses a comma-separated list of CIDR ranges
func parseTrustedProxies(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	proxies := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies
}
