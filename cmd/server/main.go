package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternisai/chat-relay/internal/chat"
	"github.com/eternisai/chat-relay/internal/config"
	"github.com/eternisai/chat-relay/internal/logger"
	"github.com/eternisai/chat-relay/internal/providers"
	"github.com/eternisai/chat-relay/internal/request_tracking"
	"github.com/eternisai/chat-relay/internal/session"
	"github.com/eternisai/chat-relay/internal/storage"
	"github.com/eternisai/chat-relay/internal/title_generation"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	slog.SetDefault(log.Logger)

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	store, closeStore, err := newSessionStore(cfg)
	if err != nil {
		log.Error("failed to initialize session store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize providers
	httpClient := providers.NewHTTPClient(cfg.ProviderTimeout)
	openai := providers.NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.Model, httpClient)
	gemini := providers.NewGeminiClient(cfg.Gemini.BaseURL, cfg.Gemini.Model, httpClient)
	metrics := providers.NewMetrics(reg)

	chatProviders := providers.NewRegistry(
		providers.Instrument(openai, "chat", metrics),
		providers.Instrument(gemini, "chat", metrics),
	)
	titleProviders := providers.NewRegistry(
		providers.Instrument(openai, "title", metrics),
		providers.Instrument(gemini, "title", metrics),
	)

	// Initialize services
	titles := title_generation.NewGenerator(cfg.TitlePrompt, titleProviders, log, reg)
	throttle := request_tracking.NewService(cfg.ChatRateLimitPerMinute, cfg.ChatRateLimitBurst, reg)
	sessions := session.NewManager(store, session.NewTokens(cfg.SessionSecret, cfg.SessionTTL), session.ManagerConfig{
		CookieName: cfg.SessionCookieName,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.CookieSecure,
	}, log)

	sweeper, err := session.NewSweeper(store, cfg.SessionTTL, cfg.SessionSweepSchedule, log)
	if err != nil {
		log.Error("failed to schedule session sweeper", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sweeper.Start()

	handler := chat.NewHandler(chatProviders, titles, chat.Options{
		SystemPrompt:    cfg.SystemPrompt,
		MaxHistoryTurns: cfg.MaxHistoryTurns,
		OpenAI:          cfg.OpenAI,
		Gemini:          cfg.Gemini,
	}, log)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLoggingMiddleware(log))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	var throttleMiddleware gin.HandlerFunc
	if throttle.Enabled() {
		throttleMiddleware = request_tracking.ThrottleMiddleware(throttle, log)
	}
	chat.RegisterRoutes(router, handler, sessions.Middleware(), throttleMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
	})

	port := ":" + cfg.Port
	srv := &http.Server{
		Addr:              port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("chat relay listening",
		slog.String("addr", port),
		slog.String("session_backend", string(cfg.SessionBackend)),
		slog.String("openai_model", cfg.OpenAI.Model),
		slog.String("gemini_model", cfg.Gemini.Model),
		slog.Int("chat_rate_limit_per_minute", cfg.ChatRateLimitPerMinute))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	log.Info("server exited")
}

// newSessionStore opens the configured backend. The returned func releases it.
func newSessionStore(cfg *config.Config) (session.Store, func(), error) {
	if cfg.SessionBackend == config.SessionBackendMemory {
		return session.NewMemoryStore(), func() {}, nil
	}

	db, err := storage.InitDatabase(cfg.SessionBackend, cfg.DatabaseURL, storage.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, nil, err
	}

	return storage.NewSessionStore(db), func() { db.Close() }, nil
}
