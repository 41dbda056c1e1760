// Safechat - mental health chat server with risk scoring and crisis triage.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/anonymize"
	"github.com/darktomcat119/Health-AI-MVP/internal/api"
	"github.com/darktomcat119/Health-AI-MVP/internal/chat"
	"github.com/darktomcat119/Health-AI-MVP/internal/config"
	"github.com/darktomcat119/Health-AI-MVP/internal/healthcheck"
	"github.com/darktomcat119/Health-AI-MVP/internal/lexicon"
	"github.com/darktomcat119/Health-AI-MVP/internal/metrics"
	"github.com/darktomcat119/Health-AI-MVP/internal/middleware"
	"github.com/darktomcat119/Health-AI-MVP/internal/reply"
	"github.com/darktomcat119/Health-AI-MVP/internal/risk"
	"github.com/darktomcat119/Health-AI-MVP/internal/store"
	"github.com/darktomcat119/Health-AI-MVP/internal/triage"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"app", cfg.AppName,
		"version", cfg.AppVersion,
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Lexicons.
	keywords, err := lexicon.LoadKeywords(cfg.Lexicon.KeywordsPath)
	if err != nil {
		slog.Error("Failed to load risk keywords", "error", err)
		os.Exit(1)
	}
	resources, err := lexicon.LoadResources(cfg.Lexicon.ResourcesPath)
	if err != nil {
		slog.Error("Failed to load crisis resources", "error", err)
		os.Exit(1)
	}
	slog.Info("Lexicon loaded", "phrases", keywords.PhraseCount(), "crisis_resources", len(resources))

	scorer, err := risk.NewScorer(keywords, risk.Thresholds{High: cfg.Risk.High, Critical: cfg.Risk.Critical}, logger)
	if err != nil {
		slog.Error("Failed to initialize risk scorer", "error", err)
		os.Exit(1)
	}
	evaluator, err := triage.NewEvaluator(resources, triage.Config{
		High:         cfg.Risk.High,
		Critical:     cfg.Risk.Critical,
		CheckinAfter: cfg.Risk.CheckinAfter,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize triage evaluator", "error", err)
		os.Exit(1)
	}

	// Session store.
	st, err := store.New(cfg.Store.Driver, cfg.Store.DBPath, store.Options{MaxAge: cfg.Session.MaxAge()})
	if err != nil {
		slog.Error("Failed to initialize session store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()
	slog.Info("Session store ready", "driver", cfg.Store.Driver, "max_age", cfg.Session.MaxAge())

	gen, err := reply.New(cfg.LLM.Provider, reply.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize reply generator", "error", err)
		os.Exit(1)
	}
	slog.Info("Reply generator ready", "provider", cfg.LLM.Provider)

	svc := chat.NewService(st, scorer, evaluator, gen, chat.Options{
		MaxMessageLength: cfg.Session.MaxMessageLength,
		ReplyTimeout:     cfg.LLM.Timeout,
		Anonymizer:       anonymize.New(logger),
		Metrics:          m,
		Logger:           logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background workers.
	sweeperDone := store.StartSweeper(ctx, st, cfg.Session.SweepInterval, m.SessionsExpiredAdd)
	slog.Info("Session sweeper started", "interval", cfg.Session.SweepInterval)

	limiter := middleware.NewRateLimiter(cfg.Limit.RPS, cfg.Limit.Burst)
	limiter.OnLimited = m.RateLimitedInc
	evictionDone := limiter.StartEviction(ctx, middleware.DefaultIdleTTL)

	watcherDone := make(chan struct{})
	if cfg.Lexicon.Watch && cfg.Lexicon.KeywordsPath != "" {
		w, err := lexicon.NewWatcher(cfg.Lexicon.KeywordsPath, func(k *lexicon.Keywords) {
			scorer.SetKeywords(k)
			m.LexiconReloaded(true)
		}, logger)
		if err != nil {
			slog.Error("Failed to watch risk keywords", "error", err)
			os.Exit(1)
		}
		w.OnReloadError = func(error) { m.LexiconReloaded(false) }
		go func() {
			defer close(watcherDone)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Lexicon watcher stopped", "error", err)
			}
		}()
		slog.Info("Lexicon hot reload enabled", "path", cfg.Lexicon.KeywordsPath)
	} else {
		close(watcherDone)
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	handler := api.NewHandler(svc, api.Options{
		AppName:       cfg.AppName,
		Version:       cfg.AppVersion,
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		handler.RegisterRoutes(r)
	})

	// Note: SSE and websocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// gRPC health service (optional).
	var healthSrv *healthcheck.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "port", cfg.GRPCPort, "error", err)
			os.Exit(1)
		}
		healthSrv = healthcheck.NewServer(logger)
		go func() {
			slog.Info("gRPC health listening", "addr", lis.Addr().String())
			if err := healthSrv.Serve(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()
	if healthSrv != nil {
		healthSrv.SetServing(true)
	}

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthSrv != nil {
		healthSrv.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-sweeperDone
	<-evictionDone
	<-watcherDone

	slog.Info("Server stopped successfully")
}
