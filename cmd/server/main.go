// Datasynth KYB conversation server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/omharigupta/datasynth/internal/analysis"
	"github.com/omharigupta/datasynth/internal/api"
	"github.com/omharigupta/datasynth/internal/config"
	"github.com/omharigupta/datasynth/internal/convlog"
	"github.com/omharigupta/datasynth/internal/identity"
	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/middleware"
	"github.com/omharigupta/datasynth/internal/scraper"
	"github.com/omharigupta/datasynth/internal/store"
	"github.com/omharigupta/datasynth/internal/vector"
	"github.com/omharigupta/datasynth/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "analysis_provider", cfg.Analysis.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session state.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// Persisted KYB records.
	records, err := kyb.NewFileStore(cfg.KYBDir)
	if err != nil {
		return err
	}
	slog.Info("KYB record store ready", "dir", records.Dir())

	// Snippet memory shares the session database.
	var embedder vector.Embedder
	if cfg.Analysis.GeminiAPIKey != "" {
		genaiEmbedder, err := vector.NewGenAIEmbedder(ctx, cfg.Analysis.GeminiAPIKey, cfg.Vector.EmbeddingModel)
		if err != nil {
			slog.Warn("Embeddings disabled, falling back to keyword retrieval", "error", err)
		} else {
			embedder = genaiEmbedder
		}
	}
	vectors, err := vector.NewSQLiteStore(ctx, repo.DB(), embedder, logger)
	if err != nil {
		return err
	}

	analyzer, err := analysis.New(ctx, cfg.Analysis, logger)
	if err != nil {
		slog.Warn("Analysis oracle unavailable, using local summaries", "error", err)
		analyzer = analysis.Unavailable{}
	}
	if closer, ok := analyzer.(analysis.Closer); ok {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				slog.Warn("Failed to close analysis client", "error", closeErr)
			}
		}()
	}

	extractor := scraper.New(scraper.Options{
		Timeout:    cfg.Scraper.Timeout,
		UserAgent:  cfg.Scraper.UserAgent,
		RatePerSec: cfg.Scraper.RatePerSec,
		Logger:     logger,
	})

	engine := workflow.New(records, extractor, analyzer,
		workflow.WithVectorStore(vectors),
		workflow.WithContextDepth(cfg.Vector.TopK),
		workflow.WithLogger(logger),
	)

	conversationLogger, err := convlog.NewConversationLogger(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
		MaxOpenFiles:  cfg.ConversationLog.MaxOpenFiles,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	rateLimiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer rateLimiter.Close()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg.FrontendURL)
	var oracle api.HealthChecker
	if hc, ok := analyzer.(api.HealthChecker); ok {
		oracle = hc
	}
	healthHandler := api.NewHealthHandler(repo, oracle)
	kybHandler := api.NewKYBHandler(baseHandler, engine, records, api.KYBHandlerOptions{
		RateLimiter: rateLimiter,
		Log:         conversationLogger,
		TurnTimeout: cfg.Scraper.Timeout + cfg.Analysis.Timeout + 30*time.Second,
	})

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	kybHandler.RegisterRoutes(r)

	// SSE and websocket turns can outlive a write deadline, so WriteTimeout stays 0.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return store.RunTTLWorker(gctx, repo, cfg.SessionTTL, 0, func(removed int64) {
			slog.Info("Expired KYB sessions removed", "count", removed)
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
