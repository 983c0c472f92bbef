package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"conversation-system/internal/cache"
	"conversation-system/internal/config"
	httphandler "conversation-system/internal/http"
	"conversation-system/internal/ingest"
	"conversation-system/internal/middleware"
	"conversation-system/internal/repo"
	"conversation-system/internal/services/analytics"
	"conversation-system/internal/services/assistant"
	"conversation-system/internal/services/conversations"
	"conversation-system/internal/services/llm"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		ingestData = flag.Bool("ingest", false, "Load sample conversations into the database and exit")
		importPath = flag.String("import", "", "Import exported conversations from a JSON file or directory and exit")
		port       = flag.String("port", "", "Port to run the server on (overrides PORT)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	setupLogger(cfg.Log)

	if err := run(cfg, *ingestData, *importPath); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config, ingestData bool, importPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repo.NewDB(ctx, repo.Dialect(cfg.Database.Driver), cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	repository := repo.NewRepository(db)

	if ingestData || importPath != "" {
		return runIngest(ctx, repository, ingestData, importPath)
	}

	ready := map[string]httphandler.Pinger{"database": db}
	store, closeCache := openCache(cfg.Redis, cfg.LLM.Timeout+15*time.Second, ready)
	defer closeCache()

	providerCfg := cfg.LLM.ProviderConfig()
	if !providerCfg.Configured() {
		log.Warn().
			Str("provider", cfg.LLM.Provider).
			Msg("LLM provider is not configured, replies will use fallback text")
	}
	dispatcher := llm.NewDispatcher(providerCfg)

	conversationService := conversations.NewConversationService(repository, store, assistant.New(dispatcher, repository))
	analyticsService := analytics.NewAnalyticsService(repository, store)

	topicScorer := analytics.NewTopicScorer(repository, store)
	topicScorer.Start(ctx, cfg.Analytics.WorkerInterval)
	defer topicScorer.Stop()

	router := httphandler.NewRouter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.Burst,
	})
	router.RegisterConversationRoutes(httphandler.NewConversationHandler(conversationService, cfg.Server.PublicURL))
	router.RegisterAnalyticsRoutes(httphandler.NewAnalyticsHandler(analyticsService))
	router.RegisterHealthRoutes(ready)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Server.Port).Str("db_driver", cfg.Database.Driver).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

func runIngest(ctx context.Context, repository repo.Repository, sample bool, importPath string) error {
	loader := ingest.NewLoader(repository)

	if sample {
		log.Info().Msg("Loading sample data...")
		if err := loader.GenerateSampleData(ctx); err != nil {
			return fmt.Errorf("failed to load sample data: %w", err)
		}
		log.Info().Msg("Sample data loaded successfully")
	}

	if importPath != "" {
		n, err := loader.Load(ctx, importPath)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", importPath, err)
		}
		log.Info().Int("conversations", n).Str("path", importPath).Msg("Import finished")
	}
	return nil
}

// openCache connects to Redis when configured and falls back to an in-process store.
// lockTTL must outlast the slowest cache fill, an LLM call.
func openCache(cfg config.RedisConfig, lockTTL time.Duration, ready map[string]httphandler.Pinger) (cache.Store, func()) {
	noop := func() {}
	if cfg.Addr == "" {
		log.Info().Msg("REDIS_ADDR not set, using in-memory cache")
		return cache.NewMemoryStore(), noop
	}

	redisCache, err := cache.NewRedisCache(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, using in-memory cache")
		return cache.NewMemoryStore(), noop
	}
	redisCache.WithLockTTL(lockTTL)
	ready["cache"] = redisCache
	return redisCache, func() {
		if err := redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "conversation-system").Logger()
}
