package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"taxEvents/internal/cache"
	"taxEvents/internal/config"
	"taxEvents/internal/graceful"
	"taxEvents/internal/ingestion"
	"taxEvents/internal/linkhealth"
	"taxEvents/internal/metrics"
	"taxEvents/internal/normalizer"
	"taxEvents/internal/openrouter"
	"taxEvents/internal/orchestrator"
	"taxEvents/internal/repositories"
	"taxEvents/internal/review"
	"taxEvents/internal/scraper"
	telegramBot "taxEvents/internal/telegram"
	"taxEvents/internal/transport/httpServer"
	"taxEvents/internal/transport/httpServer/handlers"
	myMiddleware "taxEvents/internal/transport/httpServer/middleware"
	"taxEvents/internal/transport/httpServer/routers"
	"taxEvents/internal/turnstile"
	"taxEvents/internal/utils/logger/handlers/slogpretty"
	"taxEvents/internal/utils/logger/sl"
	"taxEvents/internal/validation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// Version проставляется при сборке через -ldflags.
var Version = "0.1"

// store объединяет всё, что пайплайну нужно от хранилища.
// Ему удовлетворяют и Postgres, и in-memory хранилище.
type store interface {
	ingestion.Repository
	review.Repository
	validation.Repository
	handlers.EventRepository
	Shutdown(ctx context.Context) error
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	if err := cfg.ReadPromptFromFile(); err != nil {
		log.Warn("prompt file not loaded, using configured prompt", sl.Err(err))
	}

	log.Info(
		"starting tax events pipeline",
		slog.String("env", cfg.Env),
		slog.String("version", Version),
		slog.String("db", cfg.DBConfig.Driver),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsService := metrics.New(reg)

	repositoryService, err := setupStore(log, cfg)
	if err != nil {
		log.Error("failed to init store", sl.Err(err))
		os.Exit(1)
	}

	checker, cacheShutdown := setupChecker(log, cfg)

	reviewService := review.New(log, repositoryService, metricsService)
	aiService := openrouter.NewClient(log, cfg)

	tgBot, err := telegramBot.New(log, cfg, reviewService, aiService)
	if err != nil {
		log.Error("failed to init telegram bot", sl.Err(err))
		os.Exit(1)
	}

	mergerService := ingestion.New(log, repositoryService, normalizer.New(log, cfg.IngestionConfig.PastTolerance), tgBot, metricsService)
	validationService := validation.New(log, repositoryService, checker, cfg, metricsService)
	scraperService := scraper.New(log, cfg, mergerService)

	var generator orchestrator.Generator
	if cfg.BotConfig.AI.Enabled() {
		generator = aiService
	} else {
		log.Warn("AI token or model is empty, AI ingestion disabled")
	}
	var scheduledScraper orchestrator.Scraper
	if len(cfg.ScraperConfig.Sites) > 0 {
		scheduledScraper = scraperService
	}
	orchestratorService := orchestrator.New(log, cfg, generator, mergerService, scheduledScraper, validationService)

	// HTTP Server
	auth := myMiddleware.NewAuth(log, cfg.HttpServer.Secret, cfg.HttpServer.CronSecret)
	eventHandler := handlers.NewEventHandler(log, repositoryService, mergerService, orchestratorService, turnstile.New(log, cfg.TurnstileConfig))
	reviewHandler := handlers.NewReviewHandler(log, reviewService)
	validationHandler := handlers.NewValidationHandler(log, repositoryService, validationService)
	router := routers.NewRouter(log, auth, eventHandler, reviewHandler, validationHandler, metricsService.Handler())
	httpSrv := httpServer.NewHttpServer(log, router, cfg)

	maxSecond := 15 * time.Second
	waitShutdown := graceful.GracefulShutdown(
		context.Background(),
		maxSecond,
		map[string]graceful.Operation{
			"Scraper service": func(ctx context.Context) error {
				return scraperService.Shutdown(ctx)
			},
			"AI service": func(ctx context.Context) error {
				return aiService.Shutdown(ctx)
			},
			"Repository service": func(ctx context.Context) error {
				return repositoryService.Shutdown(ctx)
			},
			"Link health cache": cacheShutdown,
			"Telegram bot": func(ctx context.Context) error {
				return tgBot.Shutdown(ctx)
			},
			"Orchestrator service": func(ctx context.Context) error {
				return orchestratorService.Shutdown(ctx)
			},
			"HTTP server": func(ctx context.Context) error {
				return httpSrv.Shutdown(ctx)
			},
		},
		log,
	)

	go scraperService.Start()
	go orchestratorService.Start()
	go tgBot.Start(30)
	go httpSrv.Listen()

	<-waitShutdown
}

// setupStore выбирает хранилище по db.driver.
func setupStore(log *slog.Logger, cfg *config.Config) (store, error) {
	switch cfg.DBConfig.Driver {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		return repositories.NewMemory(cfg.PublishPolicy(), nil), nil
	default:
		repo, err := repositories.New(log, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return repo, nil
	}
}

// setupChecker оборачивает проверку ссылок redis-кэшем, если он настроен.
func setupChecker(log *slog.Logger, cfg *config.Config) (linkhealth.HealthChecker, graceful.Operation) {
	checker := linkhealth.NewChecker(log, cfg.LinkHealthConfig, nil)
	noop := func(context.Context) error { return nil }

	if cfg.RedisConfig.Addr == "" {
		return checker, noop
	}

	kv := cache.NewRedisKVStore(cache.NewRedisClient(cfg.RedisConfig))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := kv.Ping(ctx); err != nil {
		log.Warn("redis unavailable, link health cache disabled", sl.Err(err))
		_ = kv.Shutdown(ctx)
		return checker, noop
	}

	log.Info("link health cache enabled", slog.String("addr", cfg.RedisConfig.Addr), slog.Duration("ttl", cfg.RedisConfig.TTL))
	return linkhealth.NewCachedChecker(log, checker, kv, cfg.RedisConfig.TTL), kv.Shutdown
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog(slog.LevelDebug)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = setupPrettySlog(slog.LevelInfo)
	default: // If env config is invalid, set prod settings by default due to security
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
