package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/port"
	"github.com/garyjia/contract-reconciler/internal/application/service"
	"github.com/garyjia/contract-reconciler/internal/config"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/external/lark"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/external/mock"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/external/openai"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/pdf"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/persistence/repository"
	httpServer "github.com/garyjia/contract-reconciler/internal/interfaces/http"
	"github.com/garyjia/contract-reconciler/internal/normalize"
	"github.com/garyjia/contract-reconciler/internal/outcome"
	"github.com/garyjia/contract-reconciler/internal/ratelimit"
	"github.com/garyjia/contract-reconciler/internal/reconcile"
	"github.com/garyjia/contract-reconciler/internal/usage"
	"github.com/garyjia/contract-reconciler/internal/worker"
	"github.com/garyjia/contract-reconciler/migrations"
	"github.com/garyjia/contract-reconciler/pkg/database"
	"github.com/garyjia/contract-reconciler/pkg/utils"
)

const serviceName = "contract-reconciler"

func main() {
	// A missing .env is fine; the process environment still applies
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.LoggerConfig(serviceName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting contract reconciler",
		zap.String("version", cfg.Server.Version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("ai_enabled", cfg.AI.Enabled),
		zap.Bool("mock_mode", cfg.AI.MockMode))

	// Usage ledger
	store, closeStore, err := newUsageStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	alerter := newAlerter(cfg, logger)
	ledger := usage.NewLedger(store, cfg.PriceTable(mock.ModelName), cfg.UsageLimits(), alerter, logger)

	// Rate limiter
	limiter, sweeper, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// Extraction
	extractor, model, err := newExtractor(cfg, logger)
	if err != nil {
		return err
	}

	renderer := pdf.NewRenderer(pdf.Config{
		Format:  cfg.PDF.Format,
		Quality: cfg.PDF.Quality,
	}, logger)
	normalizer := normalize.New(normalize.Config{MaxDocumentBytes: cfg.AI.MaxDocumentBytes}, renderer, logger)

	// Reconciliation
	reconcileCfg, err := cfg.ReconcileConfig()
	if err != nil {
		return fmt.Errorf("invalid reconciliation config: %w", err)
	}
	matcher, err := reconcile.NewMatcher(cfg.Reconciliation.Matcher)
	if err != nil {
		return fmt.Errorf("invalid matcher: %w", err)
	}
	engine, err := reconcile.NewEngine(reconcileCfg, matcher)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation engine: %w", err)
	}

	analysis := service.NewAnalysisService(
		service.AnalysisConfig{
			Enabled:           cfg.AI.Enabled,
			MockMode:          cfg.AI.MockMode,
			Configured:        cfg.AI.MockMode || cfg.OpenAI.APIKey != "",
			ExtractionTimeout: cfg.AI.ExtractionTimeout,
		},
		normalizer,
		limiter,
		ledger,
		extractor,
		engine,
		outcome.NewLogger(logger),
		logger,
	)
	logger.Info("Analysis pipeline ready", zap.String("model", model))

	// Background jobs
	scheduler := worker.NewScheduler(logger)
	if err := scheduler.Add(worker.BudgetCheckJob(cfg.Usage.BudgetCheckSchedule, ledger, logger)); err != nil {
		return err
	}
	if sweeper != nil {
		if err := scheduler.Add(worker.SweepJob(cfg.RateLimit.SweepSchedule, sweeper, logger)); err != nil {
			return err
		}
	}

	workers := worker.NewManager(logger)
	workers.Register(scheduler)
	if err := workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer workers.StopAll()

	server := httpServer.NewServer(httpServer.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Development:     cfg.Server.IsDevelopment(),
		Version:         cfg.Server.Version,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		CORSMaxAge:      cfg.CORS.MaxAge,
	}, analysis, ledger, logger)

	// Blocks until a signal arrives or the listener fails
	return server.Start(ctx)
}

func newUsageStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usage.Store, func(), error) {
	if cfg.Usage.Store != "sqlite" {
		logger.Info("Usage ledger kept in memory")
		return usage.NewMemoryStore(), func() {}, nil
	}

	if path := cfg.Database.Path; path != database.MemoryPath && !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(ctx, cfg.DatabaseConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.NewMigrator(db, logger).Run(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	return repository.NewUsageRepository(db.DB, logger), closeFn, nil
}

func newAlerter(cfg *config.Config, logger *zap.Logger) usage.Alerter {
	logAlerter := usage.NewLogAlerter(logger)
	if !cfg.Lark.Enabled() {
		return logAlerter
	}

	client := lark.NewClient(lark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		Timeout:   cfg.Lark.APITimeout,
	}, logger)
	logger.Info("Budget alerts will be posted to Lark", zap.String("chat_id", cfg.Lark.AlertChatID))
	return usage.MultiAlerter{logAlerter, lark.NewBudgetAlerter(client, cfg.Lark.AlertChatID, logger)}
}

func newLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, worker.Sweeper, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		l := ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window(), logger)
		return l, l, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	l := ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window(), cfg.Redis.KeyPrefix, logger)
	if err := l.Ping(ctx); err != nil {
		// The limiter fails open, so an unreachable Redis is not fatal
		logger.Warn("Redis rate limit backend unreachable at startup", zap.Error(err))
	}

	closeFn := func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	// Redis expires windows itself; nothing to sweep
	return l, nil, closeFn, nil
}

func newExtractor(cfg *config.Config, logger *zap.Logger) (port.DocumentExtractor, string, error) {
	if cfg.AI.MockMode {
		return mock.NewExtractor(0, logger), mock.ModelName, nil
	}

	prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load prompts: %w", err)
	}
	extractor := openai.NewExtractor(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		ImageDetail: cfg.OpenAI.ImageDetail,
	}, prompts, logger)
	return extractor, extractor.Model(), nil
}
