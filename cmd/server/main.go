package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailflow/internal/api"
	"github.com/ignite/mailflow/internal/config"
	"github.com/ignite/mailflow/internal/contact"
	"github.com/ignite/mailflow/internal/generation"
	"github.com/ignite/mailflow/internal/mailing"
	"github.com/ignite/mailflow/internal/orchestrator"
	"github.com/ignite/mailflow/internal/pipeline"
	"github.com/ignite/mailflow/internal/pkg/logger"
	"github.com/ignite/mailflow/internal/repository/postgres"
	"github.com/ignite/mailflow/internal/scheduler"
)

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(parseLevel(cfg.LogLevel))
	log := logger.Component("server")

	db, err := postgres.OpenDB(cfg.Database.URL,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Minute)
	if err != nil {
		log.Error("connecting to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	queueRepo := postgres.NewQueueRepo(db)
	templateRepo := postgres.NewTemplateRepo(db)
	memberRepo := postgres.NewMemberRepo(db)
	execLogRepo := postgres.NewExecutionLogRepo(db)

	// Optional contact guard; pipelines exclude nobody without it.
	var guard pipeline.ContactGuard
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unavailable, contact guard disabled", "error", err)
		} else {
			window := time.Duration(cfg.Pipelines.ContactExclusionDays) * 24 * time.Hour
			guard = contact.NewRedisGuard(rdb, window)
			defer rdb.Close()
		}
	}

	var generator generation.ContentGenerator = generation.Disabled{}
	if cfg.Bedrock.Enabled {
		bedrock, err := generation.NewBedrockGenerator(context.Background(), cfg.Bedrock.ModelID, cfg.Bedrock.Region)
		if err != nil {
			log.Error("initializing bedrock", "error", err)
			os.Exit(1)
		}
		generator = bedrock
	} else {
		log.Warn("bedrock disabled, ai pipelines will fail generation")
	}

	registry, err := pipeline.NewRegistry(pipeline.Deps{
		Members:       memberRepo,
		Queue:         queueRepo,
		Templates:     templateRepo,
		Generator:     generator,
		Contacts:      guard,
		MaxRecipients: cfg.Pipelines.MaxRecipientsPerRun,
	}, pipeline.Catalog())
	if err != nil {
		log.Error("building pipeline registry", "error", err)
		os.Exit(1)
	}

	if err := pipeline.SeedPredefinedTemplates(context.Background(), templateRepo); err != nil {
		log.Error("seeding predefined templates", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(registry, execLogRepo)

	genScheduler := scheduler.NewGenerationScheduler(queueRepo, templateRepo, registry, scheduler.GenerationConfig{
		ScanInterval: cfg.Pipelines.GenerationScanInterval(),
		BatchSize:    cfg.Pipelines.GenerationBatchSize,
		MaxRetries:   cfg.Pipelines.MaxGenerationRetries,
		ItemDelay:    cfg.Pipelines.ItemDelay(),
	})

	var sender mailing.EmailSender
	sesSender, err := mailing.NewSESSender(cfg.SES.AccessKey, cfg.SES.SecretKey,
		cfg.SES.Region, cfg.SES.FromName, cfg.SES.FromEmail)
	if err != nil {
		log.Error("initializing ses sender", "error", err)
		os.Exit(1)
	}
	sender = sesSender

	dispatchScheduler := scheduler.NewDispatchScheduler(queueRepo, templateRepo, memberRepo,
		mailing.NewRenderer(), sender, guard, scheduler.DispatchConfig{
			ScanInterval: cfg.Pipelines.DispatchScanInterval(),
			BatchSize:    cfg.Pipelines.DispatchBatchSize,
			MaxRetries:   cfg.Pipelines.MaxSendRetries,
			AutoRetry:    cfg.Pipelines.AutoRetrySends,
			RetryBackoff: time.Duration(cfg.Pipelines.SendRetryBackoffMinutes) * time.Minute,
			SendDelay:    cfg.Pipelines.SendDelay(),
		})

	if err := genScheduler.Start(); err != nil {
		log.Error("starting generation scheduler", "error", err)
		os.Exit(1)
	}
	if err := dispatchScheduler.Start(); err != nil {
		log.Error("starting dispatch scheduler", "error", err)
		os.Exit(1)
	}

	// Daily retention sweep for execution logs.
	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-retentionCtx.Done():
				return
			case <-ticker.C:
				if n, err := orch.PruneHistory(retentionCtx, cfg.Pipelines.ExecutionLogRetentionDays); err != nil {
					log.Warn("pruning execution logs", "error", err)
				} else if n > 0 {
					log.Info("pruned execution logs", "removed", n)
				}
			}
		}
	}()

	handlers := api.NewHandlers(orch, registry, genScheduler, dispatchScheduler, queueRepo)
	router := api.SetupRoutes(handlers)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Info("shutting down")
	retentionCancel()
	genScheduler.Stop()
	dispatchScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
	log.Info("stopped")
}

func parseLevel(s string) logger.Level {
	switch s {
	case "debug":
		return logger.DEBUG
	case "warn":
		return logger.WARN
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}
