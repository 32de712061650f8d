package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/nightbox/internal/api/rest"
	"github.com/fortuna/nightbox/internal/cache"
	"github.com/fortuna/nightbox/internal/config"
	"github.com/fortuna/nightbox/internal/ingest/apisports"
	"github.com/fortuna/nightbox/internal/logging"
	"github.com/fortuna/nightbox/internal/notify"
	"github.com/fortuna/nightbox/internal/pipeline"
	"github.com/fortuna/nightbox/internal/scheduler"
	"github.com/fortuna/nightbox/internal/store"
	"github.com/fortuna/nightbox/internal/store/repository"
)

const serviceName = "nightbox"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("load config failed", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSON(logging.ParseLevel(cfg.LogLevel)).With("service", serviceName)
	logging.SetDefault(logger)
	defer logger.Sync()

	logger.Info("starting", "addr", cfg.HTTPAddr, "report_hour", cfg.ReportHour, "zone", cfg.TimeZone.String())

	db, err := store.NewDatabase(cfg.DBURL, logger)
	if err != nil {
		logger.Error("connect database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	redisCache, err := connectRedis(cfg.RedisURL, logger)
	if err != nil {
		logger.Error("connect redis failed", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	settings := repository.NewSettingsRepository(db)
	roster := repository.NewRosterRepository(db)

	client := apisports.NewClient(apisports.ClientConfig{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Logger:  logger,
	})
	resolver := apisports.NewResolver(apisports.ResolverConfig{
		Client: client,
		Zone:   cfg.TimeZone,
		Logger: logger,
	})

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Logger:   logger,
	})

	runner := pipeline.NewRunner(pipeline.Config{
		Resolver:  resolver,
		Roster:    roster,
		Settings:  settings,
		State:     redisCache,
		Notifier:  mailer,
		OutputDir: cfg.OutputDir,
		Logger:    logger,
	})

	hour, err := settings.ReportHour(ctx, cfg.ReportHour)
	if err != nil {
		logger.Warn("loading report hour setting failed", "error", err)
		hour = cfg.ReportHour
	}
	sched := scheduler.NewOrchestrator(func(ctx context.Context) error {
		_, err := runner.Run(ctx)
		return err
	}, scheduler.Config{
		ReportHour: hour,
		Zone:       cfg.TimeZone,
		Logger:     logger,
	})
	go sched.Start(ctx)

	handler := rest.NewHandler(rest.HandlerConfig{
		Settings: settings,
		Snaps:    redisCache,
		Notifier: mailer,
		Trigger:  sched.Trigger,
		Logger:   logger,
	})
	server := rest.NewServer(cfg.HTTPAddr, handler, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()
	logger.Info("http server listening", "addr", cfg.HTTPAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("stopped")
}

// connectRedis retries for a while so the service survives Redis
// coming up after it in a compose stack.
func connectRedis(url string, logger *logging.Logger) (*cache.RedisCache, error) {
	const maxRetries = 30
	const retryDelay = 2 * time.Second

	var redisCache *cache.RedisCache
	var err error
	for i := 0; i < maxRetries; i++ {
		redisCache, err = cache.NewRedisCache(url)
		if err == nil {
			return redisCache, nil
		}
		if i < maxRetries-1 {
			logger.Warn("redis connection failed", "attempt", i+1, "error", err)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}
