package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"slidebot/api"
	"slidebot/config"
	"slidebot/services"
	"slidebot/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownGrace = 30 * time.Second

// drainTimeout bounds the wait for in-flight jobs after cancellation. A
// canceled job may still finish a delivery, a status edit and a status
// delete, each bounded only by the transport timeout.
func drainTimeout(transportTimeout time.Duration) time.Duration {
	return shutdownGrace + 3*transportTimeout
}

func main() {
	logger := newLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	logger.Info("Starting slide conversion bot...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	files, err := services.NewFileStore(cfg.DownloadDir, cfg.OutputDir)
	if err != nil {
		logger.Fatal("Failed to prepare directories", zap.Error(err))
	}

	telegram, err := services.NewTelegramService(cfg.TelegramToken, cfg.TransportTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Telegram", zap.Error(err))
	}
	logger.Info("Authorized on Telegram", zap.String("username", telegram.Username()))

	if cfg.ObserverID == 0 {
		logger.Warn("ADMIN_ID not set or invalid, observer notifications disabled")
	}

	ctx := context.Background()
	var recorders worker.Recorders

	// Optional status mirror
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, status mirror disabled", zap.Error(err))
			redisClient.Close()
		} else {
			defer redisClient.Close()
			recorders = append(recorders, services.NewRedisStatusStore(redisClient, cfg.RedisPrefix, cfg.JobStatusTTL))
			logger.Info("Connected to Redis successfully")
		}
	}

	// Optional conversion history
	if cfg.DatabaseURL != "" {
		dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("Database unavailable, history disabled", zap.Error(err))
		} else if err := dbSvc.EnsureSchema(ctx); err != nil {
			logger.Warn("Database schema unavailable, history disabled", zap.Error(err))
			dbSvc.Close()
		} else {
			defer dbSvc.Close()
			recorders = append(recorders, dbSvc)
			logger.Info("Connected to database successfully")
		}
	}

	scheduler := worker.NewScheduler()
	deps := worker.PipelineDeps{
		Transport:        telegram,
		Files:            files,
		Converter:        services.NewLibreOfficeService(cfg.LibreOfficeCommand, files, cfg.ConversionTimeout, logger),
		Slot:             scheduler,
		Notifier:         worker.NewNotifier(telegram, cfg.ObserverID, logger),
		TransportTimeout: cfg.TransportTimeout,
		Logger:           logger,
	}
	if len(recorders) > 0 {
		deps.Recorder = recorders
	}
	if cfg.S3Bucket != "" {
		deps.Archiver = services.NewS3Service(cfg)
		logger.Info("Archiving results to S3", zap.String("bucket", cfg.S3Bucket))
	}

	pipeline := worker.NewPipeline(deps)
	limiter := worker.NewRateLimiter(cfg.UserRatePerMinute, cfg.UserRateBurst)
	dispatcher := worker.NewDispatcher(pipeline, limiter, cfg.ObserverID, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	health := api.NewServer(cfg.Port, scheduler, dispatcher, logger)
	health.Start()

	ctx, cancel := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		dispatcher.Run(ctx, telegram.Updates(ctx))
	}()

	logger.Info("Bot is ready to convert presentations",
		zap.String("engine", cfg.LibreOfficeCommand),
		zap.Duration("conversion_timeout", cfg.ConversionTimeout),
		zap.String("download_dir", cfg.DownloadDir),
		zap.String("output_dir", cfg.OutputDir))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping jobs...")
	case <-runDone:
		logger.Warn("Update stream ended, shutting down")
	}
	cancel()
	<-runDone

	// Wait for jobs to finish with timeout
	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All jobs stopped gracefully")
	case <-time.After(drainTimeout(cfg.TransportTimeout)):
		logger.Warn("Shutdown timeout, forcing exit")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Liveness endpoint shutdown failed", zap.Error(err))
	}

	logger.Info("Slide conversion bot stopped")
}

func newLogger(env, level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if strings.EqualFold(env, "development") {
		zcfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		if lvl, err := zap.ParseAtomicLevel(level); err == nil {
			zcfg.Level = lvl
		}
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
