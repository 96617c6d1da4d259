package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/acalderon/portfolio-valuation/config"
	"github.com/acalderon/portfolio-valuation/data"
	"github.com/acalderon/portfolio-valuation/data/cache"
	"github.com/acalderon/portfolio-valuation/data/repository/postgres"
	"github.com/acalderon/portfolio-valuation/internal/etl/workbookLoader"
	"github.com/acalderon/portfolio-valuation/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/acalderon/portfolio-valuation/internal/externalApi/quotesApi"
	"github.com/acalderon/portfolio-valuation/internal/reportGenerator/xlsxGenerator"
	"github.com/acalderon/portfolio-valuation/internal/scheduler"
	"github.com/acalderon/portfolio-valuation/internal/service/portfolioService"
	"github.com/acalderon/portfolio-valuation/internal/transport/rest"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)

	loader := workbookLoader.New(cfg)

	reportGenerator := xlsxGenerator.New()

	var quotesApiClient portfolioService.QuotesApi
	if cfg.API.QuotesApi.Enabled {
		quotesApiClient = quotesApi.New(cfg)
	}

	var cloudStorage portfolioService.CloudStorage
	var driveApi *googleDriveApi.GoogleDriveApi
	if cfg.GoogleDrive.Enabled {
		driveApi = googleDriveApi.New(ctx, cfg)
		cloudStorage = driveApi
	}

	portfolioSrv := portfolioService.New(cfg, pgRepo, redisCache, loader, quotesApiClient, reportGenerator, cloudStorage)

	sched := scheduler.New()
	if cfg.API.QuotesApi.Enabled {
		sched.NewCrontabJob("refresh quotes", portfolioSrv.RefreshQuotes, cfg.Jobs.QuotesRefreshCrontab, false)
	}
	if driveApi != nil {
		sched.NewIntervalJob("cleanup drive reports", driveApi.DeleteOldFiles, cfg.Jobs.DriveCleanupInterval, false)
	}
	sched.Start()
	defer sched.Stop()

	controller := rest.NewController(portfolioSrv)
	server := rest.NewServer(cfg, controller)

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("http server stopped", slog.String("err", err.Error()))
		}
	}()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.String("err", err.Error()))
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
