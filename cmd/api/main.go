package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaiwen/pricewatch/internal/api"
	"github.com/kaiwen/pricewatch/internal/api/middleware"
	"github.com/kaiwen/pricewatch/internal/config"
	"github.com/kaiwen/pricewatch/internal/keepa"
	"github.com/kaiwen/pricewatch/internal/logger"
	"github.com/kaiwen/pricewatch/internal/repository"
	"github.com/kaiwen/pricewatch/internal/service"
	"github.com/kaiwen/pricewatch/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	upcRepo := repository.NewUPCRepository(db)
	jobRepo := repository.NewJobRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	lookup := keepa.NewClient(&keepa.Config{
		APIKey:         cfg.Keepa.APIKey,
		APIURL:         cfg.Keepa.APIURL,
		Timeout:        cfg.Keepa.Timeout,
		RequestsPerSec: cfg.Keepa.RequestsPerSec,
		MaxRetries:     cfg.Keepa.MaxRetries,
		RetryWaitTime:  cfg.Keepa.RetryWaitTime,
		StatsDays:      cfg.Keepa.StatsDays,
		AmazonDomainID: cfg.Keepa.AmazonDomainID,
	})

	// Report archive is optional; without it reports stay download-only.
	var store storage.ObjectStorage
	if cfg.Storage.Enabled {
		s3Store, err := storage.NewS3Storage(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := s3Store.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		store = s3Store
	}

	var notifier service.Notifier = service.LogNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = service.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}

	reporter := service.NewReportService(alertRepo, store)
	analyzer := service.NewPriceAnalyzer(cfg.Alerts.HistoricalDays)

	jobService := service.NewJobService(
		jobRepo,
		batchRepo,
		alertRepo,
		lookup,
		analyzer,
		notifier,
		reporter,
		&service.JobServiceConfig{
			BatchSize:     cfg.Batch.Size,
			Workers:       cfg.Batch.Workers,
			LookupTimeout: cfg.Keepa.Timeout,
		},
	)

	var scheduler *service.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = service.NewScheduler(jobService, upcRepo, service.ScheduleSettings{
			Timezone: cfg.Scheduler.Timezone,
			Hour:     cfg.Scheduler.Hour,
			Minute:   cfg.Scheduler.Minute,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to create scheduler")
		}
		if err := scheduler.Start(); err != nil {
			appLogger.WithError(err).Fatal("Failed to start scheduler")
		}
		defer scheduler.Stop()
	}

	router := api.SetupRouter(api.RouterDeps{
		Jobs:      jobService,
		Reporter:  reporter,
		Scheduler: scheduler,
		UPCRepo:   upcRepo,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
