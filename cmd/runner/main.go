package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/kaiwen/pricewatch/internal/config"
	"github.com/kaiwen/pricewatch/internal/keepa"
	"github.com/kaiwen/pricewatch/internal/logger"
	"github.com/kaiwen/pricewatch/internal/repository"
	"github.com/kaiwen/pricewatch/internal/service"
)

// runner creates and runs one lookup job over the current UPC store, then
// polls until the job settles. Useful for cron-less environments and manual
// reruns.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "pricewatch-runner",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	name := flag.String("name", "", "Job name (defaults to a timestamped name)")
	configPath := flag.String("config", "", "Path to config file")
	pollInterval := flag.Duration("poll", 5*time.Second, "Status poll interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

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

	jobService := service.NewJobService(
		jobRepo,
		batchRepo,
		alertRepo,
		lookup,
		service.NewPriceAnalyzer(cfg.Alerts.HistoricalDays),
		service.LogNotifier{},
		service.NewReportService(alertRepo, nil),
		&service.JobServiceConfig{
			BatchSize:     cfg.Batch.Size,
			Workers:       cfg.Batch.Workers,
			LookupTimeout: cfg.Keepa.Timeout,
		},
	)

	ctx := context.Background()

	upcs, err := upcRepo.ListCodes(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to snapshot UPC store")
	}

	jobName := *name
	if jobName == "" {
		jobName = fmt.Sprintf("Manual Report - %s", time.Now().UTC().Format("2006-01-02 15:04"))
	}

	job, err := jobService.CreateJob(ctx, jobName, upcs)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create job")
	}
	if err := jobService.Trigger(ctx, job.ID); err != nil {
		appLogger.WithError(err).Fatal("Failed to trigger job")
	}

	appLogger.WithFields(logger.Fields{
		"job_id":  job.ID,
		"batches": job.TotalBatches,
		"upcs":    len(upcs),
	}).Info("Job triggered, polling for completion")

	for {
		time.Sleep(*pollInterval)

		status, err := jobService.GetStatus(ctx, job.ID)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to poll job status")
		}

		appLogger.WithFields(logger.Fields{
			"status":   status.Status,
			"progress": fmt.Sprintf("%d%%", status.ProgressPercent),
			"batches":  fmt.Sprintf("%d/%d", status.CompletedBatches, status.TotalBatches),
		}).Info("Job progress")

		if status.Status.IsTerminal() {
			alerts, err := alertRepo.CountByJob(ctx, job.ID)
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to count alerts")
			}
			appLogger.WithFields(logger.Fields{
				"status": status.Status,
				"alerts": alerts,
			}).Info("Job finished")
			return
		}
	}
}
