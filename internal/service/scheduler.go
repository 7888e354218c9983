package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kaiwen/pricewatch/internal/logger"
	"github.com/kaiwen/pricewatch/internal/repository"
)

// ScheduleSettings describe the daily trigger: local wall-clock time in the
// given IANA timezone.
type ScheduleSettings struct {
	Timezone string `json:"timezone"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
}

func (s ScheduleSettings) validate() (*time.Location, error) {
	if s.Hour < 0 || s.Hour > 23 {
		return nil, fmt.Errorf("hour must be in [0,23], got %d", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return nil, fmt.Errorf("minute must be in [0,59], got %d", s.Minute)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Scheduler fires one lookup job per day at a configurable local time. It
// snapshots the UPC store at fire time and skips the run when the store is
// empty.
type Scheduler struct {
	jobs    *JobService
	upcRepo *repository.UPCRepository

	mu       sync.Mutex
	settings ScheduleSettings
	loc      *time.Location
	cron     *cron.Cron

	now func() time.Time
}

// NewScheduler creates a scheduler with the given settings. Start must be
// called before any run fires.
func NewScheduler(jobs *JobService, upcRepo *repository.UPCRepository, settings ScheduleSettings) (*Scheduler, error) {
	loc, err := settings.validate()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		jobs:     jobs,
		upcRepo:  upcRepo,
		settings: settings,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Start begins firing daily runs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked()
}

// Stop halts the cron loop. In-flight jobs keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// Settings returns the current schedule.
func (s *Scheduler) Settings() ScheduleSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings validates and applies a new schedule. When the scheduler is
// running the cron entry is replaced, so the next fire follows the new time.
func (s *Scheduler) UpdateSettings(settings ScheduleSettings) error {
	loc, err := settings.validate()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.loc = loc
	if s.cron == nil {
		return nil
	}
	s.cron.Stop()
	s.cron = nil
	return s.scheduleLocked()
}

// NextRun computes the next fire time: today at the configured local time if
// still ahead, otherwise the same time tomorrow.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.settings.Hour, s.settings.Minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) scheduleLocked() error {
	c := cron.New(cron.WithLocation(s.loc))
	expr := fmt.Sprintf("%d %d * * *", s.settings.Minute, s.settings.Hour)
	if _, err := c.AddFunc(expr, s.fire); err != nil {
		return fmt.Errorf("failed to schedule daily run: %w", err)
	}
	c.Start()
	s.cron = c

	logger.GetDefault().Infof("Scheduler armed: daily at %02d:%02d %s",
		s.settings.Hour, s.settings.Minute, s.settings.Timezone)
	return nil
}

// fire snapshots the UPC store and runs one job through the normal
// create-and-trigger path.
func (s *Scheduler) fire() {
	s.mu.Lock()
	loc := s.loc
	tz := s.settings.Timezone
	s.mu.Unlock()

	ctx := logger.SetComponent(context.Background(), "scheduler")

	upcs, err := s.upcRepo.ListCodes(ctx)
	if err != nil {
		logger.CtxError(ctx, "Failed to snapshot UPC store: %v", err)
		return
	}
	if len(upcs) == 0 {
		logger.CtxWarn(ctx, "UPC store is empty, skipping scheduled run")
		return
	}

	name := fmt.Sprintf("Daily Keepa Report - %s (%s)",
		s.now().In(loc).Format("2006-01-02 15:04"), tz)

	job, err := s.jobs.CreateJob(ctx, name, upcs)
	if err != nil {
		logger.CtxError(ctx, "Failed to create scheduled job: %v", err)
		return
	}
	if err := s.jobs.Trigger(ctx, job.ID); err != nil {
		logger.CtxError(ctx, "Failed to trigger scheduled job %s: %v", job.ID, err)
		return
	}
	logger.CtxInfo(ctx, "Scheduled job %s (%q) triggered over %d UPCs", job.ID, name, len(upcs))
}
