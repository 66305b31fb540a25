package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Refresher is the part of the coordinator the scheduler drives.
type Refresher interface {
	RefreshSaved(ctx context.Context, maxAge time.Duration) (int, error)
}

// Scheduler periodically refreshes the weather of saved locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	maxAge    time.Duration
	backoff   BackoffConfig
}

// New creates a new Scheduler. Saved locations whose snapshot is younger
// than maxAge are left alone.
func New(refresher Refresher, interval, maxAge time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		interval:  interval,
		maxAge:    maxAge,
		backoff:   DefaultBackoff,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		log.Println("scheduler: refresh interval is zero; background refresh disabled")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	_, err := s.scheduler.Every(minutes).Minutes().WaitForSchedule().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) run() {
	log.Println("scheduler: running weather refresh job")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	err := Retry(ctx, s.backoff, func(ctx context.Context) error {
		failed, err := s.refresher.RefreshSaved(ctx, s.maxAge)
		if failed > 0 {
			log.Printf("scheduler: %d location(s) failed to refresh", failed)
		}
		return err
	})
	if err != nil {
		log.Printf("scheduler: refresh job failed: %v", err)
		return
	}
	log.Println("scheduler: completed weather refresh job")
}
