// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

// DueLister finds scheduled campaigns whose start time has passed.
type DueLister interface {
	ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error)
}

// Trigger starts a campaign delivery; false means it was not queued.
type Trigger interface {
	Trigger(campaignID int) bool
}

// Scheduler periodically starts scheduled campaigns that are due.
type Scheduler struct {
	Campaigns DueLister
	Trigger   Trigger
	Now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func New(campaigns DueLister, trigger Trigger) *Scheduler {
	return &Scheduler{Campaigns: campaigns, Trigger: trigger}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start runs RunOnce on the given cron spec (e.g. "@every 1m") until Stop.
func (s *Scheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	log.Printf("✅ [scheduler] checking for due campaigns (%s)", spec)
	return nil
}

// Stop halts the cron loop and waits for a running check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// RunOnce triggers every due campaign and returns how many were queued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	due, err := s.Campaigns.ListDueScheduled(ctx, s.now())
	if err != nil {
		log.Printf("⚠️ [scheduler] listing due campaigns: %v", err)
		return 0
	}

	queued := 0
	for _, c := range due {
		if s.Trigger.Trigger(c.ID) {
			queued++
			log.Printf("📩 [scheduler] campaign %d due, delivery queued", c.ID)
		}
	}
	return queued
}
