package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-storefront/pkg/logger"

	"github.com/robfig/cron/v3"
)

const DefaultPollSchedule = "@every 30s"

var ErrPollerRunning = errors.New("count poller already running")

type Refresher interface {
	Refresh(ctx context.Context) error
}

// CountPoller refreshes the count cache on a cron schedule.
type CountPoller struct {
	cron      *cron.Cron
	refresher Refresher
	schedule  string
	timeout   time.Duration
	log       logger.Logger

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
}

func NewCountPoller(refresher Refresher, schedule string, timeout time.Duration, log logger.Logger) *CountPoller {
	if schedule == "" {
		schedule = DefaultPollSchedule
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CountPoller{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		refresher: refresher,
		schedule:  schedule,
		timeout:   timeout,
		log:       log,
	}
}

func (p *CountPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPollerRunning
	}

	p.log.Info("Starting count poller", "schedule", p.schedule)

	entry, err := p.cron.AddFunc(p.schedule, func() {
		p.poll(ctx)
	})
	if err != nil {
		return err
	}

	p.entry = entry
	p.cron.Start()
	p.running = true
	return nil
}

// Stop halts the schedule and waits for a running poll to finish.
func (p *CountPoller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}

	p.log.Info("Stopping count poller")
	<-p.cron.Stop().Done()
	// The entry is bound to the ctx passed to Start; a later Start registers its own.
	p.cron.Remove(p.entry)
	p.running = false
	return nil
}

func (p *CountPoller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.refresher.Refresh(runCtx); err != nil {
		p.log.Error("Scheduled count refresh failed", "error", err)
	}
}
