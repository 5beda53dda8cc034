package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/fundwatch/internal/services/session"
)

// StartEvents launches the WebSocket hub loop.
func (a *App) StartEvents() {
	go a.Events.Run()
}

// StartScheduler runs the startup cycle, then ticks the refresh scheduler on the configured
// interval and at every session boundary.
func (a *App) StartScheduler() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	a.schedulerDone = make(chan struct{})

	c := cron.New(cron.WithLocation(session.China))
	for _, spec := range boundarySpecs(a.Session) {
		spec := spec
		if _, err := c.AddFunc(spec, func() {
			a.Logger.Debug().Str("schedule", spec).Msg("Session boundary")
			a.Refresh.Tick(ctx, a.now())
		}); err != nil {
			cancel()
			return fmt.Errorf("register boundary job %q: %w", spec, err)
		}
	}
	c.Start()
	a.cron = c

	interval := a.Config.Refresh.GetInterval()
	go func() {
		defer close(a.schedulerDone)

		if err := a.Refresh.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn().Err(err).Msg("Startup refresh failed")
		}
		runTicker(ctx, interval, func() {
			a.Refresh.Tick(ctx, a.now())
		})
		a.Logger.Info().Msg("Refresh scheduler: stopped")
	}()

	a.Logger.Info().
		Dur("interval", interval).
		Int("boundary_jobs", len(c.Entries())).
		Msg("Refresh scheduler started")
	return nil
}

// StopScheduler cancels the ticker and cron jobs and waits for the loop to exit.
func (a *App) StopScheduler() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.cron != nil {
		<-a.cron.Stop().Done()
		a.cron = nil
	}
	if a.schedulerDone != nil {
		select {
		case <-a.schedulerDone:
		case <-time.After(10 * time.Second):
			a.Logger.Warn().Msg("Refresh scheduler did not stop in time")
		}
		a.schedulerDone = nil
	}
}

func runTicker(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// boundarySpecs returns weekday cron specs for each window boundary.
func boundarySpecs(s *session.Service) []string {
	morning, afternoon, evening, eveningEnd := s.Boundaries()
	var specs []string
	for _, m := range []int{morning, afternoon, evening, eveningEnd} {
		specs = append(specs, fmt.Sprintf("%d %d * * MON-FRI", m%60, m/60))
	}
	return specs
}
