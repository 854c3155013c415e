package app

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/config"
	"github.com/eb2tech/aura/internal/device"
	"github.com/eb2tech/aura/internal/scheduler"
)

// SchedulerService owns the loop that runs every device job and every
// settings request.
type SchedulerService struct {
	Loop    *scheduler.Loop
	started atomic.Bool
	done    chan struct{}
}

// NewSchedulerService creates the loop and registers the device jobs.
func NewSchedulerService(cfg *config.Config, dev *device.Device, observer scheduler.Observer) *SchedulerService {
	sc := cfg.Scheduler
	loop := scheduler.New(scheduler.Options{
		Tick:     sc.Tick.Duration(),
		Budget:   sc.Budget.Duration(),
		Observer: observer,
	})
	dev.Schedule(loop, device.Intervals{
		Clock:   sc.ClockInterval.Duration(),
		Dimming: sc.DimmingInterval.Duration(),
		Weather: sc.WeatherInterval.Duration(),
	})

	return &SchedulerService{
		Loop: loop,
		done: make(chan struct{}),
	}
}

// Do runs fn on the loop.
func (s *SchedulerService) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Loop.Do(ctx, fn)
}

// Ready reports whether the loop is iterating.
func (s *SchedulerService) Ready() bool {
	return s.Loop.Running()
}

// Start runs the loop in the background.
func (s *SchedulerService) Start(ctx context.Context) {
	s.started.Store(true)
	go func() {
		defer close(s.done)
		if err := s.Loop.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduler error")
		}
	}()
}

// Wait blocks until a started loop has returned.
func (s *SchedulerService) Wait() {
	if s.started.Load() {
		<-s.done
	}
}
