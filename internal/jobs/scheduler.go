package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) ([]models.MediaFile, error)
}

// Scheduler runs the retention sweep on a cron schedule with a seconds field.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	cfg     config.RetentionConfig
	log     zerolog.Logger
}

func NewScheduler(sweeper Sweeper, cfg config.RetentionConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:    c,
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
	}
}

// Start is a no-op when no maximum age is configured.
func (s *Scheduler) Start() error {
	if s.cfg.MaxAge <= 0 {
		s.log.Info().Msg("retention sweep disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.RunSweep); err != nil {
		return fmt.Errorf("schedule retention sweep %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.cfg.Schedule).Dur("max_age", s.cfg.MaxAge).Msg("retention sweep scheduled")
	return nil
}

// Stop halts scheduling and waits for a running sweep until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.sweeper.Sweep(ctx, s.cfg.MaxAge)
	if err != nil {
		s.log.Error().Err(err).Int("removed", len(removed)).Msg("retention sweep failed")
		return
	}
	s.log.Info().Int("removed", len(removed)).Msg("retention sweep finished")
}
