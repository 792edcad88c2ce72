package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"prompt-guess-game/logger"
	"prompt-guess-game/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// RoundRotator is the part of RoundService the scheduler drives.
type RoundRotator interface {
	GetActiveRound(ctx context.Context) (*models.Round, error)
	CreateAndActivateRound(ctx context.Context, difficulty string) (*models.Round, error)
}

type SchedulerConfig struct {
	RoundDuration time.Duration
	CheckInterval time.Duration
}

// Scheduler keeps exactly one round active, rotating it when it expires.
type Scheduler struct {
	rounds RoundRotator
	cfg    SchedulerConfig
	clock  clockwork.Clock
	log    zerolog.Logger

	mu           sync.Mutex
	cron         gocron.Scheduler
	cancel       context.CancelFunc
	running      bool
	nextRotation *time.Time

	// rotateMu serializes rotations from the periodic check and manual triggers.
	rotateMu sync.Mutex
}

func NewScheduler(rounds RoundRotator, cfg SchedulerConfig, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		rounds: rounds,
		cfg:    cfg,
		clock:  clock,
		log:    logger.Component("scheduler"),
	}
}

// Start makes sure a round is active and begins the periodic expiry check.
// Calling Start on a running scheduler does nothing. A failed initial
// rotation is logged and retried on the next check.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	cron, err := gocron.NewScheduler(gocron.WithClock(s.clock), gocron.WithLocation(time.UTC))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	_, err = cron.NewJob(
		gocron.DurationJob(s.cfg.CheckInterval),
		gocron.NewTask(func() { s.tick(runCtx) }),
		gocron.WithName("round-rotation-check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = cron.Shutdown()
		s.mu.Unlock()
		return fmt.Errorf("failed to register rotation check: %w", err)
	}
	s.cron = cron
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.tick(runCtx)
	cron.Start()

	s.log.Info().
		Dur("round_duration", s.cfg.RoundDuration).
		Dur("check_interval", s.cfg.CheckInterval).
		Msg("⏰ round scheduler started")
	return nil
}

// Stop halts the periodic check. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.cancel()
	err := s.cron.Shutdown()
	s.running = false
	s.cron = nil
	s.nextRotation = nil
	s.log.Info().Msg("round scheduler stopped")
	return err
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRotationTime is when the active round expires, or nil while stopped or
// before the first round is known.
func (s *Scheduler) NextRotationTime() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.nextRotation == nil {
		return nil
	}
	t := *s.nextRotation
	return &t
}

// RotateRound replaces the active round immediately.
func (s *Scheduler) RotateRound(ctx context.Context) (*models.Round, error) {
	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()
	return s.rotate(ctx)
}

func (s *Scheduler) rotate(ctx context.Context) (*models.Round, error) {
	round, err := s.rounds.CreateAndActivateRound(ctx, "")
	if err != nil {
		return nil, err
	}
	s.setNext(round.ExpiresAt(s.cfg.RoundDuration))
	return round, nil
}

// tick is one expiry check. Errors are logged; the next tick retries.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("rotation check panicked")
		}
	}()
	if ctx.Err() != nil {
		return
	}

	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	active, err := s.rounds.GetActiveRound(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load active round")
		return
	}

	now := s.clock.Now()
	var expires *time.Time
	if active != nil {
		expires = active.ExpiresAt(s.cfg.RoundDuration)
	}

	switch {
	case active == nil:
		s.log.Info().Msg("no active round, creating one")
	case expires == nil:
		s.log.Warn().Str("round_id", active.ID).Msg("active round has no start time, rotating")
	case now.Before(*expires):
		s.setNext(expires)
		return
	default:
		s.log.Info().Str("round_id", active.ID).Time("expired_at", *expires).Msg("active round expired")
	}

	if _, err := s.rotate(ctx); err != nil {
		s.log.Error().Err(err).Msg("❌ rotation failed, keeping current round")
	}
}

func (s *Scheduler) setNext(t *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRotation = t
}
