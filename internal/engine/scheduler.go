package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/learning"
	"github.com/mertipekreal/merf-stock-engine/internal/metrics"
)

// Scheduler intervals.
const (
	DefaultLearningInterval = 15 * time.Minute
	DefaultOutcomeInterval  = 10 * time.Minute
	DefaultRetrainInterval  = 24 * time.Hour
)

// Scheduler drives the background maintenance loops: outcome resolution,
// learning batches, and periodic retraining.
type Scheduler struct {
	service *Service
	learner *learning.Engine
	trainer *Trainer
	logger  zerolog.Logger

	learningInterval time.Duration
	outcomeInterval  time.Duration
	retrainInterval  time.Duration
}

// SchedulerOption overrides one of the loop intervals. Non-positive
// durations keep the default.
type SchedulerOption func(*Scheduler)

// WithLearningInterval sets the learning-batch cadence.
func WithLearningInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.learningInterval = d
		}
	}
}

// WithOutcomeInterval sets the outcome-resolution cadence.
func WithOutcomeInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.outcomeInterval = d
		}
	}
}

// WithRetrainInterval sets the periodic retrain cadence.
func WithRetrainInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.retrainInterval = d
		}
	}
}

// NewScheduler creates a scheduler with default intervals.
func NewScheduler(service *Service, learner *learning.Engine, trainer *Trainer, logger zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		service:          service,
		learner:          learner,
		trainer:          trainer,
		logger:           logger.With().Str("component", "scheduler").Logger(),
		learningInterval: DefaultLearningInterval,
		outcomeInterval:  DefaultOutcomeInterval,
		retrainInterval:  DefaultRetrainInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background loops. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.outcomeInterval, "outcome_resolution", func(ctx context.Context) {
		if _, err := s.service.ResolveOutcomes(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Outcome resolution failed")
		}
	})

	go s.loop(ctx, s.learningInterval, "learning_batch", func(ctx context.Context) {
		result, err := s.learner.ProcessOutcomes(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("Learning batch failed")
			return
		}
		metrics.LearningProcessedTotal.Add(float64(result.Processed))
	})

	go s.loop(ctx, s.retrainInterval, "retrain", func(ctx context.Context) {
		if _, err := s.trainer.Train(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled retrain failed")
		}
	})

	s.logger.Info().
		Dur("learning_interval", s.learningInterval).
		Dur("outcome_interval", s.outcomeInterval).
		Dur("retrain_interval", s.retrainInterval).
		Msg("Background scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("loop", name).Msg("Background loop stopped")
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
