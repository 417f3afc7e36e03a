package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerIntervalOptions(t *testing.T) {
	s := NewScheduler(nil, nil, nil, zerolog.Nop(),
		WithLearningInterval(time.Minute),
		WithOutcomeInterval(30*time.Second),
		WithRetrainInterval(2*time.Hour),
	)
	if s.learningInterval != time.Minute {
		t.Errorf("learning interval = %v, want 1m", s.learningInterval)
	}
	if s.outcomeInterval != 30*time.Second {
		t.Errorf("outcome interval = %v, want 30s", s.outcomeInterval)
	}
	if s.retrainInterval != 2*time.Hour {
		t.Errorf("retrain interval = %v, want 2h", s.retrainInterval)
	}

	// Non-positive durations keep the defaults.
	d := NewScheduler(nil, nil, nil, zerolog.Nop(),
		WithLearningInterval(0),
		WithOutcomeInterval(-time.Second),
	)
	if d.learningInterval != DefaultLearningInterval {
		t.Errorf("zero learning interval must keep default, got %v", d.learningInterval)
	}
	if d.outcomeInterval != DefaultOutcomeInterval {
		t.Errorf("negative outcome interval must keep default, got %v", d.outcomeInterval)
	}
	if d.retrainInterval != DefaultRetrainInterval {
		t.Errorf("untouched retrain interval must keep default, got %v", d.retrainInterval)
	}
}

func TestSchedulerLoopStopsOnCancel(t *testing.T) {
	s := NewScheduler(nil, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		s.loop(ctx, 5*time.Millisecond, "test_loop", func(context.Context) {
			select {
			case ran <- struct{}{}:
			default:
			}
		})
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop never ticked")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}
