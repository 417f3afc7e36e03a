package learning

import "context"

// Repository is the persistence contract the learning loop needs. The
// production implementation lives in the database package; tests substitute
// an in-memory fake.
type Repository interface {
	// ClaimCompletedPredictions atomically selects up to limit predictions
	// whose status is correct/incorrect and which have not been processed,
	// stamps their learning_processed_at, and returns them. The claim is a
	// conditional update so two concurrent batch runs can never double-count
	// the same prediction.
	ClaimCompletedPredictions(ctx context.Context, limit int) ([]*PredictionRecord, error)

	// GetLayerHistory returns the history row for the key, or nil when none
	// exists yet.
	GetLayerHistory(ctx context.Context, layer Layer, regime, horizon string) (*LayerHistory, error)

	// UpsertLayerHistory inserts or replaces the history row for its key.
	UpsertLayerHistory(ctx context.Context, h *LayerHistory) error

	// ListLayerHistories returns history rows, filtered by regime and/or
	// horizon when non-empty.
	ListLayerHistories(ctx context.Context, regime, horizon string) ([]*LayerHistory, error)

	// GetPattern returns the named pattern row, or nil when none exists.
	GetPattern(ctx context.Context, name string) (*Pattern, error)

	// UpsertPattern inserts or replaces the pattern row.
	UpsertPattern(ctx context.Context, p *Pattern) error

	// ListPatterns returns all pattern rows.
	ListPatterns(ctx context.Context) ([]*Pattern, error)

	// ClearLearningState wipes all learning-history and pattern rows and
	// clears every prediction's learning_processed_at stamp. Used only by
	// the reset-and-recompute maintenance operation.
	ClearLearningState(ctx context.Context) error

	// CountCompletedPredictions counts predictions with a non-pending status.
	CountCompletedPredictions(ctx context.Context) (int, error)
}
