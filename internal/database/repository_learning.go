package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mertipekreal/merf-stock-engine/internal/learning"
)

// GetLayerHistory retrieves one learning-history row, or nil when the
// (layer, regime, horizon) combination has never been updated.
func (r *Repository) GetLayerHistory(ctx context.Context, layer learning.Layer, regime, horizon string) (*learning.LayerHistory, error) {
	query := `
		SELECT layer, regime, horizon, total_predictions, correct_predictions,
			accuracy, rolling_accuracy, avg_score_correct, avg_score_incorrect,
			weight_adjustment, updated_at
		FROM layer_learning_history
		WHERE layer = $1 AND regime = $2 AND horizon = $3`

	var h learning.LayerHistory
	err := r.db.Pool.QueryRow(ctx, query, layer, regime, horizon).Scan(
		&h.Layer, &h.Regime, &h.Horizon, &h.TotalPredictions, &h.CorrectPredictions,
		&h.Accuracy, &h.RollingAccuracy, &h.AvgScoreCorrect, &h.AvgScoreIncorrect,
		&h.WeightAdjustment, &h.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// UpsertLayerHistory inserts or replaces a learning-history row
func (r *Repository) UpsertLayerHistory(ctx context.Context, h *learning.LayerHistory) error {
	query := `
		INSERT INTO layer_learning_history (
			layer, regime, horizon, total_predictions, correct_predictions,
			accuracy, rolling_accuracy, avg_score_correct, avg_score_incorrect,
			weight_adjustment, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (layer, regime, horizon) DO UPDATE SET
			total_predictions = EXCLUDED.total_predictions,
			correct_predictions = EXCLUDED.correct_predictions,
			accuracy = EXCLUDED.accuracy,
			rolling_accuracy = EXCLUDED.rolling_accuracy,
			avg_score_correct = EXCLUDED.avg_score_correct,
			avg_score_incorrect = EXCLUDED.avg_score_incorrect,
			weight_adjustment = EXCLUDED.weight_adjustment,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Pool.Exec(ctx, query,
		h.Layer, h.Regime, h.Horizon, h.TotalPredictions, h.CorrectPredictions,
		h.Accuracy, h.RollingAccuracy, h.AvgScoreCorrect, h.AvgScoreIncorrect,
		h.WeightAdjustment, h.UpdatedAt,
	)
	return err
}

// ListLayerHistories retrieves history rows, optionally filtered by regime
// and horizon. Empty filters match all rows.
func (r *Repository) ListLayerHistories(ctx context.Context, regime, horizon string) ([]*learning.LayerHistory, error) {
	query := `
		SELECT layer, regime, horizon, total_predictions, correct_predictions,
			accuracy, rolling_accuracy, avg_score_correct, avg_score_incorrect,
			weight_adjustment, updated_at
		FROM layer_learning_history
		WHERE ($1 = '' OR regime = $1)
		AND ($2 = '' OR horizon = $2)
		ORDER BY layer, regime, horizon`

	rows, err := r.db.Pool.Query(ctx, query, regime, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []*learning.LayerHistory
	for rows.Next() {
		var h learning.LayerHistory
		if err := rows.Scan(
			&h.Layer, &h.Regime, &h.Horizon, &h.TotalPredictions, &h.CorrectPredictions,
			&h.Accuracy, &h.RollingAccuracy, &h.AvgScoreCorrect, &h.AvgScoreIncorrect,
			&h.WeightAdjustment, &h.UpdatedAt,
		); err != nil {
			return nil, err
		}
		histories = append(histories, &h)
	}
	return histories, rows.Err()
}

// GetPattern retrieves one pattern row by name, or nil when absent
func (r *Repository) GetPattern(ctx context.Context, name string) (*learning.Pattern, error) {
	query := `
		SELECT name, description, occurrences, successes, success_rate, active, updated_at
		FROM prediction_patterns WHERE name = $1`

	var p learning.Pattern
	err := r.db.Pool.QueryRow(ctx, query, name).Scan(
		&p.Name, &p.Description, &p.Occurrences, &p.Successes,
		&p.SuccessRate, &p.Active, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPattern inserts or replaces a pattern row
func (r *Repository) UpsertPattern(ctx context.Context, p *learning.Pattern) error {
	query := `
		INSERT INTO prediction_patterns (
			name, description, occurrences, successes, success_rate, active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			occurrences = EXCLUDED.occurrences,
			successes = EXCLUDED.successes,
			success_rate = EXCLUDED.success_rate,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Pool.Exec(ctx, query,
		p.Name, p.Description, p.Occurrences, p.Successes, p.SuccessRate, p.Active, p.UpdatedAt,
	)
	return err
}

// ListPatterns retrieves all pattern rows
func (r *Repository) ListPatterns(ctx context.Context) ([]*learning.Pattern, error) {
	query := `
		SELECT name, description, occurrences, successes, success_rate, active, updated_at
		FROM prediction_patterns ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*learning.Pattern
	for rows.Next() {
		var p learning.Pattern
		if err := rows.Scan(
			&p.Name, &p.Description, &p.Occurrences, &p.Successes,
			&p.SuccessRate, &p.Active, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

// ClearLearningState wipes all accumulated learning state and the
// processed stamps, so a full replay starts from zero. Runs in one
// transaction: a half-cleared state would double-count on replay.
func (r *Repository) ClearLearningState(ctx context.Context) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`DELETE FROM layer_learning_history`,
		`DELETE FROM prediction_patterns`,
		`UPDATE predictions SET learning_processed_at = NULL WHERE learning_processed_at IS NOT NULL`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
