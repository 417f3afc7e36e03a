package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mertipekreal/merf-stock-engine/internal/learning"
)

const predictionColumns = `id, symbol, direction, score, probability, confidence,
	votes, contributions, layer_scores, weights_used, composite_signal, regime, horizon, status,
	actual_direction, actual_return, created_at, outcome_at, learning_processed_at`

// SavePrediction inserts a new prediction record
func (r *Repository) SavePrediction(ctx context.Context, p *learning.PredictionRecord) error {
	votesJSON, _ := json.Marshal(p.Votes)
	contribJSON, _ := json.Marshal(p.Contributions)
	scoresJSON, _ := json.Marshal(p.LayerScores)
	weightsJSON, _ := json.Marshal(p.WeightsUsed)

	query := `
		INSERT INTO predictions (
			id, symbol, direction, score, probability, confidence,
			votes, contributions, layer_scores, weights_used, composite_signal, regime, horizon, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.Symbol, p.Direction, p.Score, p.Probability, p.Confidence,
		votesJSON, contribJSON, scoresJSON, weightsJSON, p.CompositeSignal, p.Regime, p.Horizon, p.Status, p.CreatedAt,
	)
	return err
}

// GetPrediction retrieves a prediction by ID
func (r *Repository) GetPrediction(ctx context.Context, id string) (*learning.PredictionRecord, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE id = $1`

	p, err := scanPrediction(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPredictions retrieves recent predictions with optional filters
func (r *Repository) ListPredictions(ctx context.Context, symbol, status string, limit int) ([]*learning.PredictionRecord, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE ($1 = '' OR symbol = $1)
		AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.db.Pool.Query(ctx, query, symbol, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predictions []*learning.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// RecordOutcome attaches a realized outcome to a pending prediction.
// The status transition only happens once: later calls are no-ops.
func (r *Repository) RecordOutcome(ctx context.Context, id, actualDirection string, actualReturn float64) error {
	query := `
		UPDATE predictions
		SET status = CASE WHEN direction = $2 THEN 'correct' ELSE 'incorrect' END,
			actual_direction = $2,
			actual_return = $3,
			outcome_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Pool.Exec(ctx, query, id, actualDirection, actualReturn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prediction %s: %w or already resolved", id, ErrNotFound)
	}
	return nil
}

// ClaimCompletedPredictions atomically stamps and returns a batch of
// completed predictions the learning loop has not consumed yet. The
// stamp happens in the same statement as the read, so concurrent runs
// and reruns each see a record at most once.
func (r *Repository) ClaimCompletedPredictions(ctx context.Context, limit int) ([]*learning.PredictionRecord, error) {
	query := `
		UPDATE predictions
		SET learning_processed_at = NOW()
		WHERE id IN (
			SELECT id FROM predictions
			WHERE status <> 'pending' AND learning_processed_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + predictionColumns

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []*learning.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, p)
	}
	return claimed, rows.Err()
}

// CountCompletedPredictions counts predictions with a resolved outcome
func (r *Repository) CountCompletedPredictions(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM predictions WHERE status <> 'pending'`,
	).Scan(&count)
	return count, err
}

func scanPrediction(row pgx.Row) (*learning.PredictionRecord, error) {
	var p learning.PredictionRecord
	var votesJSON, contribJSON, scoresJSON, weightsJSON []byte
	var actualDirection *string
	var actualReturn *float64
	var outcomeAt, processedAt *time.Time

	err := row.Scan(
		&p.ID, &p.Symbol, &p.Direction, &p.Score, &p.Probability, &p.Confidence,
		&votesJSON, &contribJSON, &scoresJSON, &weightsJSON, &p.CompositeSignal, &p.Regime, &p.Horizon, &p.Status,
		&actualDirection, &actualReturn, &p.CreatedAt, &outcomeAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal(votesJSON, &p.Votes)
	json.Unmarshal(contribJSON, &p.Contributions)
	json.Unmarshal(scoresJSON, &p.LayerScores)
	json.Unmarshal(weightsJSON, &p.WeightsUsed)

	if actualDirection != nil {
		p.ActualDirection = *actualDirection
	}
	if actualReturn != nil {
		p.ActualReturn = *actualReturn
	}
	p.OutcomeAt = outcomeAt
	p.LearningProcessedAt = processedAt
	return &p, nil
}
