package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mertipekreal/merf-stock-engine/internal/boosting"
)

// StoredModel pairs a trained model with persistence metadata.
type StoredModel struct {
	Model     *boosting.Model `json:"model"`
	Synthetic bool            `json:"synthetic"`
}

// SaveModel persists a trained model and its feature-importance rows in
// one transaction
func (r *Repository) SaveModel(ctx context.Context, m *boosting.Model, synthetic bool) error {
	paramsJSON, err := json.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	namesJSON, err := json.Marshal(m.FeatureNames)
	if err != nil {
		return fmt.Errorf("marshal feature names: %w", err)
	}
	treesJSON, err := json.Marshal(m.Trees)
	if err != nil {
		return fmt.Errorf("marshal trees: %w", err)
	}
	metricsJSON, err := json.Marshal(m.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO ml_models (id, base_prediction, params, feature_names, trees, metrics, synthetic, trained_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.BasePrediction, paramsJSON, namesJSON, treesJSON, metricsJSON, synthetic, m.TrainedAt,
	)
	if err != nil {
		return err
	}

	for name, importance := range m.FeatureImportance {
		_, err = tx.Exec(ctx, `
			INSERT INTO ml_model_feature_importance (model_id, feature_name, importance)
			VALUES ($1, $2, $3)`,
			m.ID, name, importance,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetLatestModel retrieves the most recently trained model
func (r *Repository) GetLatestModel(ctx context.Context) (*StoredModel, error) {
	query := `
		SELECT id, base_prediction, params, feature_names, trees, metrics, synthetic, trained_at
		FROM ml_models
		ORDER BY trained_at DESC
		LIMIT 1`

	sm, err := scanModel(r.db.Pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	importance, err := r.getFeatureImportance(ctx, sm.Model.ID)
	if err != nil {
		return nil, err
	}
	sm.Model.FeatureImportance = importance
	return sm, nil
}

// ListModels retrieves model metadata for recent training runs, newest
// first. Trees are omitted to keep the listing light.
func (r *Repository) ListModels(ctx context.Context, limit int) ([]*StoredModel, error) {
	query := `
		SELECT id, base_prediction, params, feature_names, '[]'::jsonb, metrics, synthetic, trained_at
		FROM ml_models
		ORDER BY trained_at DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*StoredModel
	for rows.Next() {
		sm, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, sm)
	}
	return models, rows.Err()
}

func (r *Repository) getFeatureImportance(ctx context.Context, modelID string) (map[string]float64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT feature_name, importance FROM ml_model_feature_importance WHERE model_id = $1`,
		modelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	importance := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		importance[name] = value
	}
	return importance, rows.Err()
}

func scanModel(row pgx.Row) (*StoredModel, error) {
	var m boosting.Model
	var synthetic bool
	var paramsJSON, namesJSON, treesJSON, metricsJSON []byte
	var trainedAt time.Time

	err := row.Scan(&m.ID, &m.BasePrediction, &paramsJSON, &namesJSON, &treesJSON, &metricsJSON, &synthetic, &trainedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(paramsJSON, &m.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(namesJSON, &m.FeatureNames); err != nil {
		return nil, fmt.Errorf("unmarshal feature names: %w", err)
	}
	if err := json.Unmarshal(treesJSON, &m.Trees); err != nil {
		return nil, fmt.Errorf("unmarshal trees: %w", err)
	}
	if len(metricsJSON) > 0 && string(metricsJSON) != "null" {
		m.Metrics = &boosting.Metrics{}
		if err := json.Unmarshal(metricsJSON, m.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	m.TrainedAt = trainedAt

	return &StoredModel{Model: &m, Synthetic: synthetic}, nil
}
