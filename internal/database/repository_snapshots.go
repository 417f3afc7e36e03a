package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mertipekreal/merf-stock-engine/internal/features"
)

// FeatureSnapshotRecord is a stored feature vector with its metadata.
type FeatureSnapshotRecord struct {
	ID          string               `json:"id"`
	Symbol      string               `json:"symbol"`
	Version     int                  `json:"version"`
	Vector      []float64            `json:"vector"`
	Names       []string             `json:"names"`
	LayerScores features.LayerScores `json:"layer_scores"`
	CreatedAt   time.Time            `json:"created_at"`
}

// TrainingExample is one (vector, realized return) pair for model fitting.
type TrainingExample struct {
	Vector []float64
	Target float64
}

// SaveSnapshot persists a feature snapshot with its layer scores
func (r *Repository) SaveSnapshot(ctx context.Context, uf *features.UnifiedFeatures, scores features.LayerScores) (string, error) {
	vectorJSON, err := json.Marshal(uf.Vector)
	if err != nil {
		return "", err
	}
	namesJSON, err := json.Marshal(uf.Names)
	if err != nil {
		return "", err
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO feature_snapshots (id, symbol, version, vector, names, layer_scores, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, uf.Symbol, uf.Version, vectorJSON, namesJSON, scoresJSON, uf.Date,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListSnapshots retrieves recent snapshots for a symbol, newest first
func (r *Repository) ListSnapshots(ctx context.Context, symbol string, limit int) ([]*FeatureSnapshotRecord, error) {
	query := `
		SELECT id, symbol, version, vector, names, layer_scores, created_at
		FROM feature_snapshots
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*FeatureSnapshotRecord
	for rows.Next() {
		var s FeatureSnapshotRecord
		var vectorJSON, namesJSON, scoresJSON []byte
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Version, &vectorJSON, &namesJSON, &scoresJSON, &s.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal(vectorJSON, &s.Vector)
		json.Unmarshal(namesJSON, &s.Names)
		json.Unmarshal(scoresJSON, &s.LayerScores)
		snapshots = append(snapshots, &s)
	}
	return snapshots, rows.Err()
}

// ListTrainingExamples joins feature snapshots to the nearest resolved
// prediction for the same symbol within 24 hours and returns (vector,
// realized return) pairs for model training, newest first.
func (r *Repository) ListTrainingExamples(ctx context.Context, version, limit int) ([]TrainingExample, error) {
	query := `
		SELECT fs.vector, p.actual_return
		FROM feature_snapshots fs
		JOIN LATERAL (
			SELECT actual_return
			FROM predictions
			WHERE symbol = fs.symbol
			AND status <> 'pending'
			AND actual_return IS NOT NULL
			AND created_at BETWEEN fs.created_at - INTERVAL '24 hours'
				AND fs.created_at + INTERVAL '24 hours'
			ORDER BY ABS(EXTRACT(EPOCH FROM created_at - fs.created_at))
			LIMIT 1
		) p ON TRUE
		WHERE fs.version = $1
		ORDER BY fs.created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, version, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var examples []TrainingExample
	for rows.Next() {
		var vectorJSON []byte
		var ex TrainingExample
		if err := rows.Scan(&vectorJSON, &ex.Target); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(vectorJSON, &ex.Vector); err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}
	return examples, rows.Err()
}
