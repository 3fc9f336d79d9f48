// Package db keeps the prediction audit log in SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"heartrisk/predict"
)

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        prediction_id TEXT NOT NULL UNIQUE,
        request_id TEXT NOT NULL,
        model TEXT NOT NULL,
        model_used TEXT NOT NULL,
        predicted_class INTEGER NOT NULL,
        probability REAL NOT NULL,
        label TEXT NOT NULL,
        features TEXT NOT NULL,
        cached INTEGER DEFAULT 0,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE INDEX IF NOT EXISTS idx_predictions_request_id ON predictions(request_id);
    `

// Prediction is one audited row. PredictionID is assigned by the server;
// RequestID is the caller's correlation id and may repeat.
type Prediction struct {
	ID             int64     `json:"id"`
	PredictionID   string    `json:"prediction_id"`
	RequestID      string    `json:"request_id"`
	Model          string    `json:"model"`
	ModelUsed      string    `json:"model_used"`
	PredictedClass int       `json:"predicted_class"`
	Probability    float64   `json:"probability_score_class_1"`
	Label          string    `json:"prediction_label"`
	Features       []float64 `json:"features"`
	Cached         bool      `json:"cached"`
	CreatedAt      time.Time `json:"created_at"`
}

// PredictionStore writes and reads audited predictions.
type PredictionStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string) (*PredictionStore, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &PredictionStore{db: database}, nil
}

func (s *PredictionStore) Close() error {
	return s.db.Close()
}

// Save appends a successful prediction. Rows are never replaced.
func (s *PredictionStore) Save(ctx context.Context, result *predict.Result) error {
	if result == nil {
		return errors.New("nil prediction")
	}
	features, err := json.Marshal(result.Features)
	if err != nil {
		return err
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	predictionID := result.PredictionID
	if predictionID == "" {
		predictionID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            prediction_id, request_id, model, model_used, predicted_class, probability, label, features, cached, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		predictionID,
		result.RequestID,
		result.Model,
		result.ModelUsed,
		result.PredictedClass,
		result.Probability,
		result.Label,
		string(features),
		result.Cached,
		createdAt.UTC(),
	)
	return err
}

// Recent returns up to limit predictions, newest first.
func (s *PredictionStore) Recent(ctx context.Context, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, prediction_id, request_id, model, model_used, predicted_class, probability, label, features, cached, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		var features string
		if err := rows.Scan(&p.ID, &p.PredictionID, &p.RequestID, &p.Model, &p.ModelUsed, &p.PredictedClass, &p.Probability,
			&p.Label, &features, &p.Cached, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("prediction %d features: %w", p.ID, err)
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// CountByModel returns how many predictions each model has served.
func (s *PredictionStore) CountByModel(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model, COUNT(*) FROM predictions GROUP BY model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, err
		}
		counts[model] = n
	}
	return counts, rows.Err()
}
