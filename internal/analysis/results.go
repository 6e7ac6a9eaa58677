package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edumirror/backend/internal/models"
)

// ResultReader reads servable results.
type ResultReader interface {
	Get(ctx context.Context, sessionID string, userID uuid.UUID) (*models.StoredAnalysis, error)
}

// Repository is the Result Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a result repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save upserts the result for sessionID, replacing any prior one.
func (r *Repository) Save(ctx context.Context, sessionID string, res *models.AnalysisResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	d := res.DetailedScores
	const q = `INSERT INTO analysis_results
		(session_id, overall_score, expression_score, comprehension_score, delivery_score, engagement_score, fallback, analysis_data, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			expression_score = EXCLUDED.expression_score,
			comprehension_score = EXCLUDED.comprehension_score,
			delivery_score = EXCLUDED.delivery_score,
			engagement_score = EXCLUDED.engagement_score,
			fallback = EXCLUDED.fallback,
			analysis_data = EXCLUDED.analysis_data,
			analyzed_at = EXCLUDED.analyzed_at`
	_, err = r.pool.Exec(ctx, q, sessionID, res.OverallScore, d.Expression, d.Comprehension, d.Delivery, d.Engagement, res.Fallback, data, res.AnalyzedAt)
	return err
}

// Delete removes the result for sessionID, if any.
func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM analysis_results WHERE session_id = $1`, sessionID)
	return err
}

// Get returns the result for sessionID when the session belongs to userID and is completed.
func (r *Repository) Get(ctx context.Context, sessionID string, userID uuid.UUID) (*models.StoredAnalysis, error) {
	const q = `SELECT a.overall_score, a.expression_score, a.comprehension_score, a.delivery_score, a.engagement_score, a.analysis_data
		FROM analysis_results a JOIN sessions s ON s.id = a.session_id
		WHERE a.session_id = $1 AND s.user_id = $2 AND s.status = $3`
	var (
		out     models.StoredAnalysis
		overall float64
		d       models.DetailedScores
		data    []byte
	)
	err := r.pool.QueryRow(ctx, q, sessionID, userID, string(models.SessionStatusCompleted)).
		Scan(&overall, &d.Expression, &d.Comprehension, &d.Delivery, &d.Engagement, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out.AnalysisResult); err != nil {
		return nil, fmt.Errorf("decode analysis data: %w", err)
	}
	out.SessionID = sessionID
	out.OverallScore = overall
	out.DetailedScores = d
	return &out, nil
}
