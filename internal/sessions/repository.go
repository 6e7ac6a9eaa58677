package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/pkg/utils"
)

const uniqueViolation = "23505"

const sessionColumns = `id, user_id, title, theme, background_noise, ai_questions_enabled, expected_duration,
	COALESCE(actual_duration, 0), status, started_at, ended_at, realtime_metrics, created_at, updated_at`

// Repository handles session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateParams are the client-supplied attributes of a new session.
type CreateParams struct {
	Title              string
	Theme              string
	BackgroundNoise    bool
	AIQuestionsEnabled bool
	ExpectedDuration   int
}

// Create inserts a new session in status created with a fresh session_ id.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, p CreateParams) (*models.Session, error) {
	const q = `INSERT INTO sessions (id, user_id, title, theme, background_noise, ai_questions_enabled, expected_duration, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + sessionColumns
	for attempt := 0; attempt < 3; attempt++ {
		id, err := utils.NewSessionID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		row := r.pool.QueryRow(ctx, q, id, userID, p.Title, p.Theme, p.BackgroundNoise, p.AIQuestionsEnabled, p.ExpectedDuration, string(models.SessionStatusCreated))
		s, err := scanSession(row)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		return s, err
	}
	return nil, errors.New("could not allocate a unique session id")
}

// Get returns the session id owned by userID.
func (r *Repository) Get(ctx context.Context, id string, userID uuid.UUID) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND user_id = $2`
	return scanSession(r.pool.QueryRow(ctx, q, id, userID))
}

// GetByID returns a session regardless of owner. Server-internal callers only.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, q, id))
}

// MarkStarted moves created -> active. It reports false when the session was not in created.
func (r *Repository) MarkStarted(ctx context.Context, id string, userID uuid.UUID) (bool, error) {
	const q = `UPDATE sessions SET status = $1, started_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND user_id = $3 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, string(models.SessionStatusActive), id, userID, string(models.SessionStatusCreated))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkEnded moves active -> processing and stores the frozen telemetry summary.
func (r *Repository) MarkEnded(ctx context.Context, id string, userID uuid.UUID, metrics models.RealtimeMetrics) (bool, error) {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return false, fmt.Errorf("marshal metrics: %w", err)
	}
	const q = `UPDATE sessions SET status = $1, ended_at = NOW(), realtime_metrics = $2, updated_at = NOW()
		WHERE id = $3 AND user_id = $4 AND status = $5`
	tag, err := r.pool.Exec(ctx, q, string(models.SessionStatusProcessing), raw, id, userID, string(models.SessionStatusActive))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted moves processing -> completed and records the actual duration.
func (r *Repository) MarkCompleted(ctx context.Context, id string, actualDuration int) (bool, error) {
	const q = `UPDATE sessions SET status = $1, actual_duration = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, string(models.SessionStatusCompleted), actualDuration, id, string(models.SessionStatusProcessing))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves processing -> failed.
func (r *Repository) MarkFailed(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, string(models.SessionStatusFailed), id, string(models.SessionStatusProcessing))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListProcessing returns the ids of every session awaiting analysis, oldest end first.
func (r *Repository) ListProcessing(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM sessions WHERE status = $1 ORDER BY ended_at NULLS FIRST, id`
	rows, err := r.pool.Query(ctx, q, string(models.SessionStatusProcessing))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByUser returns one page of the user's sessions (newest first) and the total count.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int, theme string) ([]models.SessionSummary, int, error) {
	if page < 1 {
		page = 1
	}
	offset := int64(page-1) * int64(limit)
	const q = `SELECT s.id, s.title, s.created_at, COALESCE(s.actual_duration, 0), a.overall_score, s.theme
		FROM sessions s
		LEFT JOIN analysis_results a ON a.session_id = s.id AND s.status = 'completed'
		WHERE s.user_id = $1 AND ($2 = '' OR s.theme = $2)
		ORDER BY s.created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, q, userID, theme, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list := make([]models.SessionSummary, 0, limit)
	for rows.Next() {
		var s models.SessionSummary
		if err := rows.Scan(&s.SessionID, &s.Title, &s.Date, &s.Duration, &s.OverallScore, &s.Theme); err != nil {
			return nil, 0, err
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	const countQ = `SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND ($2 = '' OR theme = $2)`
	if err := r.pool.QueryRow(ctx, countQ, userID, theme).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s       models.Session
		status  string
		metrics []byte
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Theme, &s.BackgroundNoise, &s.AIQuestionsEnabled, &s.ExpectedDuration,
		&s.ActualDuration, &status, &s.StartedAt, &s.EndedAt, &metrics, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	if len(metrics) > 0 {
		var m models.RealtimeMetrics
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("decode realtime_metrics: %w", err)
		}
		s.Metrics = &m
	}
	return &s, nil
}
