package materials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edumirror/backend/internal/models"
)

// Repository persists session materials and transcript segments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a materials repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveMaterial upserts the session's material. Empty script text or presentation
// key leave the stored value untouched.
func (r *Repository) SaveMaterial(ctx context.Context, m models.Material) error {
	var analysis []byte
	if m.ScriptAnalysis != nil {
		b, err := json.Marshal(m.ScriptAnalysis)
		if err != nil {
			return fmt.Errorf("marshal script analysis: %w", err)
		}
		analysis = b
	}
	const q = `INSERT INTO session_materials (session_id, script_text, presentation_key, presentation_pages, script_analysis, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			script_text = CASE WHEN EXCLUDED.script_text = '' THEN session_materials.script_text ELSE EXCLUDED.script_text END,
			script_analysis = COALESCE(EXCLUDED.script_analysis, session_materials.script_analysis),
			presentation_key = COALESCE(EXCLUDED.presentation_key, session_materials.presentation_key),
			presentation_pages = CASE WHEN EXCLUDED.presentation_key IS NULL THEN session_materials.presentation_pages ELSE EXCLUDED.presentation_pages END,
			updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, m.SessionID, m.ScriptText, m.PresentationKey, m.PresentationPages, analysis)
	return err
}

// GetMaterial returns the session's material, or nil when nothing was uploaded.
func (r *Repository) GetMaterial(ctx context.Context, sessionID string) (*models.Material, error) {
	const q = `SELECT session_id, script_text, COALESCE(presentation_key, ''), presentation_pages, script_analysis, updated_at
		FROM session_materials WHERE session_id = $1`
	var m models.Material
	var analysis []byte
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&m.SessionID, &m.ScriptText, &m.PresentationKey, &m.PresentationPages, &analysis, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(analysis) > 0 {
		m.ScriptAnalysis = &models.ScriptAnalysis{}
		if err := json.Unmarshal(analysis, m.ScriptAnalysis); err != nil {
			return nil, fmt.Errorf("decode script analysis: %w", err)
		}
	}
	return &m, nil
}

// ScriptText returns the session's script, or "" when none was uploaded.
func (r *Repository) ScriptText(ctx context.Context, sessionID string) (string, error) {
	m, err := r.GetMaterial(ctx, sessionID)
	if err != nil || m == nil {
		return "", err
	}
	return m.ScriptText, nil
}

// AddTranscript appends a transcript segment and returns its id.
func (r *Repository) AddTranscript(ctx context.Context, seg models.TranscriptSegment) (int64, error) {
	const q = `INSERT INTO session_transcripts (session_id, text, audio_key) VALUES ($1, $2, NULLIF($3, '')) RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, q, seg.SessionID, seg.Text, seg.AudioKey).Scan(&id)
	return id, err
}

// Transcript concatenates the session's non-empty segments in arrival order.
func (r *Repository) Transcript(ctx context.Context, sessionID string) (string, error) {
	const q = `SELECT COALESCE(string_agg(text, ' ' ORDER BY created_at, id), '')
		FROM session_transcripts WHERE session_id = $1 AND text <> ''`
	var text string
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&text)
	return text, err
}
