package materials

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edumirror/backend/internal/models"
)

// MemoryStore is an in-process materials store used by tests.
type MemoryStore struct {
	mu          sync.Mutex
	materials   map[string]models.Material
	transcripts map[string][]models.TranscriptSegment
	nextID      int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		materials:   make(map[string]models.Material),
		transcripts: make(map[string][]models.TranscriptSegment),
	}
}

func (m *MemoryStore) SaveMaterial(_ context.Context, mat models.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.materials[mat.SessionID]
	if !ok {
		cur.SessionID = mat.SessionID
	}
	if mat.ScriptText != "" {
		cur.ScriptText = mat.ScriptText
	}
	if mat.ScriptAnalysis != nil {
		cur.ScriptAnalysis = mat.ScriptAnalysis
	}
	if mat.PresentationKey != "" {
		cur.PresentationKey = mat.PresentationKey
		cur.PresentationPages = mat.PresentationPages
	}
	cur.UpdatedAt = time.Now()
	m.materials[mat.SessionID] = cur
	return nil
}

func (m *MemoryStore) GetMaterial(_ context.Context, sessionID string) (*models.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.materials[sessionID]
	if !ok {
		return nil, nil
	}
	return &mat, nil
}

func (m *MemoryStore) ScriptText(ctx context.Context, sessionID string) (string, error) {
	mat, _ := m.GetMaterial(ctx, sessionID)
	if mat == nil {
		return "", nil
	}
	return mat.ScriptText, nil
}

func (m *MemoryStore) AddTranscript(_ context.Context, seg models.TranscriptSegment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	seg.ID = m.nextID
	seg.CreatedAt = time.Now()
	m.transcripts[seg.SessionID] = append(m.transcripts[seg.SessionID], seg)
	return seg.ID, nil
}

func (m *MemoryStore) Transcript(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var parts []string
	for _, seg := range m.transcripts[sessionID] {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Segments returns a copy of the stored segments for sessionID.
func (m *MemoryStore) Segments(sessionID string) []models.TranscriptSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TranscriptSegment(nil), m.transcripts[sessionID]...)
}
