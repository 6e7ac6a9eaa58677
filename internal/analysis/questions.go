package analysis

import (
	"context"
	"time"

	"github.com/edumirror/backend/internal/models"
)

// DefaultQuestionCount is the number of practice questions offered at start.
const DefaultQuestionCount = 3

// MaterialReader reads a session's uploaded material.
type MaterialReader interface {
	GetMaterial(ctx context.Context, sessionID string) (*models.Material, error)
}

// QuestionGenerator produces practice questions for a set of topics.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, topics []string, level string, count int) []models.Question
}

// QuestionService picks topics for a session and generates practice questions.
type QuestionService struct {
	materials MaterialReader
	generator QuestionGenerator
	timeout   time.Duration
}

// NewQuestionService creates a question service. timeout bounds generation so
// that starting a session is never held up by the provider.
func NewQuestionService(materials MaterialReader, generator QuestionGenerator, timeout time.Duration) *QuestionService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QuestionService{materials: materials, generator: generator, timeout: timeout}
}

// Questions returns practice questions from the script's key topics, falling
// back to the session title and theme. The result is never nil.
func (q *QuestionService) Questions(ctx context.Context, s *models.Session) []models.Question {
	var topics []string
	if m, err := q.materials.GetMaterial(ctx, s.ID); err == nil && m != nil && m.ScriptAnalysis != nil {
		topics = m.ScriptAnalysis.KeyTopics
	}
	if len(topics) == 0 {
		for _, t := range []string{s.Title, s.Theme} {
			if t != "" {
				topics = append(topics, t)
			}
		}
	}
	if len(topics) == 0 {
		return []models.Question{}
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	qs := q.generator.GenerateQuestions(ctx, topics, DefaultQuestionLevel, DefaultQuestionCount)
	if qs == nil {
		return []models.Question{}
	}
	return qs
}
