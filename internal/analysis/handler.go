package analysis

import (
	"errors"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edumirror/backend/internal/middleware"
	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/pkg/response"
)

// DefaultTheme is recommended when the session has none.
const DefaultTheme = "informative"

// MaxPriorityImprovements caps the suggestions endpoint.
const MaxPriorityImprovements = 3

// Handler serves stored analysis results.
type Handler struct {
	results  ResultReader
	sessions OwnedSessionReader
	logger   *zap.Logger
}

// NewHandler creates an analysis handler.
func NewHandler(results ResultReader, sessions OwnedSessionReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{results: results, sessions: sessions, logger: logger}
}

// PracticeRecommendation points the presenter at the next rehearsal.
type PracticeRecommendation struct {
	FocusArea        string `json:"focus_area"`
	RecommendedTheme string `json:"recommended_theme"`
	PracticeDuration int    `json:"practice_duration"` // minutes
}

// SuggestionsResponse is the body of GET /:sessionId/suggestions.
type SuggestionsResponse struct {
	PriorityImprovements       []models.Suggestion    `json:"priority_improvements"`
	NextPracticeRecommendation PracticeRecommendation `json:"next_practice_recommendation"`
}

// Analysis handles GET /api/sessions/:sessionId/analysis.
func (h *Handler) Analysis(c *gin.Context) {
	res, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, res)
}

// Suggestions handles GET /api/sessions/:sessionId/suggestions.
func (h *Handler) Suggestions(c *gin.Context) {
	res, ok := h.load(c)
	if !ok {
		return
	}
	s, err := h.sessions.Get(c.Request.Context(), res.SessionID, middleware.UserID(c))
	if err != nil {
		h.logger.Error("load session for suggestions", zap.Error(err))
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, BuildSuggestions(&res.AnalysisResult, s))
}

func (h *Handler) load(c *gin.Context) (*models.StoredAnalysis, bool) {
	res, err := h.results.Get(c.Request.Context(), c.Param("sessionId"), middleware.UserID(c))
	if errors.Is(err, ErrResultNotFound) {
		response.NotFound(c, response.CodeAnalysisNotFound, "analysis result not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load analysis result", zap.String("session_id", c.Param("sessionId")), zap.Error(err))
		response.Internal(c, "failed to load analysis result")
		return nil, false
	}
	return res, true
}

var severityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

func rank(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return len(severityRank)
}

// BuildSuggestions orders the result's suggestions by severity and recommends
// practicing the lowest-scoring dimension.
func BuildSuggestions(r *models.AnalysisResult, s *models.Session) SuggestionsResponse {
	list := append([]models.Suggestion(nil), r.Suggestions...)
	sort.SliceStable(list, func(i, j int) bool { return rank(list[i].Severity) < rank(list[j].Severity) })
	if len(list) > MaxPriorityImprovements {
		list = list[:MaxPriorityImprovements]
	}
	if list == nil {
		list = []models.Suggestion{}
	}

	d := r.DetailedScores
	focus, low := "expression", d.Expression
	for _, dim := range []struct {
		name  string
		score float64
	}{{"comprehension", d.Comprehension}, {"delivery", d.Delivery}, {"engagement", d.Engagement}} {
		if dim.score < low {
			focus, low = dim.name, dim.score
		}
	}

	theme := s.Theme
	if theme == "" {
		theme = DefaultTheme
	}
	minutes := s.ExpectedDuration / 60
	if minutes < 5 {
		minutes = 5
	}
	return SuggestionsResponse{
		PriorityImprovements: list,
		NextPracticeRecommendation: PracticeRecommendation{
			FocusArea:        focus,
			RecommendedTheme: theme,
			PracticeDuration: minutes,
		},
	}
}
