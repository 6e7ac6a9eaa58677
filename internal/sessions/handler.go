package sessions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edumirror/backend/internal/middleware"
	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/pkg/response"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxPage         = 100000 // keeps (page-1)*limit far from overflow
)

// Catalog creates and lists sessions.
type Catalog interface {
	Create(ctx context.Context, userID uuid.UUID, p CreateParams) (*models.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, limit int, theme string) ([]models.SessionSummary, int, error)
}

// Questioner generates practice questions for a starting session.
type Questioner interface {
	Questions(ctx context.Context, s *models.Session) []models.Question
}

// CreateRequest is the body for POST /api/sessions/create.
type CreateRequest struct {
	Title              string `json:"title" binding:"required,max=200"`
	Theme              string `json:"theme" binding:"max=50"`
	BackgroundNoise    bool   `json:"background_noise"`
	AIQuestionsEnabled bool   `json:"ai_questions_enabled"`
	ExpectedDuration   int    `json:"expected_duration" binding:"min=0"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	catalog   Catalog
	manager   *Manager
	questions Questioner
	wsBase    string
	logger    *zap.Logger
}

// NewHandler creates a session handler. wsBase prefixes the websocket_url
// returned on create; questions may be nil.
func NewHandler(catalog Catalog, manager *Manager, questions Questioner, wsBase string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{catalog: catalog, manager: manager, questions: questions, wsBase: strings.TrimRight(wsBase, "/"), logger: logger}
}

// Create handles POST /api/sessions/create.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.catalog.Create(c.Request.Context(), middleware.UserID(c), CreateParams{
		Title:              req.Title,
		Theme:              req.Theme,
		BackgroundNoise:    req.BackgroundNoise,
		AIQuestionsEnabled: req.AIQuestionsEnabled,
		ExpectedDuration:   req.ExpectedDuration,
	})
	if err != nil {
		h.logger.Error("create session", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	h.logger.Info("session created", zap.String("session_id", s.ID))
	response.Created(c, gin.H{
		"session_id":    s.ID,
		"websocket_url": h.wsBase + "/ws/" + s.ID,
	})
}

// Start handles POST /api/sessions/:sessionId/start.
func (h *Handler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	s, err := h.manager.Start(ctx, c.Param("sessionId"), middleware.UserID(c))
	if err != nil {
		h.fail(c, "start session", err)
		return
	}
	questions := []models.Question{}
	if s.AIQuestionsEnabled && h.questions != nil {
		questions = h.questions.Questions(ctx, s)
	}
	response.OK(c, gin.H{
		"status":       "recording_started",
		"recording_id": fmt.Sprintf("rec_%d", time.Now().UnixMilli()),
		"ai_questions": questions,
	})
}

// End handles POST /api/sessions/:sessionId/end. Analysis runs after the response.
func (h *Handler) End(c *gin.Context) {
	ticket, err := h.manager.End(c.Request.Context(), c.Param("sessionId"), middleware.UserID(c))
	if err != nil {
		h.fail(c, "end session", err)
		return
	}
	response.OK(c, gin.H{
		"status":               "session_completed",
		"analysis_job_id":      ticket.JobID,
		"estimated_completion": ticket.EstimatedCompletion.Format(time.RFC3339),
	})
}

// AnalysisStatus handles GET /api/sessions/:sessionId/analysis-status.
func (h *Handler) AnalysisStatus(c *gin.Context) {
	s, err := h.manager.Status(c.Request.Context(), c.Param("sessionId"), middleware.UserID(c))
	if err != nil {
		h.fail(c, "session status", err)
		return
	}
	response.OK(c, gin.H{
		"session_id":       s.ID,
		"status":           s.Status,
		"progress":         progress(s.Status),
		"result_available": s.Status == models.SessionStatusCompleted,
	})
}

// ListMine handles GET /api/my/sessions?page&limit&theme.
func (h *Handler) ListMine(c *gin.Context) {
	page := queryInt(c, "page", 1)
	if page > maxPage {
		page = maxPage
	}
	limit := queryInt(c, "limit", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	list, total, err := h.catalog.ListByUser(c.Request.Context(), middleware.UserID(c), page, limit, c.Query("theme"))
	if err != nil {
		h.logger.Error("list sessions", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	if list == nil {
		list = []models.SessionSummary{}
	}
	response.OK(c, gin.H{
		"sessions": list,
		"pagination": gin.H{
			"current_page": page,
			"total_pages":  (total + limit - 1) / limit,
			"total_count":  total,
		},
	})
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, response.CodeSessionNotFound, "session not found")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error(op, zap.String("session_id", c.Param("sessionId")), zap.Error(err))
		response.Internal(c, "failed to "+op)
	}
}

func progress(s models.SessionStatus) int {
	switch s {
	case models.SessionStatusProcessing:
		return 50
	case models.SessionStatusCompleted, models.SessionStatusFailed:
		return 100
	default:
		return 0
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}
