package materials

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edumirror/backend/internal/middleware"
	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/internal/sessions"
	"github.com/edumirror/backend/pkg/response"
	"github.com/edumirror/backend/pkg/storage"
)

// ErrSessionClosed is returned for uploads to a session that has already ended.
var ErrSessionClosed = errors.New("session has already ended")

// SessionReader resolves owner-scoped sessions.
type SessionReader interface {
	Get(ctx context.Context, id string, userID uuid.UUID) (*models.Session, error)
}

// Store is the materials persistence the handler writes to.
type Store interface {
	SaveMaterial(ctx context.Context, m models.Material) error
	AddTranscript(ctx context.Context, seg models.TranscriptSegment) (int64, error)
}

// ObjectStore holds uploaded files.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
}

// ScriptAnalyzer produces the quick analysis returned with a script upload.
type ScriptAnalyzer interface {
	AnalyzeScript(ctx context.Context, text string) models.ScriptAnalysis
}

// Limits bound upload sizes in bytes.
type Limits struct {
	MaxFileSize  int64
	MaxAudioSize int64
}

// TranscriptRequest is the body for POST /:sessionId/transcript.
type TranscriptRequest struct {
	Text string `json:"text" binding:"required"`
}

// Handler accepts the external inputs of a session: script, presentation, audio and transcript.
type Handler struct {
	sessions SessionReader
	store    Store
	objects  ObjectStore
	analyzer ScriptAnalyzer
	limits   Limits
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates a materials handler. objects may be nil when no bucket is configured.
func NewHandler(sessions SessionReader, store Store, objects ObjectStore, analyzer ScriptAnalyzer, limits Limits, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = storage.DefaultMaxFileSize
	}
	if limits.MaxAudioSize <= 0 {
		limits.MaxAudioSize = storage.DefaultMaxAudioSize
	}
	return &Handler{sessions: sessions, store: store, objects: objects, analyzer: analyzer, limits: limits, now: time.Now, logger: logger}
}

// UploadMaterial handles POST /api/sessions/:sessionId/upload-material.
func (h *Handler) UploadMaterial(c *gin.Context) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxFileSize+1<<20)
	ctx := c.Request.Context()

	script := strings.TrimSpace(c.PostForm("script_text"))
	file, header, err := c.Request.FormFile("presentation_file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		if script == "" {
			response.BadRequest(c, "presentation_file or script_text is required")
			return
		}
	case err != nil:
		response.BadRequest(c, "invalid multipart body: "+err.Error())
		return
	default:
		defer file.Close()
	}

	mat := models.Material{SessionID: s.ID, ScriptText: script}
	body := gin.H{"status": "success", "page_count": 0}

	if file != nil {
		ext, ok := storage.Ext(header.Filename, storage.PresentationExtensions)
		if !ok {
			response.Error(c, http.StatusBadRequest, response.CodeUploadFailed, "presentation must be .pdf, .ppt or .pptx")
			return
		}
		if header.Size > h.limits.MaxFileSize {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeUploadFailed, "presentation file too large")
			return
		}
		pages := 0
		if ext == ".pdf" {
			if pages, err = CountPDFPages(file, header.Size); err != nil {
				h.logger.Warn("pdf page count failed", zap.String("session_id", s.ID), zap.Error(err))
				pages = 0
			}
		}
		key, err := h.putObject(ctx, file, storage.PresentationKey(s.ID, ext), storage.PresentationExtensions[ext], header.Size)
		if err != nil {
			h.logger.Error("presentation upload failed", zap.String("session_id", s.ID), zap.Error(err))
			response.Error(c, http.StatusBadGateway, response.CodeUploadFailed, "failed to store presentation")
			return
		}
		mat.PresentationKey = key
		mat.PresentationPages = pages
		body["page_count"] = pages
		if key != "" {
			body["presentation_key"] = key
		}
	}

	if script != "" {
		sa := h.analyzer.AnalyzeScript(ctx, script)
		mat.ScriptAnalysis = &sa
		body["script_analysis"] = sa
	}

	if err := h.store.SaveMaterial(ctx, mat); err != nil {
		h.logger.Error("save material failed", zap.String("session_id", s.ID), zap.Error(err))
		response.Internal(c, "failed to save material")
		return
	}
	h.logger.Info("material uploaded",
		zap.String("session_id", s.ID),
		zap.Int("page_count", mat.PresentationPages),
		zap.Bool("script", script != ""),
	)
	response.OK(c, body)
}

// UploadAudio handles POST /api/sessions/:sessionId/upload-audio.
func (h *Handler) UploadAudio(c *gin.Context) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxAudioSize+1<<20)
	ctx := c.Request.Context()

	file, header, err := c.Request.FormFile("audio_file")
	if err != nil {
		response.BadRequest(c, "audio_file is required")
		return
	}
	defer file.Close()

	ext, ok := storage.Ext(header.Filename, storage.AudioExtensions)
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeUploadFailed, "unsupported audio format")
		return
	}
	if header.Size > h.limits.MaxAudioSize {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeUploadFailed, "audio file too large")
		return
	}
	key, err := h.putObject(ctx, file, storage.AudioKey(s.ID, h.now(), ext), storage.AudioExtensions[ext], header.Size)
	if err != nil {
		h.logger.Error("audio upload failed", zap.String("session_id", s.ID), zap.Error(err))
		response.Error(c, http.StatusBadGateway, response.CodeUploadFailed, "failed to store audio")
		return
	}

	seg := models.TranscriptSegment{SessionID: s.ID, Text: strings.TrimSpace(c.PostForm("transcript_text")), AudioKey: key}
	id, err := h.store.AddTranscript(ctx, seg)
	if err != nil {
		h.logger.Error("save transcript failed", zap.String("session_id", s.ID), zap.Error(err))
		if key != "" {
			if derr := h.objects.Delete(context.WithoutCancel(ctx), key); derr != nil {
				h.logger.Warn("orphaned audio object", zap.String("key", key), zap.Error(derr))
			}
		}
		response.Internal(c, "failed to save transcript")
		return
	}
	response.OK(c, gin.H{"status": "success", "audio_key": key, "segment_id": id})
}

// AddTranscript handles POST /api/sessions/:sessionId/transcript.
func (h *Handler) AddTranscript(c *gin.Context) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}
	var req TranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		response.BadRequest(c, "text must not be blank")
		return
	}
	id, err := h.store.AddTranscript(c.Request.Context(), models.TranscriptSegment{SessionID: s.ID, Text: text})
	if err != nil {
		h.logger.Error("save transcript failed", zap.String("session_id", s.ID), zap.Error(err))
		response.Internal(c, "failed to save transcript")
		return
	}
	response.OK(c, gin.H{"status": "success", "segment_id": id})
}

// openSession resolves the path session for the caller and rejects sessions
// whose analysis inputs are already frozen.
func (h *Handler) openSession(c *gin.Context) (*models.Session, bool) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("sessionId"), middleware.UserID(c))
	if errors.Is(err, sessions.ErrSessionNotFound) {
		response.NotFound(c, response.CodeSessionNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load session", zap.Error(err))
		response.Internal(c, "failed to load session")
		return nil, false
	}
	if s.Status != models.SessionStatusCreated && s.Status != models.SessionStatusActive {
		response.Conflict(c, ErrSessionClosed.Error())
		return nil, false
	}
	return s, true
}

// putObject uploads f from its start. It returns "" without error when no object store is configured.
func (h *Handler) putObject(ctx context.Context, f multipart.File, key, contentType string, size int64) (string, error) {
	if h.objects == nil {
		h.logger.Warn("object storage not configured, file discarded", zap.String("key", key))
		return "", nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if err := h.objects.Upload(ctx, key, contentType, f, size); err != nil {
		return "", err
	}
	return key, nil
}
