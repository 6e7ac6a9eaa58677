package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumirror/backend/internal/middleware"
	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/pkg/utils"
)

type staticQuestions []models.Question

func (q staticQuestions) Questions(context.Context, *models.Session) []models.Question { return q }

type api struct {
	router *gin.Engine
	store  *MemoryStore
	disp   *fakeDispatcher
	owner  uuid.UUID
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a := &api{store: NewMemoryStore(), disp: &fakeDispatcher{}, owner: uuid.New()}
	m := NewManager(a.store, &fakeFreezer{}, a.disp, time.Minute, nil)
	h := NewHandler(a.store, m, staticQuestions{{QuestionID: "q1", Text: "What is the main risk?"}}, "ws://localhost:8000/", nil)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, a.owner); c.Next() })
	r.POST("/api/sessions/create", h.Create)
	r.POST("/api/sessions/:sessionId/start", h.Start)
	r.POST("/api/sessions/:sessionId/end", h.End)
	r.GET("/api/sessions/:sessionId/analysis-status", h.AnalysisStatus)
	r.GET("/api/my/sessions", h.ListMine)
	a.router = r
	return a
}

func (a *api) call(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestSessionFlow(t *testing.T) {
	a := newAPI(t)

	w, body := a.call(http.MethodPost, "/api/sessions/create", CreateRequest{Title: "Quarterly review", Theme: "business", AIQuestionsEnabled: true, ExpectedDuration: 300})
	require.Equal(t, http.StatusCreated, w.Code)
	id := body["session_id"].(string)
	assert.True(t, utils.ValidSessionID(id))
	assert.Equal(t, "ws://localhost:8000/ws/"+id, body["websocket_url"])

	base := "/api/sessions/" + id
	w, body = a.call(http.MethodPost, base+"/end", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", body["error_code"])

	w, body = a.call(http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "recording_started", body["status"])
	assert.True(t, strings.HasPrefix(body["recording_id"].(string), "rec_"))
	assert.Len(t, body["ai_questions"], 1)

	w, body = a.call(http.MethodPost, base+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "session_completed", body["status"])
	assert.Equal(t, "analysis_"+id, body["analysis_job_id"])
	_, err := time.Parse(time.RFC3339, body["estimated_completion"].(string))
	assert.NoError(t, err)
	assert.Equal(t, []string{id}, a.disp.dispatched())

	w, body = a.call(http.MethodPost, base+"/end", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analysis_"+id, body["analysis_job_id"])
	assert.Len(t, a.disp.dispatched(), 1)

	w, body = a.call(http.MethodGet, base+"/analysis-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, false, body["result_available"])
}

func TestSessionNotFound(t *testing.T) {
	a := newAPI(t)
	a.store.Put(&models.Session{ID: "session_ab12cd34", UserID: uuid.New(), Status: models.SessionStatusCreated})

	w, body := a.call(http.MethodPost, "/api/sessions/session_ab12cd34/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", body["error_code"])
	assert.Equal(t, "error", body["status"])
}

func TestCreateValidation(t *testing.T) {
	a := newAPI(t)
	w, _ := a.call(http.MethodPost, "/api/sessions/create", map[string]interface{}{"theme": "business"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMine(t *testing.T) {
	a := newAPI(t)
	base := time.Now()
	for i := 0; i < 3; i++ {
		a.store.Put(&models.Session{ID: "session_0000000" + string(rune('1'+i)), UserID: a.owner, Theme: "business", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	a.store.Put(&models.Session{ID: "session_00000009", UserID: a.owner, Theme: "education", CreatedAt: base})
	a.store.Put(&models.Session{ID: "session_0000000a", UserID: uuid.New(), Theme: "business", CreatedAt: base})

	w, body := a.call(http.MethodGet, "/api/my/sessions?theme=business&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := body["sessions"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, "session_00000003", list[0].(map[string]interface{})["session_id"])
	p := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), p["total_pages"])
	assert.Equal(t, float64(3), p["total_count"])

	w, body = a.call(http.MethodGet, "/api/my/sessions?page=9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["sessions"])

	w, body = a.call(http.MethodGet, "/api/my/sessions?page=9223372036854775807&limit=100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["sessions"])
	p = body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(maxPage), p["current_page"])
}
