package materials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumirror/backend/internal/middleware"
	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/internal/sessions"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (m *memObjects) Upload(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type wordAnalyzer struct{}

func (wordAnalyzer) AnalyzeScript(_ context.Context, text string) models.ScriptAnalysis {
	n := len(strings.Fields(text))
	return models.ScriptAnalysis{WordCount: n, EstimatedDuration: n, KeyTopics: []string{}}
}

type fixture struct {
	router  *gin.Engine
	store   *MemoryStore
	objects *memObjects
	owner   uuid.UUID
}

func newFixture(t *testing.T, status models.SessionStatus) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sess := sessions.NewMemoryStore()
	owner := uuid.New()
	sess.Put(&models.Session{ID: "session_ab12cd34", UserID: owner, Status: status})

	f := &fixture{
		store:   NewMemoryStore(),
		objects: &memObjects{objects: map[string][]byte{}, types: map[string]string{}},
		owner:   owner,
	}
	h := NewHandler(sess, f.store, f.objects, wordAnalyzer{}, Limits{MaxFileSize: 1 << 20, MaxAudioSize: 1 << 20}, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, f.owner); c.Next() })
	r.POST("/:sessionId/upload-material", h.UploadMaterial)
	r.POST("/:sessionId/upload-audio", h.UploadAudio)
	r.POST("/:sessionId/transcript", h.AddTranscript)
	f.router = r
	return f
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postMultipart(t *testing.T, path string, fields map[string]string, fileField, filename string, content []byte) *httptest.ResponseRecorder {
	body, ct := multipartBody(t, fields, fileField, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return f.do(req)
}

// twoPagePDF builds a minimal well-formed PDF with a correct xref table.
func twoPagePDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestCountPDFPages(t *testing.T) {
	doc := twoPagePDF()
	n, err := CountPDFPages(bytes.NewReader(doc), int64(len(doc)))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = CountPDFPages(strings.NewReader("not a pdf"), 9)
	assert.Error(t, err)
}

func TestUploadMaterialPDFAndScript(t *testing.T) {
	f := newFixture(t, models.SessionStatusCreated)
	w := f.postMultipart(t, "/session_ab12cd34/upload-material",
		map[string]string{"script_text": "Good morning everyone, today we review the quarter"},
		"presentation_file", "deck.pdf", twoPagePDF())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Status          string                `json:"status"`
		PageCount       int                   `json:"page_count"`
		PresentationKey string                `json:"presentation_key"`
		ScriptAnalysis  models.ScriptAnalysis `json:"script_analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 2, body.PageCount)
	assert.Equal(t, "presentations/session_ab12cd34.pdf", body.PresentationKey)
	assert.Equal(t, 8, body.ScriptAnalysis.WordCount)
	assert.Equal(t, "application/pdf", f.objects.types[body.PresentationKey])

	script, _ := f.store.ScriptText(context.Background(), "session_ab12cd34")
	assert.Equal(t, "Good morning everyone, today we review the quarter", script)
}

func TestUploadMaterialRejections(t *testing.T) {
	f := newFixture(t, models.SessionStatusCreated)

	w := f.postMultipart(t, "/session_ab12cd34/upload-material", nil, "presentation_file", "deck.key", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"UPLOAD_FAILED"`)

	w = f.postMultipart(t, "/session_ab12cd34/upload-material", nil, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.postMultipart(t, "/session_ffffffff/upload-material", map[string]string{"script_text": "hi"}, "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"SESSION_NOT_FOUND"`)
}

func TestUploadsClosedAfterEnd(t *testing.T) {
	f := newFixture(t, models.SessionStatusProcessing)
	w := f.postMultipart(t, "/session_ab12cd34/upload-material", map[string]string{"script_text": "late"}, "", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/session_ab12cd34/transcript", strings.NewReader(`{"text":"late words"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusConflict, f.do(req).Code)
}

func TestUploadAudioStoresSegment(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)
	w := f.postMultipart(t, "/session_ab12cd34/upload-audio",
		map[string]string{"transcript_text": "first we look at revenue"},
		"audio_file", "take.wav", []byte("RIFF....WAVE"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"audio_key":"audio/session_ab12cd34/`)

	segs := f.store.Segments("session_ab12cd34")
	require.Len(t, segs, 1)
	assert.Equal(t, "first we look at revenue", segs[0].Text)
	assert.True(t, strings.HasSuffix(segs[0].AudioKey, ".wav"))

	w = f.postMultipart(t, "/session_ab12cd34/upload-audio", nil, "audio_file", "take.flac", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddTranscriptConcatenates(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)
	for _, text := range []string{`{"text":"hello there"}`, `{"text":"  and welcome  "}`} {
		req := httptest.NewRequest(http.MethodPost, "/session_ab12cd34/transcript", strings.NewReader(text))
		req.Header.Set("Content-Type", "application/json")
		require.Equal(t, http.StatusOK, f.do(req).Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/session_ab12cd34/transcript", strings.NewReader(`{"text":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)

	text, err := f.store.Transcript(context.Background(), "session_ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "hello there and welcome", text)
}
