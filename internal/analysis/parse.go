package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/edumirror/backend/internal/models"
)

var errEmptyContent = errors.New("empty content")

type wireScores struct {
	Expression    *float64 `json:"expression"`
	Comprehension *float64 `json:"comprehension"`
	Delivery      *float64 `json:"delivery"`
	Engagement    *float64 `json:"engagement"`
}

type wireResult struct {
	OverallScore     *float64               `json:"overall_score"`
	DetailedScores   *wireScores            `json:"detailed_scores"`
	SpeechAnalysis   map[string]interface{} `json:"speech_analysis"`
	ContentAnalysis  map[string]interface{} `json:"content_analysis"`
	DeliveryAnalysis map[string]interface{} `json:"delivery_analysis"`
	Suggestions      []models.Suggestion    `json:"suggestions"`
}

// ParseResult decodes model output into an AnalysisResult. The content must
// be exactly one JSON object, optionally inside a fenced code block, with all
// four detailed scores in 0..100. A missing overall_score is the mean of the
// detailed scores.
func ParseResult(content string) (*models.AnalysisResult, error) {
	raw := stripFence(content)
	if raw == "" {
		return nil, errEmptyContent
	}
	var w wireResult
	if err := decodeStrict(raw, &w); err != nil {
		return nil, err
	}
	if w.DetailedScores == nil {
		return nil, errors.New("missing detailed_scores")
	}
	scores := map[string]*float64{
		"expression":    w.DetailedScores.Expression,
		"comprehension": w.DetailedScores.Comprehension,
		"delivery":      w.DetailedScores.Delivery,
		"engagement":    w.DetailedScores.Engagement,
	}
	for name, v := range scores {
		if v == nil {
			return nil, fmt.Errorf("missing detailed_scores.%s", name)
		}
	}
	r := &models.AnalysisResult{
		DetailedScores: models.DetailedScores{
			Expression:    *w.DetailedScores.Expression,
			Comprehension: *w.DetailedScores.Comprehension,
			Delivery:      *w.DetailedScores.Delivery,
			Engagement:    *w.DetailedScores.Engagement,
		},
		SpeechAnalysis:   w.SpeechAnalysis,
		ContentAnalysis:  w.ContentAnalysis,
		DeliveryAnalysis: w.DeliveryAnalysis,
		Suggestions:      w.Suggestions,
	}
	if w.OverallScore != nil {
		r.OverallScore = *w.OverallScore
	} else {
		d := r.DetailedScores
		r.OverallScore = math.Round((d.Expression+d.Comprehension+d.Delivery+d.Engagement)/4*100) / 100
	}
	if r.Suggestions == nil {
		r.Suggestions = []models.Suggestion{}
	}
	if err := Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that every score of r lies in 0..100.
func Validate(r *models.AnalysisResult) error {
	if r == nil {
		return errors.New("nil result")
	}
	d := r.DetailedScores
	for _, s := range []struct {
		name string
		v    float64
	}{
		{"overall_score", r.OverallScore},
		{"expression", d.Expression},
		{"comprehension", d.Comprehension},
		{"delivery", d.Delivery},
		{"engagement", d.Engagement},
	} {
		if math.IsNaN(s.v) || s.v < 0 || s.v > 100 {
			return fmt.Errorf("%s out of range: %v", s.name, s.v)
		}
	}
	return nil
}

// decodeStrict decodes exactly one JSON value from raw into v.
func decodeStrict(raw string, v interface{}) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing content after json object")
	}
	return nil
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		lang := strings.TrimSpace(s[:i])
		if lang == "" || strings.EqualFold(lang, "json") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "```") {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
