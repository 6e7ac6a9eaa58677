package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edumirror/backend/config"
	"github.com/edumirror/backend/internal/models"
)

// DefaultQuestionLevel is the audience level used for practice questions.
const DefaultQuestionLevel = "high_school"

// LLMClient calls an OpenAI-compatible chat completions API.
type LLMClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	logger  *zap.Logger
}

// NewLLMClient creates a client from analysis configuration.
func NewLLMClient(cfg config.AnalysisConfig, logger *zap.Logger) *LLMClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMClient{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Client:  &http.Client{Timeout: cfg.Timeout + 10*time.Second},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// chat sends one user prompt and returns the first choice's content.
func (l *LLMClient) chat(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	if l.APIKey == "" {
		return "", ErrNoAPIKey
	}
	payload := chatRequest{
		Model: l.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature:    temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.APIKey)

	resp, err := l.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider error: status %d, body: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

const analysisSystemPrompt = `You are a presentation coach. You receive one rehearsal as JSON and answer with a single JSON object and nothing else:
{"overall_score": number 0-100,
 "detailed_scores": {"expression": 0-100, "comprehension": 0-100, "delivery": 0-100, "engagement": 0-100},
 "speech_analysis": {...}, "content_analysis": {...}, "delivery_analysis": {...},
 "suggestions": [{"category": string, "severity": "high"|"medium"|"low", "description": string, "specific_feedback": string, "improvement_tip": string}]}`

// Analyze scores a rehearsal. Every failure is a *CapabilityError.
func (l *LLMClient) Analyze(ctx context.Context, in models.AnalysisInput) (*models.AnalysisResult, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, capabilityErr("encode input", err)
	}
	content, err := l.chat(ctx, analysisSystemPrompt, "Rehearsal:\n"+string(payload), 0.3)
	if err != nil {
		return nil, capabilityErr("chat", err)
	}
	r, err := ParseResult(content)
	if err != nil {
		l.logger.Warn("unusable analysis output", zap.String("session_id", in.SessionID), zap.Error(err))
		return nil, capabilityErr("parse", err)
	}
	return r, nil
}

const scriptSystemPrompt = `Analyze the presentation script and answer with one JSON object: {"word_count": integer, "estimated_duration": seconds as integer, "key_topics": [string]}`

// AnalyzeScript returns word count, spoken duration and key topics of text.
// When the provider is unavailable it counts words locally at two words per second.
func (l *LLMClient) AnalyzeScript(ctx context.Context, text string) models.ScriptAnalysis {
	content, err := l.chat(ctx, scriptSystemPrompt, text, 0.3)
	if err == nil {
		var sa models.ScriptAnalysis
		if err = decodeStrict(stripFence(content), &sa); err == nil && sa.WordCount > 0 {
			if sa.KeyTopics == nil {
				sa.KeyTopics = []string{}
			}
			return sa
		}
	}
	if err != nil && !errors.Is(err, ErrNoAPIKey) {
		l.logger.Warn("script analysis failed, counting locally", zap.Error(err))
	}
	return LocalScriptAnalysis(text)
}

// LocalScriptAnalysis estimates script length without the provider.
func LocalScriptAnalysis(text string) models.ScriptAnalysis {
	words := len(strings.Fields(text))
	return models.ScriptAnalysis{
		WordCount:         words,
		EstimatedDuration: int(math.Ceil(float64(words) * 0.5)),
		KeyTopics:         []string{},
	}
}

type questionSet struct {
	Questions []models.Question `json:"questions"`
}

// GenerateQuestions asks for count practice questions about topics. It returns an empty list on any failure.
func (l *LLMClient) GenerateQuestions(ctx context.Context, topics []string, level string, count int) []models.Question {
	if level == "" {
		level = DefaultQuestionLevel
	}
	system := `Generate audience questions for a presentation rehearsal. Answer with one JSON object: {"questions": [{"question_id": "q1", "text": string, "difficulty": "easy"|"medium"|"hard", "expected_answer_duration": seconds}]}`
	prompt := fmt.Sprintf("Generate %d questions at %s level about: %s", count, level, strings.Join(topics, ", "))
	content, err := l.chat(ctx, system, prompt, 0.7)
	if err != nil {
		if !errors.Is(err, ErrNoAPIKey) {
			l.logger.Warn("question generation failed", zap.Error(err))
		}
		return []models.Question{}
	}
	var qs questionSet
	if err := decodeStrict(stripFence(content), &qs); err != nil {
		l.logger.Warn("unusable question output", zap.Error(err))
		return []models.Question{}
	}
	out := make([]models.Question, 0, count)
	for i, q := range qs.Questions {
		if len(out) == count {
			break
		}
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		if q.QuestionID == "" {
			q.QuestionID = fmt.Sprintf("q%d", i+1)
		}
		out = append(out, q)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
