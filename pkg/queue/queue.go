package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueAnalysis is the Redis list key for session analysis jobs.
	QueueAnalysis = "edumirror:jobs:analysis"
	// QueueDLQ is the dead-letter queue for jobs that exhausted their retries.
	QueueDLQ = "edumirror:jobs:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeAnalysis JobType = "analysis"
)

// AnalysisPayload is the payload for analysis jobs.
type AnalysisPayload struct {
	SessionID string `json:"session_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// DecodeAnalysis returns the analysis payload of j.
func (j *Job) DecodeAnalysis() (AnalysisPayload, error) {
	var p AnalysisPayload
	if j.Type != JobTypeAnalysis {
		return p, fmt.Errorf("job %s is %q, not analysis", j.ID, j.Type)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("decode analysis payload: %w", err)
	}
	if p.SessionID == "" {
		return p, errors.New("analysis payload missing session_id")
	}
	return p, nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// NewAnalysisJob builds the job envelope for analyzing sessionID.
func NewAnalysisJob(sessionID string) (*Job, error) {
	body, err := json.Marshal(AnalysisPayload{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      JobTypeAnalysis,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EnqueueAnalysis enqueues an analysis job for sessionID.
func (q *Queue) EnqueueAnalysis(ctx context.Context, sessionID string) error {
	job, err := NewAnalysisJob(sessionID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueAnalysis, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued analysis job", zap.String("job_id", job.ID), zap.String("session_id", sessionID))
	return nil
}

// Dequeue blocks up to timeout for a job. It returns a nil job when none arrived
// or the entry was not a valid job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueAnalysis).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueAnalysis, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
