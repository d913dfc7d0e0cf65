// Package tasks defines the asynq task types that decouple background work
// (ingestion, summary warming, memory extraction, digest dispatch) from the
// request handlers that enqueue it.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TypeIngestInsight runs the async ingestion pipeline for one insight.
	TypeIngestInsight = "ingest:insight"
	// TypeWarmSummary warms the summary cache for one URL.
	TypeWarmSummary = "summary:warm"
	// TypeExtractMemory extracts memories after a completed chat turn.
	TypeExtractMemory = "memory:extract"
	// TypeDispatchDigest runs one hourly digest fan-out.
	TypeDispatchDigest = "digest:dispatch"
)

// IngestPayload identifies the insight to (re)ingest.
type IngestPayload struct {
	InsightID uuid.UUID `json:"insight_id"`
}

// WarmSummaryPayload identifies the URL to warm.
type WarmSummaryPayload struct {
	URL string `json:"url"`
}

// ExtractMemoryPayload identifies the session whose latest turn to mine.
type ExtractMemoryPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    string    `json:"user_id"`
}

// DispatchDigestPayload carries the dispatch instant and force flag.
type DispatchDigestPayload struct {
	NowUTC time.Time `json:"now_utc"`
	Force  bool      `json:"force"`
}

// Enqueuer implements service.TaskEnqueuer over an asynq client.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(taskType, raw), opts...)
	return err
}

// EnqueueIngest schedules the async ingestion pipeline for one insight.
func (e *Enqueuer) EnqueueIngest(ctx context.Context, insightID uuid.UUID) error {
	return e.enqueue(ctx, TypeIngestInsight, IngestPayload{InsightID: insightID},
		asynq.MaxRetry(2), asynq.Timeout(6*time.Minute))
}

// EnqueueWarmSummary schedules summary-cache warming for one URL.
func (e *Enqueuer) EnqueueWarmSummary(ctx context.Context, url string) error {
	return e.enqueue(ctx, TypeWarmSummary, WarmSummaryPayload{URL: url},
		asynq.MaxRetry(0), asynq.Timeout(2*time.Minute))
}

// EnqueueMemoryExtraction schedules post-turn memory extraction.
func (e *Enqueuer) EnqueueMemoryExtraction(ctx context.Context, sessionID uuid.UUID, userID string) error {
	return e.enqueue(ctx, TypeExtractMemory, ExtractMemoryPayload{SessionID: sessionID, UserID: userID},
		asynq.MaxRetry(1), asynq.Timeout(2*time.Minute))
}
