package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types/interfaces"
)

// IngestTaskHandler consumes TypeIngestInsight tasks.
type IngestTaskHandler struct {
	ingest *service.IngestService
}

func NewIngestTaskHandler(ingest *service.IngestService) interfaces.TaskHandler {
	return &IngestTaskHandler{ingest: ingest}
}

// Handle handles the task
func (h *IngestTaskHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	return h.ingest.RunPipeline(ctx, payload.InsightID)
}

// WarmSummaryTaskHandler consumes TypeWarmSummary tasks.
type WarmSummaryTaskHandler struct {
	metadata *service.MetadataService
}

func NewWarmSummaryTaskHandler(metadata *service.MetadataService) interfaces.TaskHandler {
	return &WarmSummaryTaskHandler{metadata: metadata}
}

// Handle handles the task
func (h *WarmSummaryTaskHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload WarmSummaryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	h.metadata.WarmSummary(ctx, payload.URL)
	return nil
}

// ExtractMemoryTaskHandler consumes TypeExtractMemory tasks and triggers
// auto-consolidation afterwards when the user's settings allow it.
type ExtractMemoryTaskHandler struct {
	memory *service.MemoryService
}

func NewExtractMemoryTaskHandler(memory *service.MemoryService) interfaces.TaskHandler {
	return &ExtractMemoryTaskHandler{memory: memory}
}

// Handle handles the task
func (h *ExtractMemoryTaskHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExtractMemoryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	if err := h.memory.ExtractFromSession(ctx, payload.SessionID, payload.UserID); err != nil {
		// Extraction is best-effort; a retryable upstream error goes back to
		// the queue, everything else is dropped with a log line.
		var le *service.LLMError
		if errors.As(err, &le) && le.Retryable() {
			return err
		}
		logger.Warnf(ctx, "memory extraction dropped: %v", err)
		return nil
	}
	if err := h.memory.AutoConsolidate(ctx, payload.UserID); err != nil {
		logger.Warnf(ctx, "auto-consolidation failed: %v", err)
	}
	return nil
}

// DispatchDigestTaskHandler consumes TypeDispatchDigest tasks from the cron
// schedule in the worker process.
type DispatchDigestTaskHandler struct {
	dispatch *service.EmailDispatchService
}

func NewDispatchDigestTaskHandler(dispatch *service.EmailDispatchService) interfaces.TaskHandler {
	return &DispatchDigestTaskHandler{dispatch: dispatch}
}

// Handle handles the task
func (h *DispatchDigestTaskHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DispatchDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	now := payload.NowUTC
	if now.IsZero() {
		now = time.Now().UTC()
	}
	decisions, err := h.dispatch.DispatchAll(ctx, now, payload.Force)
	if err != nil {
		return err
	}
	var sent int
	for _, d := range decisions {
		if d.Sent {
			sent++
		}
	}
	logger.Infof(ctx, "digest dispatch done: %d users, %d sent", len(decisions), sent)
	return nil
}
