// Package common holds small cross-cutting helpers shared by pipeline stages.
package common

import (
	"context"

	"github.com/marginalia-labs/marginalia/internal/logger"
)

// PipelineInfo logs an info-level entry tagged with the ingestion/chat stage and action,
// adapted from the chat pipeline's per-stage logging convention so every stage of both
// the ingestion pipeline and the chat pipeline logs uniformly.
func PipelineInfo(ctx context.Context, stage, action string, fields map[string]interface{}) {
	entry := logger.GetLogger(ctx).WithField("stage", stage).WithField("action", action)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info(action)
}

// PipelineWarn logs a warning-level pipeline entry.
func PipelineWarn(ctx context.Context, stage, action string, fields map[string]interface{}) {
	entry := logger.GetLogger(ctx).WithField("stage", stage).WithField("action", action)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Warn(action)
}

// PipelineError logs an error-level pipeline entry.
func PipelineError(ctx context.Context, stage, action string, fields map[string]interface{}) {
	entry := logger.GetLogger(ctx).WithField("stage", stage).WithField("action", action)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Error(action)
}
