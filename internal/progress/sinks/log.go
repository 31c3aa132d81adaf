// Package sinks contains progress.Sink implementations: structured logging,
// Prometheus collectors, and an event publisher bridge.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/progress"
)

// LogSink writes each progress event to the structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch, one entry per event.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.Group != "" {
			fields = append(fields,
				zap.String("group", evt.Group),
				zap.Int("succeeded", evt.Succeeded),
				zap.Int("failed", evt.Failed),
				zap.Int("total", evt.Total),
			)
		}
		if evt.GroupName != "" {
			fields = append(fields, zap.String("group_name", evt.GroupName))
		}
		if evt.StoreName != "" {
			fields = append(fields, zap.String("store", evt.StoreName))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("duration", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageJobError {
			s.logger.Warn("job progress", fields...)
			continue
		}
		s.logger.Info("job progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
