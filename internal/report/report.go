// Package report persists finished reconciliation reports to blob storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/reconcile"
	"github.com/storefrontlabs/pricewatch/internal/storage"
)

// Clock supplies timestamps for report object keys.
type Clock interface {
	Now() time.Time
}

// JSONWriter serializes reports as indented JSON and uploads them under
// reports/<date>/<job id>.json.
type JSONWriter struct {
	blobs  storage.BlobStore
	clock  Clock
	logger *zap.Logger
}

// NewJSONWriter wires the writer to a blob store.
func NewJSONWriter(blobs storage.BlobStore, clock Clock, logger *zap.Logger) (*JSONWriter, error) {
	if blobs == nil {
		return nil, fmt.Errorf("report writer: blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("report writer: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONWriter{blobs: blobs, clock: clock, logger: logger}, nil
}

// Write uploads the report and returns the object URI.
func (w *JSONWriter) Write(ctx context.Context, jobID string, rpt reconcile.Report) (string, error) {
	data, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	key := fmt.Sprintf("reports/%s/%s.json", w.clock.Now().UTC().Format("2006-01-02"), jobID)
	uri, err := w.blobs.PutObject(ctx, key, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	w.logger.Info("report stored",
		zap.String("job_id", jobID),
		zap.String("uri", uri),
		zap.Int("rows", len(rpt.Rows)),
		zap.Int("discrepancies", len(rpt.Discrepancies)),
	)
	return uri, nil
}
