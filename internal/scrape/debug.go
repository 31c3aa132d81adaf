package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/storage"
)

// DebugRecorder captures the page state at the moment a scrape step fails:
// a screenshot, the rendered HTML, and a JSON context file, bundled under a
// shared key prefix so one failure is one directory in the blob store.
type DebugRecorder struct {
	blobs  storage.BlobStore
	clock  interface{ Now() time.Time }
	logger *zap.Logger
}

// NewDebugRecorder wires a recorder. A nil blob store disables capture.
func NewDebugRecorder(blobs storage.BlobStore, clock interface{ Now() time.Time }, logger *zap.Logger) *DebugRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebugRecorder{blobs: blobs, clock: clock, logger: logger}
}

// Capture writes the failure bundle. Capture itself is best effort: it logs
// and returns on any error so diagnostics never break the crawl.
func (r *DebugRecorder) Capture(ctx context.Context, browserCtx context.Context, store, category string, cause error) {
	if r == nil || r.blobs == nil {
		return
	}
	prefix := fmt.Sprintf("debug/%s/%s/%s",
		r.clock.Now().UTC().Format("20060102T150405Z"),
		sanitizeKey(store),
		sanitizeKey(category),
	)

	var screenshot []byte
	var html string
	captureErr := chromedp.Run(browserCtx,
		chromedp.CaptureScreenshot(&screenshot),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if captureErr != nil {
		r.logger.Warn("debug capture failed", zap.String("store", store), zap.Error(captureErr))
	}

	if len(screenshot) > 0 {
		r.put(ctx, prefix+"/screenshot.png", "image/png", screenshot)
	}
	if html != "" {
		r.put(ctx, prefix+"/page.html", "text/html", []byte(html))
	}

	info := map[string]any{
		"store":       store,
		"category":    category,
		"error":       cause.Error(),
		"captured_at": r.clock.Now().UTC(),
	}
	if data, err := json.Marshal(info); err == nil {
		r.put(ctx, prefix+"/context.json", "application/json", data)
	}
}

func (r *DebugRecorder) put(ctx context.Context, key, contentType string, data []byte) {
	if _, err := r.blobs.PutObject(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		r.logger.Warn("debug artifact upload failed", zap.String("key", key), zap.Error(err))
	}
}

func sanitizeKey(s string) string {
	out := make([]rune, 0, len(s))
	for _, ch := range s {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			out = append(out, ch)
		case ch == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
