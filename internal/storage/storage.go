// Package storage defines the blob store contract used for debug artifact
// bundles and rendered report files.
package storage

import (
	"context"
	"io"
)

// BlobStore persists a named artifact and returns a URI external tooling can
// use to retrieve it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
