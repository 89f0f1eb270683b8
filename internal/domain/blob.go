package domain

import (
	"context"
	"io"
)

// BlobWriter uploads run artifacts (prompt, raw oracle output, outcome) to
// object storage for later audit. Archival is best-effort; callers log and
// continue on failure.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
