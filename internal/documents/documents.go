// Package documents is the core's view of the external blob store that holds
// certification scans and avatars. The core decides object paths; the store
// owns bytes and URLs.
package documents

import (
	"context"
	"io"
)

//go:generate mockgen -source=documents.go -destination=mocks/mocks.go -package=mocks Store

// Store accepts a named blob and returns a retrievable URL.
type Store interface {
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error)
	PublicURL(path string) string
}
