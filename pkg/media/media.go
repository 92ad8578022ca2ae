// Package media is the object-storage boundary for checklist photos and
// template example media. The engine depends on ObjectStore; deployments
// without object storage run with a nil store and the engine surfaces
// MediaUnavailable on the paths that need one.
package media

import (
	"context"
	"strings"
	"time"
)

const (
	// PutURLExpiry bounds how long a client has to complete an upload
	PutURLExpiry = time.Hour
	// GetURLExpiry bounds how long a resolved attachment URL stays valid
	GetURLExpiry = 7 * 24 * time.Hour
	// DefaultMimeType is assumed when a client requests an upload slot
	// without naming a content type
	DefaultMimeType = "image/jpeg"
)

// ObjectStore issues time-bounded upload URLs and resolves object keys to
// readable URLs.
type ObjectStore interface {
	IssuePutURL(ctx context.Context, objectKey string, mimeType string, expiry time.Duration) (string, error)
	GetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

var mimeExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/heic":      "heic",
	"image/gif":       "gif",
	"video/mp4":       "mp4",
	"video/quicktime": "mov",
}

// ExtensionFor derives a file extension from a MIME type. Unknown image/*
// and video/* types fall back to the subtype; anything else gets "bin".
func ExtensionFor(mimeType string) string {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	if idx := strings.IndexByte(mimeType, '/'); idx > 0 && idx < len(mimeType)-1 {
		return mimeType[idx+1:]
	}
	return "bin"
}
