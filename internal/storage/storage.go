package storage

import (
	"context"
	"io"
)

// FileStorage defines the interface for file storage operations
type FileStorage interface {
	// SaveFile saves a file under folder and returns its public URL
	SaveFile(ctx context.Context, file io.Reader, folder, filename, contentType string) (string, error)
	// DeleteFile deletes a file by its URL
	DeleteFile(ctx context.Context, fileURL string) error
	// Owns reports whether fileURL was issued by this storage
	Owns(fileURL string) bool
}
