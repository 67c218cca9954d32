package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalFileStorage implements FileStorage for local filesystem
type LocalFileStorage struct {
	basePath string
	baseURL  string
}

// NewLocalFileStorage creates a new local file storage
func NewLocalFileStorage(basePath, baseURL string) (*LocalFileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalFileStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// BasePath is the directory files are written to
func (s *LocalFileStorage) BasePath() string {
	return s.basePath
}

// SaveFile saves a file to local disk
func (s *LocalFileStorage) SaveFile(ctx context.Context, file io.Reader, folder, filename, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.basePath, filepath.Clean("/" + folder))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	newFilename := fmt.Sprintf("%s_%s%s", time.Now().Format("20060102"), uuid.New().String(), extension(filename, contentType))
	dst, err := os.Create(filepath.Join(dir, newFilename))
	if err != nil {
		return "", fmt.Errorf("failed to create file on disk: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file content: %w", err)
	}

	return s.baseURL + path.Join("/", folder, newFilename), nil
}

// DeleteFile deletes a file from local disk. Unknown URLs are ignored.
func (s *LocalFileStorage) DeleteFile(ctx context.Context, fileURL string) error {
	rel, ok := s.relativePath(fileURL)
	if !ok {
		return nil
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalFileStorage) Owns(fileURL string) bool {
	_, ok := s.relativePath(fileURL)
	return ok
}

// relativePath maps a URL under baseURL to a cleaned path inside basePath
func (s *LocalFileStorage) relativePath(fileURL string) (string, bool) {
	if !strings.HasPrefix(fileURL, s.baseURL+"/") {
		return "", false
	}
	rest := strings.TrimPrefix(fileURL, s.baseURL)
	if u, err := url.Parse(rest); err == nil {
		rest = u.Path
	}
	// Clean against a root so ".." cannot escape basePath
	rel := strings.TrimPrefix(path.Clean("/"+rest), "/")
	if rel == "" {
		return "", false
	}
	return rel, true
}

// extension picks the file extension from the name or, failing that, the content type
func extension(filename, contentType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
