package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes images below an uploads directory that the HTTP server
// exposes at /uploads.
type LocalStore struct {
	Dir           string
	PublicBaseURL string
}

// NewLocalStore creates the uploads directory if it doesn't exist
func NewLocalStore(dir, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to ensure upload dir: %w", err)
	}
	return &LocalStore{Dir: dir, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Save writes data to Dir/key and returns the public URL.
func (s *LocalStore) Save(_ context.Context, key string, data []byte, _ string) (string, error) {
	destPath := filepath.Join(s.Dir, filepath.FromSlash(key))

	// Refuse keys that escape the uploads directory.
	if !strings.HasPrefix(destPath, filepath.Clean(s.Dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal image key: %s", key)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	return fmt.Sprintf("%s/uploads/%s", s.PublicBaseURL, key), nil
}
