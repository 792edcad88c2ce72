// utils/http.go
package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxImageBytes caps downloads of provider-hosted images.
const maxImageBytes = 20 * 1024 * 1024

var HTTPClient = &http.Client{
	Timeout: 60 * time.Second,
}

// DownloadBytes fetches url and returns its body and content type.
func DownloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s returned status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read download body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("download %s exceeds %d bytes", url, maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
