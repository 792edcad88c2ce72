package utils

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// ImageStore persists image bytes and returns a stable public URL.
type ImageStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ImageKey builds an object key such as "rounds/2025-06-01/normal-openai-images-<uuid>.png".
// The prompt is never part of the key; it is secret while the round runs.
func ImageKey(now time.Time, difficulty, provider, contentType string) string {
	return fmt.Sprintf("rounds/%s/%s-%s%s",
		now.UTC().Format("2006-01-02"),
		slug.Make(difficulty+" "+provider),
		uuid.NewString(),
		extensionFor(contentType),
	)
}

func extensionFor(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}
