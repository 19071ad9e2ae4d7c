package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Storage receives finished artifacts and returns a stable URL for them
type Storage interface {
	Put(ctx context.Context, data []byte, contentType, destinationHint string) (string, error)
}

// UploadPath builds the destination hint for an artifact owned by owner:
// uploads/{owner}/{unix_ms}-{uploadID}{ext}
func UploadPath(owner, uploadID, fileName string, at time.Time) string {
	ext := strings.ToLower(path.Ext(fileName))
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("uploads/%s/%d-%s%s", sanitize(owner), at.UnixMilli(), sanitize(uploadID), sanitize(ext))
}

// sanitize keeps hints inside their directory
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "_")
	return strings.ReplaceAll(s, "\\", "_")
}

func cleanHint(hint string) (string, error) {
	cleaned := path.Clean("/" + hint)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("empty destination hint")
	}
	return cleaned, nil
}
