package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"legal-researcher/internal/config"
)

var ErrNotFound = errors.New("artifact not found")

// Store holds run artifacts. Put is write-once: a key that already exists is
// left untouched and models.ErrArtifactExists is returned.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type StoreType string

const (
	StoreTypeLocal StoreType = "local"
	StoreTypeS3    StoreType = "s3"
)

// New creates the store selected by cfg.Type.
func New(ctx context.Context, cfg config.OutputConfig) (Store, error) {
	switch StoreType(cfg.Type) {
	case StoreTypeLocal, "":
		return NewLocalStore(cfg.Dir)
	case StoreTypeS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown output type: %s", cfg.Type)
	}
}

// ArtifactKey builds "<case_id>/<run_id>/<name>" with the case ID made safe
// for use as a single path segment.
func ArtifactKey(caseID, runID, name string) string {
	return path.Join(sanitizeSegment(caseID), sanitizeSegment(runID), name)
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

func validateKey(key string) error {
	if key == "" || path.IsAbs(key) || filepath.IsAbs(key) {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid artifact key %q", key)
		}
	}
	return nil
}

// contentType picks the MIME type stored alongside an artifact.
func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
