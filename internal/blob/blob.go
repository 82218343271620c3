// Package blob stores original images and thumbnails and resolves them to URLs.
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/kozaktomas/face-search/internal/config"
)

// ErrUnavailable wraps failed round trips to a networked store.
var ErrUnavailable = errors.New("blob store unavailable")

const dataURIPrefix = "data:"

// Store persists bytes under an opaque path and resolves paths to retrievable URLs.
type Store interface {
	Put(ctx context.Context, data []byte, name, contentType string) (string, error)
	URL(ctx context.Context, path string) (string, error)
}

// InlineStore keeps content inside the path itself as a data URI.
type InlineStore struct{}

func (InlineStore) Put(ctx context.Context, data []byte, name, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return dataURIPrefix + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (InlineStore) URL(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if !IsInline(path) {
		return "", fmt.Errorf("not an inline path: %s", path)
	}
	return path, nil
}

// IsInline reports whether a path is a self-contained data URI.
func IsInline(path string) bool {
	return strings.HasPrefix(path, dataURIPrefix)
}

// FallbackStore writes to primary and falls back to inline encoding when primary fails.
type FallbackStore struct {
	primary  Store
	fallback InlineStore
}

func NewFallbackStore(primary Store) *FallbackStore {
	return &FallbackStore{primary: primary}
}

func (s *FallbackStore) Put(ctx context.Context, data []byte, name, contentType string) (string, error) {
	path, err := s.primary.Put(ctx, data, name, contentType)
	if err == nil {
		return path, nil
	}
	log.Printf("Warning: blob store write for %s failed, storing inline: %v", sanitizeForLog(name), err)
	return s.fallback.Put(ctx, data, name, contentType)
}

func (s *FallbackStore) URL(ctx context.Context, path string) (string, error) {
	if IsInline(path) {
		return s.fallback.URL(ctx, path)
	}
	return s.primary.URL(ctx, path)
}

// New selects the store variant from configuration. No connectivity probe is made.
func New(cfg *config.StorageConfig) (Store, error) {
	var primary Store
	switch cfg.Backend {
	case "inline":
		return InlineStore{}, nil
	case "", "s3":
		s3Store, err := NewS3Store(cfg)
		if err != nil {
			return nil, err
		}
		primary = s3Store
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}

	if cfg.Fallback == "inline" {
		return NewFallbackStore(primary), nil
	}
	return primary, nil
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// Ensure prepares the backing bucket when the store has one.
// With a fallback configured an unreachable bucket is logged, not fatal.
func Ensure(ctx context.Context, store Store) error {
	switch s := store.(type) {
	case *S3Store:
		return s.EnsureBucket(ctx)
	case *FallbackStore:
		if err := Ensure(ctx, s.primary); err != nil {
			log.Printf("Warning: %v (uploads will be stored inline until it recovers)", err)
		}
	}
	return nil
}
