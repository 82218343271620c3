package database

import (
	"errors"
	"testing"
)

func TestRegistry_UnregisteredBackend(t *testing.T) {
	RegisterPostgresBackend(nil, nil, nil)

	if _, err := GetImageWriter(); !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend for images, got %v", err)
	}
	if _, err := GetFaceWriter(); !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend for faces, got %v", err)
	}
	if _, err := GetJobQueue(); !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend for jobs, got %v", err)
	}
}
