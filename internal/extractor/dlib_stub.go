//go:build !dlib

package extractor

import (
	"context"
	"errors"
)

var errDlibUnavailable = errors.New("dlib backend not compiled in (build with -tags dlib)")

// DlibBackend is unavailable in builds without the dlib tag.
type DlibBackend struct{}

func NewDlibBackend(modelsDir string, cnn bool) (*DlibBackend, error) {
	return nil, errDlibUnavailable
}

func (b *DlibBackend) Detect(ctx context.Context, imageData []byte) ([][]float32, error) {
	return nil, errDlibUnavailable
}

func (b *DlibBackend) Close() error { return nil }
