//go:build dlib

package extractor

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
)

// DlibBackend runs the dlib ResNet face recognizer in process.
type DlibBackend struct {
	mu         sync.Mutex
	recognizer *face.Recognizer
	cnn        bool
}

// NewDlibBackend loads the dlib models from modelsDir.
func NewDlibBackend(modelsDir string, cnn bool) (*DlibBackend, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("loading dlib models from %s: %w", modelsDir, err)
	}
	return &DlibBackend{recognizer: rec, cnn: cnn}, nil
}

// Detect expects JPEG input, which Prepare guarantees.
func (b *DlibBackend) Detect(ctx context.Context, imageData []byte) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The recognizer is not safe for concurrent use.
	b.mu.Lock()
	defer b.mu.Unlock()

	var faces []face.Face
	var err error
	if b.cnn {
		faces, err = b.recognizer.RecognizeCNN(imageData)
	} else {
		faces, err = b.recognizer.Recognize(imageData)
	}
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	out := make([][]float32, 0, len(faces))
	for _, f := range faces {
		desc := [128]float32(f.Descriptor)
		out = append(out, desc[:])
	}
	return out, nil
}

func (b *DlibBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recognizer.Close()
	return nil
}
