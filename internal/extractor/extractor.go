// Package extractor turns image bytes into L2-normalized face descriptors.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
)

// ErrNoFace is returned when a query image contains no detectable face.
var ErrNoFace = errors.New("no face found in search image")

// Descriptor is a fixed-length face feature vector.
type Descriptor = []float32

// Backend detects faces and returns one raw descriptor per face in detection order.
type Backend interface {
	Detect(ctx context.Context, imageData []byte) ([][]float32, error)
	Close() error
}

// Extractor wraps a backend with image preparation, validation and normalization.
type Extractor struct {
	backend Backend
	dim     int
	method  string
	timeout time.Duration
	maxSide int
}

// New creates an extractor producing dim-length descriptors tagged with method.
func New(backend Backend, dim int, method string, timeout time.Duration) *Extractor {
	if dim <= 0 {
		dim = constants.DescriptorDim
	}
	return &Extractor{
		backend: backend,
		dim:     dim,
		method:  method,
		timeout: timeout,
		maxSide: constants.MaxImageSize,
	}
}

// NewFromConfig builds the backend selected by EXTRACTOR_BACKEND.
func NewFromConfig(cfg *config.Config) (*Extractor, error) {
	model, err := cfg.Model()
	if err != nil {
		return nil, err
	}

	var backend Backend
	switch cfg.Extractor.Backend {
	case "dlib":
		backend, err = NewDlibBackend(cfg.Extractor.ModelsDir, cfg.Extractor.CNN)
		if err != nil {
			return nil, fmt.Errorf("creating dlib backend: %w", err)
		}
	case "", "http":
		backend = NewHTTPBackend(cfg.Extractor.URL)
	default:
		return nil, fmt.Errorf("unknown extractor backend: %s", cfg.Extractor.Backend)
	}

	return New(backend, model.Dim, cfg.Method(), cfg.Extractor.Timeout), nil
}

// Method returns the tag stored with every descriptor this extractor produces.
func (e *Extractor) Method() string { return e.method }

// Dim returns the descriptor length.
func (e *Extractor) Dim() int { return e.dim }

// Close releases the backend.
func (e *Extractor) Close() error {
	if err := e.backend.Close(); err != nil {
		return fmt.Errorf("closing extractor backend: %w", err)
	}
	return nil
}

// Extract returns descriptors for every face in the image. Any failure yields an empty result.
func (e *Extractor) Extract(ctx context.Context, imageData []byte) []Descriptor {
	descriptors, err := e.ExtractErr(ctx, imageData)
	if err != nil {
		log.Printf("Face extraction failed: %v", err)
		return nil
	}
	return descriptors
}

// ExtractErr is Extract with the failure reported instead of swallowed.
func (e *Extractor) ExtractErr(ctx context.Context, imageData []byte) ([]Descriptor, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image")
	}

	prepared, err := Prepare(imageData, e.maxSide)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.backend.Detect(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	out := make([]Descriptor, 0, len(raw))
	for i, vec := range raw {
		normalized, ok := normalize(vec, e.dim)
		if !ok {
			log.Printf("Dropping face %d: invalid descriptor (len %d, want %d)", i, len(vec), e.dim)
			continue
		}
		out = append(out, normalized)
	}
	return out, nil
}

// ExtractOne returns the first face in detection order.
func (e *Extractor) ExtractOne(ctx context.Context, imageData []byte) (Descriptor, bool) {
	descriptors := e.Extract(ctx, imageData)
	if len(descriptors) == 0 {
		return nil, false
	}
	return descriptors[0], true
}

// normalize validates length and finiteness and scales to unit length.
// A zero vector is kept as is.
func normalize(vec []float32, dim int) (Descriptor, bool) {
	if len(vec) != dim {
		return nil, false
	}
	var sum float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		sum += f * f
	}

	out := make(Descriptor, dim)
	if sum == 0 {
		return out, true
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, true
}
