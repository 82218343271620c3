// Package similarity implements the distance metrics used to compare face descriptors.
package similarity

import (
	"fmt"
	"math"

	"github.com/kozaktomas/face-search/internal/constants"
)

// Metric computes a distance between two descriptors. Smaller is more similar.
type Metric interface {
	Name() string
	Distance(a, b []float32) float64
}

// Cosine is the cosine distance 1 - a·b/(|a||b|).
type Cosine struct{}

func (Cosine) Name() string { return "cosine" }

// Distance returns a value in [0, 2]. A zero-norm input yields 1 (orthogonal).
// Vectors of different length come from different extraction methods and never match.
func (Cosine) Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// Euclidean is the L2 distance, the native metric of dlib descriptors.
type Euclidean struct{}

func (Euclidean) Name() string { return "euclidean" }

func (Euclidean) Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ByName resolves a metric from its configuration name.
func ByName(name string) (Metric, error) {
	switch name {
	case "", "cosine":
		return Cosine{}, nil
	case "euclidean":
		return Euclidean{}, nil
	default:
		return nil, fmt.Errorf("unknown similarity metric: %s", name)
	}
}

// IsMatch reports whether two descriptors are within tolerance. The boundary is inclusive.
func IsMatch(m Metric, a, b []float32, tolerance float64) bool {
	return m.Distance(a, b) <= tolerance
}

// ValidTolerance reports whether a tolerance lies in the accepted range.
func ValidTolerance(tolerance float64) bool {
	return !math.IsNaN(tolerance) && tolerance >= constants.MinTolerance && tolerance <= constants.MaxTolerance
}
