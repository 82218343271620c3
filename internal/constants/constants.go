// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Search tolerance constants
const (
	// MinTolerance is the lowest accepted distance tolerance for a search
	MinTolerance = 0.1

	// MaxTolerance is the highest accepted distance tolerance for a search
	MaxTolerance = 1.0

	// DefaultTolerance is the tolerance used when a search request omits one.
	// Lower values = stricter matching
	DefaultTolerance = 0.4
)

// Descriptor constants
const (
	// DescriptorDim is the dimensionality of the default face descriptor model
	DescriptorDim = 128
)

// Processing constants
const (
	// WorkerPoolSize is the default number of deferred ingestion workers
	WorkerPoolSize = 4

	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920

	// ThumbnailSize is the bounding box (px) for generated thumbnails
	ThumbnailSize = 300

	// ThumbnailQuality is the JPEG quality used for thumbnails
	ThumbnailQuality = 85

	// MaxUploadBytes is the default per-file upload limit (10 MiB)
	MaxUploadBytes = 10 * 1024 * 1024
)
