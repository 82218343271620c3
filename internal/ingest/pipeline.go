// Package ingest extracts face descriptors from uploaded images and persists them,
// either inline with the upload or through a durable job queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/extractor"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrBusy is returned when the same image is already being ingested.
var ErrBusy = errors.New("image is already being processed")

// Outcome statuses
const (
	StatusSuccess = "success"
	StatusNoFaces = "no_faces"
	StatusFailure = "failure"
)

// Outcome is the result of one ingestion attempt.
type Outcome struct {
	ImageID   int64
	Status    string
	FaceCount int
	Err       error
}

// Message renders the outcome as the upload status string.
func (o Outcome) Message() string {
	switch o.Status {
	case StatusSuccess:
		return fmt.Sprintf("processed - %d faces found", o.FaceCount)
	case StatusNoFaces:
		return "processed - no faces found"
	default:
		reason := "unknown error"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		return "processing failed: " + reason
	}
}

// FaceExtractor is the subset of the extractor used for ingestion.
type FaceExtractor interface {
	ExtractErr(ctx context.Context, imageData []byte) ([]extractor.Descriptor, error)
	Method() string
}

// Pipeline runs extraction and the atomic descriptor write for one image.
type Pipeline struct {
	extractor FaceExtractor
	faces     database.FaceWriter
	inFlight  cmap.ConcurrentMap[string, struct{}]
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(ex FaceExtractor, faces database.FaceWriter) *Pipeline {
	return &Pipeline{
		extractor: ex,
		faces:     faces,
		inFlight:  cmap.New[struct{}](),
	}
}

// Ingest extracts all faces and replaces the image's stored descriptors.
// Re-running it for the same image converges to the same stored state.
func (p *Pipeline) Ingest(ctx context.Context, imageID int64, imageData []byte) Outcome {
	key := strconv.FormatInt(imageID, 10)
	if !p.inFlight.SetIfAbsent(key, struct{}{}) {
		return Outcome{ImageID: imageID, Status: StatusFailure, Err: ErrBusy}
	}
	defer p.inFlight.Remove(key)

	descriptors, err := p.extractor.ExtractErr(ctx, imageData)
	if err != nil {
		// Extraction failures are indistinguishable from "no faces" to callers.
		log.Printf("Image %d: face extraction failed, storing no faces: %v", imageID, err)
		descriptors = nil
	}

	method := p.extractor.Method()
	faces := make([]database.StoredFace, len(descriptors))
	for i, d := range descriptors {
		faces[i] = database.StoredFace{
			ImageID:    imageID,
			FaceIndex:  i,
			Descriptor: d,
			Method:     method,
			Dim:        len(d),
		}
	}

	if err := p.faces.ReplaceFaces(ctx, imageID, faces); err != nil {
		log.Printf("Image %d: persisting %d faces failed: %v", imageID, len(faces), err)
		return Outcome{ImageID: imageID, Status: StatusFailure, Err: err}
	}

	if len(faces) == 0 {
		log.Printf("Image %d: no faces found", imageID)
		return Outcome{ImageID: imageID, Status: StatusNoFaces}
	}
	log.Printf("Image %d: stored %d faces", imageID, len(faces))
	return Outcome{ImageID: imageID, Status: StatusSuccess, FaceCount: len(faces)}
}

// InFlight reports whether the image is currently being ingested.
func (p *Pipeline) InFlight(imageID int64) bool {
	return p.inFlight.Has(strconv.FormatInt(imageID, 10))
}
