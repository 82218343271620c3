// Package gallery implements the image upload, search and listing use cases.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/kozaktomas/face-search/internal/blob"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/extractor"
	"github.com/kozaktomas/face-search/internal/ingest"
	"github.com/kozaktomas/face-search/internal/search"
)

// ErrInvalidPage is returned for out-of-range skip/limit values.
var ErrInvalidPage = fmt.Errorf("skip must be >= 0 and limit between 1 and %d", constants.MaxListLimit)

// QueryExtractor extracts the descriptor of the first face in a query image.
type QueryExtractor interface {
	ExtractOne(ctx context.Context, imageData []byte) (extractor.Descriptor, bool)
}

// ImageView is an image as returned to API clients.
type ImageView struct {
	ID           int64    `json:"id"`
	Filename     string   `json:"filename"`
	URL          string   `json:"url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	FaceCount    int      `json:"face_count"`
	Distance     *float64 `json:"distance,omitempty"`
}

// UploadResult reports the fate of one uploaded file.
type UploadResult struct {
	ID        int64  `json:"id,omitempty"`
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	FaceCount *int   `json:"face_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Page is one slice of the image listing.
type Page struct {
	Images []ImageView `json:"images"`
	Total  int         `json:"total"`
	Skip   int         `json:"skip"`
	Limit  int         `json:"limit"`
}

// Options configures the service.
type Options struct {
	MaxImageSize  int64
	ThumbnailSize int
}

// Service composes stores, extraction and ingestion.
type Service struct {
	images    database.ImageWriter
	faces     database.FaceReader
	blobs     blob.Store
	extractor QueryExtractor
	searcher  *search.Searcher
	runner    ingest.Runner
	opts      Options
}

// NewService creates the gallery service.
func NewService(
	images database.ImageWriter, faces database.FaceReader, blobs blob.Store,
	ex QueryExtractor, searcher *search.Searcher, runner ingest.Runner, opts Options,
) *Service {
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = constants.MaxUploadBytes
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = constants.ThumbnailSize
	}
	return &Service{
		images:    images,
		faces:     faces,
		blobs:     blobs,
		extractor: ex,
		searcher:  searcher,
		runner:    runner,
		opts:      opts,
	}
}

// MaxImageSize returns the per-file upload limit in bytes.
func (s *Service) MaxImageSize() int64 { return s.opts.MaxImageSize }

func failed(filename, reason string) UploadResult {
	return UploadResult{Filename: filename, Status: "failed", Error: reason}
}

// Upload stores one file, creates its record and hands it to the ingestion runner.
// Failures are reported in the result so a batch continues past a bad file.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) UploadResult {
	filename = blob.CleanFilename(filename)

	if len(data) == 0 {
		return failed(filename, "empty file")
	}
	if int64(len(data)) > s.opts.MaxImageSize {
		return failed(filename, fmt.Sprintf("file exceeds maximum size of %d bytes", s.opts.MaxImageSize))
	}

	thumb, err := blob.Thumbnail(data, s.opts.ThumbnailSize)
	if err != nil {
		log.Printf("Upload %s: %v", filename, err)
		return failed(filename, "invalid image")
	}

	path, err := s.blobs.Put(ctx, data, blob.ImageKey(filename), blob.ContentType(filename, data))
	if err != nil {
		log.Printf("Upload %s: storing original: %v", filename, err)
		return failed(filename, "storage unavailable")
	}
	thumbPath, err := s.blobs.Put(ctx, thumb, blob.ThumbnailKey(), "image/jpeg")
	if err != nil {
		log.Printf("Upload %s: storing thumbnail: %v", filename, err)
		return failed(filename, "storage unavailable")
	}

	img := &database.Image{Filename: filename, Path: path, ThumbnailPath: thumbPath}
	if err := s.images.Create(ctx, img); err != nil {
		log.Printf("Upload %s: creating record: %v", filename, err)
		return failed(filename, "database error")
	}

	sub, err := s.runner.Submit(ctx, img.ID, data)
	if err != nil {
		log.Printf("Upload %s (image %d): %v", filename, img.ID, err)
		res := failed(filename, err.Error())
		if !errors.Is(err, ingest.ErrQueueUnavailable) {
			res.ID = img.ID
			return res
		}
		// Nothing will ever ingest the record, so it must not be listed.
		res.Status = "queue unavailable"
		if derr := s.images.Delete(ctx, img.ID); derr != nil {
			log.Printf("Upload %s: removing unqueued image %d: %v", filename, img.ID, derr)
			res.ID = img.ID
		}
		return res
	}

	res := UploadResult{ID: img.ID, Filename: filename, Status: sub.Status, FaceCount: sub.FaceCount}
	if sub.Failed {
		res.Error = sub.Status
	}
	return res
}

// Search finds images containing a face similar to the first face of the query image.
func (s *Service) Search(ctx context.Context, data []byte, tolerance float64) ([]ImageView, error) {
	query, ok := s.extractor.ExtractOne(ctx, data)
	if !ok {
		return nil, extractor.ErrNoFace
	}

	res, err := s.searcher.Search(ctx, query, tolerance)
	if err != nil {
		return nil, err
	}

	views := make([]ImageView, 0, len(res.Images))
	for i, img := range res.Images {
		v, err := s.view(ctx, img)
		if err != nil {
			return nil, err
		}
		d := res.Matches[i].Distance
		v.Distance = &d
		views = append(views, v)
	}
	return views, nil
}

// List returns images ordered by id.
func (s *Service) List(ctx context.Context, skip, limit int) (*Page, error) {
	if skip < 0 || limit < 1 || limit > constants.MaxListLimit {
		return nil, ErrInvalidPage
	}

	images, err := s.images.List(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	total, err := s.images.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}

	views, err := s.views(ctx, images)
	if err != nil {
		return nil, err
	}
	return &Page{Images: views, Total: total, Skip: skip, Limit: limit}, nil
}

// Stats returns aggregate counts.
func (s *Service) Stats(ctx context.Context) (*database.Stats, error) {
	stats, err := s.images.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// DebugFace summarizes one stored descriptor.
type DebugFace struct {
	ID             int64  `json:"id"`
	ImageID        int64  `json:"image_id"`
	FaceIndex      int    `json:"face_index"`
	EncodingLength int    `json:"encoding_length"`
	Method         string `json:"method"`
}

// DebugImage summarizes one recent image.
type DebugImage struct {
	ID        int64  `json:"id"`
	Filename  string `json:"filename"`
	FaceCount int    `json:"face_count"`
	CreatedAt string `json:"created_at"`
}

// DebugInfo is the payload of the debug endpoint.
type DebugInfo struct {
	RecentImages     []DebugImage `json:"recent_images"`
	TotalFaceVectors int          `json:"total_face_vectors"`
	SampleFaces      []DebugFace  `json:"sample_faces"`
	IngestMode       string       `json:"ingest_mode"`
	Metric           string       `json:"metric"`
}

// Debug reports recent images and a sample of stored descriptors.
func (s *Service) Debug(ctx context.Context) (*DebugInfo, error) {
	recent, err := s.images.Recent(ctx, constants.DebugSampleSize)
	if err != nil {
		return nil, fmt.Errorf("recent images: %w", err)
	}
	total, err := s.faces.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count faces: %w", err)
	}
	sample, err := s.faces.Sample(ctx, constants.DebugSampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample faces: %w", err)
	}

	info := &DebugInfo{
		RecentImages:     make([]DebugImage, 0, len(recent)),
		TotalFaceVectors: total,
		SampleFaces:      make([]DebugFace, 0, len(sample)),
		IngestMode:       s.runner.Mode(),
		Metric:           s.searcher.Metric().Name(),
	}
	for _, img := range recent {
		info.RecentImages = append(info.RecentImages, DebugImage{
			ID: img.ID, Filename: img.Filename, FaceCount: img.FaceCount,
			CreatedAt: img.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	for _, f := range sample {
		info.SampleFaces = append(info.SampleFaces, DebugFace{
			ID: f.ID, ImageID: f.ImageID, FaceIndex: f.FaceIndex, EncodingLength: len(f.Descriptor), Method: f.Method,
		})
	}
	return info, nil
}

func (s *Service) views(ctx context.Context, images []database.Image) ([]ImageView, error) {
	out := make([]ImageView, 0, len(images))
	for _, img := range images {
		v, err := s.view(ctx, img)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, img database.Image) (ImageView, error) {
	url, err := s.blobs.URL(ctx, img.Path)
	if err != nil {
		return ImageView{}, fmt.Errorf("resolve url for image %d: %w", img.ID, err)
	}
	thumbURL := url
	if strings.TrimSpace(img.ThumbnailPath) != "" {
		thumbURL, err = s.blobs.URL(ctx, img.ThumbnailPath)
		if err != nil {
			return ImageView{}, fmt.Errorf("resolve thumbnail url for image %d: %w", img.ID, err)
		}
	}
	return ImageView{
		ID:           img.ID,
		Filename:     img.Filename,
		URL:          url,
		ThumbnailURL: thumbURL,
		FaceCount:    img.FaceCount,
	}, nil
}
