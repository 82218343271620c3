// Package search ranks stored images by face similarity to a query descriptor.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/similarity"
)

// ErrInvalidTolerance is returned for tolerances outside the accepted range.
var ErrInvalidTolerance = fmt.Errorf("tolerance must be between %.1f and %.1f",
	constants.MinTolerance, constants.MaxTolerance)

// Match is a single stored face within tolerance of the query.
type Match struct {
	FaceID    int64
	ImageID   int64
	FaceIndex int
	Distance  float64
}

// Result is the ranked outcome of a search.
type Result struct {
	Images  []database.Image // best match first, one entry per image
	Matches []Match          // best match per returned image, aligned with Images
	Total   int
	Skipped int // descriptors ignored because another method produced them
}

// Searcher performs exhaustive descriptor search.
type Searcher struct {
	faces  database.FaceReader
	images database.ImageReader
	metric similarity.Metric
	method string
}

// NewSearcher creates a searcher. Only descriptors tagged with method are compared;
// an empty method compares everything.
func NewSearcher(faces database.FaceReader, images database.ImageReader, metric similarity.Metric, method string) *Searcher {
	if metric == nil {
		metric = similarity.Cosine{}
	}
	return &Searcher{faces: faces, images: images, metric: metric, method: method}
}

// Metric returns the distance metric in use.
func (s *Searcher) Metric() similarity.Metric { return s.metric }

// Search returns images with at least one face within tolerance, ordered by
// their closest face. Ties keep scan order.
func (s *Searcher) Search(ctx context.Context, query []float32, tolerance float64) (*Result, error) {
	if !similarity.ValidTolerance(tolerance) {
		return nil, ErrInvalidTolerance
	}
	if len(query) == 0 {
		return nil, errors.New("empty query descriptor")
	}

	stored, err := s.faces.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load descriptors: %w", err)
	}

	matches, skipped := s.match(query, stored, tolerance)
	if skipped > 0 {
		log.Printf("Search skipped %d descriptors not produced by %s", skipped, s.method)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	best := dedupe(matches)

	ids := make([]int64, len(best))
	for i, m := range best {
		ids[i] = m.ImageID
	}

	result := &Result{Skipped: skipped}
	if len(ids) == 0 {
		return result, nil
	}

	found, err := s.images.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}

	for _, m := range best {
		img, ok := found[m.ImageID]
		if !ok {
			// Orphaned descriptor: the image record is gone.
			continue
		}
		result.Images = append(result.Images, img)
		result.Matches = append(result.Matches, m)
	}
	result.Total = len(result.Images)
	return result, nil
}

func (s *Searcher) match(query []float32, stored []database.StoredFace, tolerance float64) ([]Match, int) {
	var matches []Match
	skipped := 0
	for _, f := range stored {
		if s.method != "" && f.Method != "" && f.Method != s.method {
			skipped++
			continue
		}
		d := s.metric.Distance(query, f.Descriptor)
		if d <= tolerance {
			matches = append(matches, Match{FaceID: f.ID, ImageID: f.ImageID, FaceIndex: f.FaceIndex, Distance: d})
		}
	}
	return matches, skipped
}

// dedupe keeps the first occurrence of each image id.
func dedupe(matches []Match) []Match {
	seen := make(map[int64]struct{}, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.ImageID]; ok {
			continue
		}
		seen[m.ImageID] = struct{}{}
		out = append(out, m)
	}
	return out
}
