package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/extractor"
	"github.com/kozaktomas/face-search/internal/gallery"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/kozaktomas/face-search/internal/similarity"
)

// errNoFace is the client-facing message for a query image without a detectable face.
const errNoFace = "No face found in search image"

// Gallery is the image service behind the HTTP API.
type Gallery interface {
	Upload(ctx context.Context, filename string, data []byte) gallery.UploadResult
	Search(ctx context.Context, data []byte, tolerance float64) ([]gallery.ImageView, error)
	List(ctx context.Context, skip, limit int) (*gallery.Page, error)
	Stats(ctx context.Context) (*database.Stats, error)
	Debug(ctx context.Context) (*gallery.DebugInfo, error)
	MaxImageSize() int64
}

// ImagesHandler handles the image upload, search and listing endpoints.
type ImagesHandler struct {
	gallery          Gallery
	defaultTolerance float64
}

// NewImagesHandler creates a new images handler.
func NewImagesHandler(g Gallery, defaultTolerance float64) *ImagesHandler {
	return &ImagesHandler{gallery: g, defaultTolerance: defaultTolerance}
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Images []gallery.ImageView `json:"images"`
	Total  int                 `json:"total"`
}

// readUpload reads one multipart file, reading at most one byte past the limit
// so oversize files are detected without buffering them whole.
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return data, nil
}

// Upload stores every file of the multipart form and reports a result per file.
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := slices.Concat(r.MultipartForm.File["files"], r.MultipartForm.File["file"])
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	results := make([]gallery.UploadResult, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh, h.gallery.MaxImageSize())
		if err != nil {
			log.Printf("Upload: %s", sanitizeForLog(err.Error()))
			results = append(results, gallery.UploadResult{
				Filename: fh.Filename, Status: "failed", Error: "failed to read file",
			})
			continue
		}
		results = append(results, h.gallery.Upload(r.Context(), fh.Filename, data))
	}

	respondJSON(w, http.StatusOK, map[string]any{"uploaded": results})
}

// parseTolerance reads the tolerance from the query string or form, falling back to def.
func parseTolerance(r *http.Request, def float64) (float64, error) {
	raw := r.FormValue("tolerance")
	if raw == "" {
		return def, nil
	}
	tol, err := strconv.ParseFloat(raw, 64)
	if err != nil || !similarity.ValidTolerance(tol) {
		return 0, search.ErrInvalidTolerance
	}
	return tol, nil
}

// Search finds images with a face similar to the first face in the uploaded image.
func (h *ImagesHandler) Search(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	tolerance, err := parseTolerance(r, h.defaultTolerance)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	data, err := readUpload(fhs[0], h.gallery.MaxImageSize())
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if int64(len(data)) > h.gallery.MaxImageSize() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("file exceeds maximum size of %d bytes", h.gallery.MaxImageSize()))
		return
	}

	images, err := h.gallery.Search(r.Context(), data, tolerance)
	switch {
	case errors.Is(err, extractor.ErrNoFace):
		respondError(w, http.StatusBadRequest, errNoFace)
		return
	case errors.Is(err, search.ErrInvalidTolerance):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("Search failed: %v", err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(w, http.StatusOK, SearchResponse{Images: images, Total: len(images)})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", name, raw)
	}
	return v, nil
}

// List returns a page of all images ordered by id.
func (h *ImagesHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", constants.DefaultListLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.gallery.List(r.Context(), skip, limit)
	if errors.Is(err, gallery.ErrInvalidPage) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("List images failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list images")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// Stats returns aggregate image and face counts.
func (h *ImagesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gallery.Stats(r.Context())
	if err != nil {
		log.Printf("Stats failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Debug returns recent images and a sample of stored descriptors.
func (h *ImagesHandler) Debug(w http.ResponseWriter, r *http.Request) {
	info, err := h.gallery.Debug(r.Context())
	if err != nil {
		log.Printf("Debug failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get debug info")
		return
	}
	respondJSON(w, http.StatusOK, info)
}
