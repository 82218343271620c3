package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/gallery"
)

// fakeGallery records calls and returns canned results
type fakeGallery struct {
	maxSize int64

	uploaded   []string
	uploadFunc func(filename string, data []byte) gallery.UploadResult

	searchTolerance float64
	searchResult    []gallery.ImageView
	searchErr       error

	listSkip, listLimit int
	listErr             error

	stats    *database.Stats
	statsErr error
	debugErr error
}

func (f *fakeGallery) Upload(ctx context.Context, filename string, data []byte) gallery.UploadResult {
	f.uploaded = append(f.uploaded, filename)
	if f.uploadFunc != nil {
		return f.uploadFunc(filename, data)
	}
	n := 1
	return gallery.UploadResult{ID: int64(len(f.uploaded)), Filename: filename, Status: "processed - 1 faces found", FaceCount: &n}
}

func (f *fakeGallery) Search(ctx context.Context, data []byte, tolerance float64) ([]gallery.ImageView, error) {
	f.searchTolerance = tolerance
	return f.searchResult, f.searchErr
}

func (f *fakeGallery) List(ctx context.Context, skip, limit int) (*gallery.Page, error) {
	f.listSkip, f.listLimit = skip, limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &gallery.Page{Images: []gallery.ImageView{}, Total: 0, Skip: skip, Limit: limit}, nil
}

func (f *fakeGallery) Stats(ctx context.Context) (*database.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeGallery) Debug(ctx context.Context) (*gallery.DebugInfo, error) {
	if f.debugErr != nil {
		return nil, f.debugErr
	}
	return &gallery.DebugInfo{TotalFaceVectors: 3, IngestMode: "inline", Metric: "cosine"}, nil
}

func (f *fakeGallery) MaxImageSize() int64 {
	if f.maxSize == 0 {
		return 1 << 20
	}
	return f.maxSize
}

// multipartRequest builds a multipart POST with the given files under field
func multipartRequest(t *testing.T, path, field string, files map[string][]byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
