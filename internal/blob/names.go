package blob

import (
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Object key prefixes
const (
	ImagesPrefix     = "images/"
	ThumbnailsPrefix = "thumbnails/"
)

var knownExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Extension returns the lower-case ASCII extension of filename, or "jpg" if unknown.
func Extension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	ext = strings.ToLower(RemoveDiacritics(ext))
	if _, ok := knownExtensions[ext]; !ok {
		return "jpg"
	}
	return ext
}

// ImageKey returns a fresh object key for an original upload.
func ImageKey(filename string) string {
	return ImagesPrefix + uuid.NewString() + "." + Extension(filename)
}

// ThumbnailKey returns a fresh object key for a JPEG thumbnail.
func ThumbnailKey() string {
	return ThumbnailsPrefix + uuid.NewString() + "_thumb.jpg"
}

// ContentType sniffs data, falling back to the filename extension.
func ContentType(filename string, data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	if ct, ok := knownExtensions[Extension(filename)]; ok && filepath.Ext(filename) != "" {
		return ct
	}
	return "application/octet-stream"
}

// CleanFilename strips directories, control characters and diacritics from a client file name.
func CleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, RemoveDiacritics(name))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}
