package blob

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/face-search/internal/constants"
	_ "golang.org/x/image/webp"
)

// Thumbnail fits the image into a size x size box and encodes it as JPEG.
func Thumbnail(data []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = constants.ThumbnailSize
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image for thumbnail: %w", err)
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(constants.ThumbnailQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
