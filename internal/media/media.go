// Package media prepares uploaded report photos: decoding data URIs,
// sniffing the MIME type from content and downscaling for the vision model.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

const jpegQuality = 85

// ParseDataURI decodes "data:image/png;base64,...." into an image. A bare
// base64 payload without the data: prefix is also accepted. The declared
// MIME type is ignored in favour of the sniffed one.
func ParseDataURI(raw string) (*models.Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, models.ValidationError{Field: "image", Message: "is required"}
	}

	payload := raw
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return nil, models.ValidationError{Field: "image", Message: "malformed data URI"}
		}
		if !strings.HasSuffix(raw[:comma], ";base64") {
			return nil, models.ValidationError{Field: "image", Message: "data URI must be base64 encoded"}
		}
		payload = raw[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, models.ValidationError{Field: "image", Message: "invalid base64 payload"}
	}
	return FromBytes(data)
}

// FromBytes wraps raw bytes as an image after checking they are one.
func FromBytes(data []byte) (*models.Image, error) {
	mime, err := Detect(data)
	if err != nil {
		return nil, err
	}
	return &models.Image{Data: data, MimeType: mime}, nil
}

// rasterTypes are the photo formats accepted for upload. Vector formats such
// as SVG can carry script and are refused.
var rasterTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/heic",
	"image/heif",
}

// Detect sniffs the MIME type of data and rejects anything that is not a
// supported raster image.
func Detect(data []byte) (string, error) {
	if len(data) == 0 {
		return "", models.ValidationError{Field: "image", Message: "is empty"}
	}
	mtype := mimetype.Detect(data)
	for _, allowed := range rasterTypes {
		if mtype.Is(allowed) {
			return allowed, nil
		}
	}
	return "", models.ValidationError{Field: "image", Message: fmt.Sprintf("unsupported content type %s", mtype.String())}
}

// DataURI renders img as a base64 data URI.
func DataURI(img *models.Image) string {
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Extension returns the file extension for the image's MIME type, including
// the leading dot.
func Extension(img *models.Image) string {
	if mtype := mimetype.Lookup(img.MimeType); mtype != nil {
		return mtype.Extension()
	}
	return ".bin"
}

// Downscale shrinks img so its long edge is at most maxDim pixels and
// re-encodes it as JPEG. Images already within bounds are returned as is.
// Formats the decoder does not understand (webp, heic) pass through
// untouched.
func Downscale(img *models.Image, maxDim int) (*models.Image, error) {
	if maxDim <= 0 {
		return img, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return img, nil
		}
		return nil, models.ValidationError{Field: "image", Message: "could not be decoded"}
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return img, nil
	}

	src, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, models.ValidationError{Field: "image", Message: "could not be decoded"}
	}

	dst := imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode downscaled image: %w", err)
	}
	return &models.Image{Data: buf.Bytes(), MimeType: "image/jpeg"}, nil
}
