// Package imaging validates uploaded photos and renders browse thumbnails.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"strings"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeWebP = "image/webp"

	// ThumbnailSize bounds the longest side of a browse thumbnail.
	ThumbnailSize = 640
	WebPQuality   = 75
)

// NormalizeContentType lowercases a media type and drops parameters.
func NormalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// IsAllowedContentType accepts only JPEG and PNG.
func IsAllowedContentType(contentType string) bool {
	switch NormalizeContentType(contentType) {
	case ContentTypeJPEG, "image/jpg", ContentTypePNG:
		return true
	default:
		return false
	}
}

// DetectContentType sniffs the blob.
func DetectContentType(blob []byte) string {
	return NormalizeContentType(http.DetectContentType(blob))
}

// Accept reports whether both the declared type and the sniffed bytes are JPEG or PNG.
// It returns the canonical content type to store the blob under.
func Accept(declared string, blob []byte) (string, bool) {
	if !IsAllowedContentType(declared) {
		return "", false
	}
	detected := DetectContentType(blob)
	if !IsAllowedContentType(detected) {
		return "", false
	}
	return detected, true
}

// Thumbnail decodes blob, fits it into maxSize x maxSize and encodes it as WebP.
func Thumbnail(blob []byte, maxSize int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return encodeWebP(resizeToFit(src, maxSize, maxSize), WebPQuality)
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
