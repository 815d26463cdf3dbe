package images

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// ImageFormat represents supported output image formats.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
)

// ParseFormat maps a format name or file extension to an ImageFormat.
// Empty selects JPEG.
func ParseFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported image format: %q", s)
	}
}

// FileExt returns the extension gocv encodes the format with.
func (f ImageFormat) FileExt() gocv.FileExt {
	if f == FormatPNG {
		return gocv.PNGFileExt
	}
	return gocv.JPEGFileExt
}

// ContentType returns the MIME type of the format.
func (f ImageFormat) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// EncodeParams returns the gocv encoder parameters for the given JPEG quality.
// PNG output uses the encoder defaults.
func (f ImageFormat) EncodeParams(quality int) []int {
	if f == FormatPNG {
		return nil
	}
	return []int{int(gocv.IMWriteJpegQuality), quality}
}
