package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// DecodeUpright decodes image bytes and rotates the result upright according
// to the EXIF orientation tag. Classroom photos arrive straight off phones,
// so face boxes must be computed against the corrected pixels.
func DecodeUpright(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return applyExifOrientation(data, img), nil
}

// applyExifOrientation rotates/flips per the EXIF orientation value (1-8).
func applyExifOrientation(raw []byte, img image.Image) image.Image {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return img // no EXIF data is the common case for crops
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return img
	}

	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// EncodeJPEG encodes an image to JPEG bytes at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeForDetection re-encodes an upright JPEG so the detector always
// sees orientation-corrected pixels regardless of source format.
func NormalizeForDetection(data []byte) ([]byte, error) {
	img, err := DecodeUpright(data)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(img, 95)
}
