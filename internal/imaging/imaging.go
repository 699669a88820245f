// Package imaging holds the raster helpers shared by normalization,
// classification previews and detection crops.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Preview limits for multimodal classification calls.
const (
	previewMaxSide    = 1024
	previewQuality    = 85
	fallbackMaxSide   = 512
	fallbackQuality   = 60
	maxEncodedPreview = 4_000_000
)

// Load decodes the image at path in any registered format.
func Load(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return img, format, nil
}

// SavePNG encodes img as PNG at path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Preview returns a compressed JPEG of the image at path, small enough to
// embed in a classification request.
func Preview(path string) ([]byte, error) {
	img, _, err := Load(path)
	if err != nil {
		return nil, err
	}
	data, err := encodePreview(img, previewMaxSide, previewQuality)
	if err != nil {
		return nil, err
	}
	if base64.StdEncoding.EncodedLen(len(data)) > maxEncodedPreview {
		return encodePreview(img, fallbackMaxSide, fallbackQuality)
	}
	return data, nil
}

func encodePreview(img image.Image, maxSide, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Fit(Flatten(img), maxSide), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Flatten composites img over a white background, dropping transparency.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Fit scales img down so neither side exceeds maxSide, keeping the aspect
// ratio. Images already within bounds are returned unchanged.
func Fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	scale := min(float64(maxSide)/float64(w), float64(maxSide)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// Crop copies the region r of img, grown by padding on every side and
// clamped to the image bounds. The result has a zero origin.
func Crop(img image.Image, r image.Rectangle, padding int) image.Image {
	b := img.Bounds()
	r = image.Rect(r.Min.X-padding, r.Min.Y-padding, r.Max.X+padding, r.Max.Y+padding).Intersect(b)
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
