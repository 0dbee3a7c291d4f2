// Package imaging decodes, rotates, crops and re-encodes the images shown in
// the pre-processing editor.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// registered decoders
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG quality of exported edits.
const DefaultQuality = 90

var (
	ErrBadRotation = errors.New("rotation must be a multiple of 90 degrees")
	ErrEmptyCrop   = errors.New("crop rectangle does not overlap the image")
)

// Decode reads any registered format and returns the image and format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// NormalizeDegrees maps any multiple of 90 into 0, 90, 180 or 270.
func NormalizeDegrees(deg int) (int, error) {
	if deg%90 != 0 {
		return 0, ErrBadRotation
	}
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg, nil
}

// Rotate turns img clockwise by deg, which must be a multiple of 90. The
// result's bounds start at the origin.
func Rotate(img image.Image, deg int) (image.Image, error) {
	deg, err := NormalizeDegrees(deg)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if deg == 0 {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
		return dst, nil
	}

	var dst *image.RGBA
	if deg == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch deg {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst, nil
}

// Crop copies the part of img inside r, clipped to the image bounds.
func Crop(img image.Image, r image.Rectangle) (image.Image, error) {
	r = r.Canon().Intersect(img.Bounds())
	if r.Empty() {
		return nil, ErrEmptyCrop
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst, nil
}

// Fit scales img down so neither side exceeds limit. Zero means no limit.
func Fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	if limit <= 0 || (b.Dx() <= limit && b.Dy() <= limit) {
		return img
	}
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = max(1, h*limit/w)
		w = limit
	} else {
		w = max(1, w*limit/h)
		h = limit
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img; quality <= 0 means DefaultQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
