// Package editor is the interactive pre-processor: it shows one pending
// image, lets the user rotate and crop it, and resolves to cancel, skip or
// confirm.
package editor

import (
	"fmt"
	"image"

	"github.com/ocrdesk/ocrdesk/internal/imaging"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// Surface holds the original image and the pending edits.
type Surface struct {
	name     string
	orig     image.Image
	format   string
	rotation int
	crop     image.Rectangle
}

// Open decodes file. It fails for data that is not a supported image.
func Open(file models.PendingFile) (*Surface, error) {
	img, format, err := imaging.Decode(file.Data)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name, err)
	}
	return &Surface{name: file.Name, orig: img, format: format}, nil
}

// View describes the surface for display.
type View struct {
	Name     string
	Format   string
	Width    int
	Height   int
	Rotation int
	Crop     image.Rectangle
}

func (s *Surface) View() View {
	b := s.rotatedBounds()
	return View{
		Name:     s.name,
		Format:   s.format,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Rotation: s.rotation,
		Crop:     s.crop,
	}
}

// Rotate adds deg (a multiple of 90) to the rotation. The crop is dropped
// because its coordinates no longer apply.
func (s *Surface) Rotate(deg int) error {
	next, err := imaging.NormalizeDegrees(s.rotation + deg)
	if err != nil {
		return err
	}
	s.rotation = next
	s.crop = image.Rectangle{}
	return nil
}

// SetCrop selects r, in the coordinates of the rotated image.
func (s *Surface) SetCrop(r image.Rectangle) error {
	r = r.Canon().Intersect(s.rotatedBounds())
	if r.Empty() {
		return imaging.ErrEmptyCrop
	}
	s.crop = r
	return nil
}

// Reset discards rotation and crop.
func (s *Surface) Reset() {
	s.rotation = 0
	s.crop = image.Rectangle{}
}

// Edited reports whether anything would change on export.
func (s *Surface) Edited() bool {
	return s.rotation != 0 || !s.crop.Empty()
}

// Export renders the edits as JPEG data under the original file name.
func (s *Surface) Export(quality, maxDimension int) (models.PendingFile, error) {
	img, err := imaging.Rotate(s.orig, s.rotation)
	if err != nil {
		return models.PendingFile{}, err
	}
	if !s.crop.Empty() {
		if img, err = imaging.Crop(img, s.crop); err != nil {
			return models.PendingFile{}, err
		}
	}
	img = imaging.Fit(img, maxDimension)
	data, err := imaging.EncodeJPEG(img, quality)
	if err != nil {
		return models.PendingFile{}, err
	}
	return models.PendingFile{Name: s.name, Data: data, ContentType: "image/jpeg"}, nil
}

func (s *Surface) rotatedBounds() image.Rectangle {
	b := s.orig.Bounds()
	if s.rotation == 90 || s.rotation == 270 {
		return image.Rect(0, 0, b.Dy(), b.Dx())
	}
	return image.Rect(0, 0, b.Dx(), b.Dy())
}
