// Package thumbnail renders catalog thumbnails and decodes them for display.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
)

const defaultQuality = 85

// Decoder decodes stored thumbnails with imaging, honouring EXIF orientation.
type Decoder struct{}

var _ pcat.ImageDecoder = Decoder{}

// Decode returns the image scaled down to fit maxWidth x maxHeight.
// Non-positive bounds leave the size unchanged.
func (Decoder) Decode(data []byte, maxWidth, maxHeight int) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding thumbnail: %w", err)
	}
	if maxWidth <= 0 || maxHeight <= 0 {
		return img, nil
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos), nil
}

// Result is a rendered thumbnail with the dimensions of its source.
type Result struct {
	Data  []byte
	Pixel model.Pixels
}

// Generator renders JPEG thumbnails bounded by MaxWidth x MaxHeight.
type Generator struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // JPEG quality; 0 means 85
}

// NewGenerator returns a Generator for the given bounds.
func NewGenerator(maxWidth, maxHeight int) *Generator {
	return &Generator{MaxWidth: maxWidth, MaxHeight: maxHeight}
}

// Generate decodes an image from r and renders its thumbnail.
func (g *Generator) Generate(r io.Reader) (*Result, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	thumb := imaging.Fit(src, g.MaxWidth, g.MaxHeight, imaging.Lanczos)

	quality := g.Quality
	if quality == 0 {
		quality = defaultQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return &Result{
		Data: buf.Bytes(),
		Pixel: model.Pixels{
			Asset:     size(src),
			Thumbnail: size(thumb),
		},
	}, nil
}

// GenerateFile renders the thumbnail of the image at path.
func (g *Generator) GenerateFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return g.Generate(f)
}

func size(img image.Image) model.PixelSize {
	b := img.Bounds()
	return model.PixelSize{Width: b.Dx(), Height: b.Dy()}
}
