package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// 100 megapixels; a flat RGBA surface for that is 400MB.
const defaultMaxPixels = 100 * 1000 * 1000

// decodeTIFF decodes the first image directory to RGBA and re-encodes it
// as PNG. Later directories (pages) are ignored.
func (d *Decoder) decodeTIFF(file SourceFile) (out Decoded) {
	defer func() {
		if r := recover(); r != nil {
			out = failed("failed to decode TIFF image: %v", r)
		}
	}()

	if len(file.Data) == 0 {
		return failed("failed to read TIFF file: file is empty")
	}

	cfg, err := tiff.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		return failed("malformed TIFF container: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return failed("TIFF contains no image data")
	}
	if d.MaxPixels > 0 && cfg.Width*cfg.Height > d.MaxPixels {
		return failed("TIFF dimensions %dx%d exceed the preview limit", cfg.Width, cfg.Height)
	}

	img, err := tiff.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return failed("failed to decode TIFF image: %v", err)
	}

	surface, err := toRGBA(img, cfg.Width, cfg.Height)
	if err != nil {
		return failed("failed to create raster surface: %v", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, surface); err != nil {
		return failed("failed to encode TIFF preview: %v", err)
	}

	return Decoded{
		Status:      StatusRenderable,
		Kind:        KindRaster,
		Data:        buf.Bytes(),
		ContentType: MediaTypePNG,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Converted:   true,
	}
}

// toRGBA copies img onto an 8-bit RGBA surface of the declared size. No
// colour management is applied.
func toRGBA(img image.Image, width, height int) (*image.RGBA, error) {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, &sizeMismatchError{wantW: width, wantH: height, gotW: b.Dx(), gotH: b.Dy()}
	}
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba, nil
	}
	surface := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(surface, surface.Bounds(), img, b.Min, draw.Src)
	return surface, nil
}

type sizeMismatchError struct {
	wantW, wantH, gotW, gotH int
}

func (e *sizeMismatchError) Error() string {
	return fmt.Sprintf("decoded image is %dx%d, directory declares %dx%d", e.gotW, e.gotH, e.wantW, e.wantH)
}
