// Package preview turns uploaded documents into something the viewer can
// display: PDFs and browser-native rasters pass through untouched, TIFFs
// are decoded and re-encoded as PNG.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Status is the outcome of decoding a file.
type Status string

const (
	StatusRenderable  Status = "renderable"
	StatusUnsupported Status = "unsupported"
	StatusFailed      Status = "failed"
)

// Kind tells the viewer how to embed a renderable preview.
type Kind string

const (
	KindPDF    Kind = "pdf"
	KindRaster Kind = "raster"
)

// ReasonUnsupported is reported for files outside the preview formats.
const ReasonUnsupported = "format not supported for preview"

// Decoded is the result of a decode before a handle is issued for it.
type Decoded struct {
	Status      Status
	Kind        Kind
	Reason      string
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Pages       int
	Converted   bool
}

// Decoder dispatches source files to the matching decode path.
type Decoder struct {
	// PageCounter reports PDF page counts; nil disables the lookup.
	PageCounter func(data []byte) (int, error)
	MaxPixels   int
}

// NewDecoder creates a decoder with the pdfcpu page counter.
func NewDecoder() *Decoder {
	return &Decoder{
		PageCounter: countPDFPages,
		MaxPixels:   defaultMaxPixels,
	}
}

// Decode classifies the file and produces its preview payload. Failures
// come back as a StatusFailed result; the error is only set when ctx is
// done before decoding finished.
func (d *Decoder) Decode(ctx context.Context, file SourceFile) (Decoded, error) {
	if err := ctx.Err(); err != nil {
		return Decoded{}, err
	}

	var out Decoded
	switch classify(file) {
	case formatTIFF:
		out = d.decodeTIFF(file)
	case formatPDF:
		out = d.wrapPDF(file)
	case formatRaster:
		out = wrapRaster(file)
	default:
		out = Decoded{Status: StatusUnsupported, Reason: ReasonUnsupported}
	}

	if err := ctx.Err(); err != nil {
		return Decoded{}, err
	}
	return out, nil
}

func (d *Decoder) wrapPDF(file SourceFile) Decoded {
	out := Decoded{
		Status:      StatusRenderable,
		Kind:        KindPDF,
		Data:        file.Data,
		ContentType: MediaTypePDF,
	}
	if d.PageCounter != nil {
		pages, err := d.PageCounter(file.Data)
		if err != nil {
			log.Printf("Page count unavailable for %s: %v", file.Name, err)
		} else {
			out.Pages = pages
		}
	}
	return out
}

func wrapRaster(file SourceFile) Decoded {
	contentType := normalizeMediaType(file.MediaType)
	if contentType == "" || contentType == MediaTypeOctetStream {
		contentType = extensionTypes[file.Extension()]
	}

	out := Decoded{
		Status:      StatusRenderable,
		Kind:        KindRaster,
		Data:        file.Data,
		ContentType: contentType,
	}
	// Dimensions are informational; the browser renders these formats itself.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(file.Data)); err == nil {
		out.Width = cfg.Width
		out.Height = cfg.Height
	}
	return out
}

func failed(format string, args ...interface{}) Decoded {
	return Decoded{Status: StatusFailed, Reason: fmt.Sprintf(format, args...)}
}
