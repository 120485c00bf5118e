package preview

import (
	"mime"
	"path/filepath"
	"strings"
)

// Media types the dispatcher recognises
const (
	MediaTypePDF         = "application/pdf"
	MediaTypeTIFF        = "image/tiff"
	MediaTypePNG         = "image/png"
	MediaTypeOctetStream = "application/octet-stream"
)

// SourceFile is an uploaded file as the viewer selected it. The decoder only
// reads it.
type SourceFile struct {
	Name      string
	MediaType string
	Size      int64
	Data      []byte
}

// Extension returns the lower-cased file extension including the dot.
func (f SourceFile) Extension() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// extensionTypes lists every extension a preview can be produced for.
var extensionTypes = map[string]string{
	".pdf":  MediaTypePDF,
	".png":  MediaTypePNG,
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tif":  MediaTypeTIFF,
	".tiff": MediaTypeTIFF,
}

// format is the dispatch outcome for a source file.
type format int

const (
	formatUnsupported format = iota
	formatTIFF
	formatPDF
	formatRaster
)

// classify picks the decode path. An extension outside the preview set is
// unsupported whatever media type was declared. An empty or generic media
// type falls back to the extension.
func classify(f SourceFile) format {
	ext := f.Extension()
	if ext != "" {
		if _, ok := extensionTypes[ext]; !ok {
			return formatUnsupported
		}
	}

	mediaType := normalizeMediaType(f.MediaType)
	if mediaType == "" || mediaType == MediaTypeOctetStream {
		mediaType = extensionTypes[ext]
	}

	switch {
	case mediaType == MediaTypeTIFF || mediaType == "image/tif" || ext == ".tif" || ext == ".tiff":
		return formatTIFF
	case mediaType == MediaTypePDF:
		return formatPDF
	case strings.HasPrefix(mediaType, "image/"):
		return formatRaster
	default:
		return formatUnsupported
	}
}

func normalizeMediaType(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(declared)
	}
	return mt
}
