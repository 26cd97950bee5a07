package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"

	"stdimage/internal/models"
)

// encoderFormats maps a key extension to its encoder; jpg and jpeg share one.
var encoderFormats = map[string]imaging.Format{
	"jpg":  imaging.JPEG,
	"jpeg": imaging.JPEG,
	"png":  imaging.PNG,
	"gif":  imaging.GIF,
	"tif":  imaging.TIFF,
	"tiff": imaging.TIFF,
	"bmp":  imaging.BMP,
}

// FormatFromExt returns the encoder for an extension with or without the dot.
func FormatFromExt(ext string) (imaging.Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	f, ok := encoderFormats[ext]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported format %q", models.ErrEncode, ext)
	}
	return f, nil
}

func (r *Renderer) optimizeOptions(format imaging.Format) []imaging.EncodeOption {
	switch format {
	case imaging.JPEG:
		return []imaging.EncodeOption{imaging.JPEGQuality(r.jpegQuality)}
	case imaging.PNG:
		return []imaging.EncodeOption{imaging.PNGCompressionLevel(png.BestCompression)}
	case imaging.GIF:
		return []imaging.EncodeOption{imaging.GIFNumColors(256)}
	}
	return nil
}

// encode tries the optimizing options first and falls back to a plain encode.
func (r *Renderer) encode(img image.Image, ext string) ([]byte, error) {
	format, err := FormatFromExt(ext)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if opts := r.optimizeOptions(format); len(opts) > 0 {
		if err := imaging.Encode(&buf, img, format, opts...); err == nil {
			return buf.Bytes(), nil
		}
		buf.Reset()
	}
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEncode, err)
	}
	return buf.Bytes(), nil
}
