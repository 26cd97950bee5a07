// Package render produces variation images from an original and writes them
// next to it in storage.
package render

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // decode-only source format

	"stdimage/internal/keylock"
	"stdimage/internal/logging"
	"stdimage/internal/models"
)

const defaultJPEGQuality = 90

var filters = map[models.Resample]imaging.ResampleFilter{
	models.ResampleLanczos:           imaging.Lanczos,
	models.ResampleNearest:           imaging.NearestNeighbor,
	models.ResampleBox:               imaging.Box,
	models.ResampleBilinear:          imaging.Linear,
	models.ResampleHermite:           imaging.Hermite,
	models.ResampleBicubic:           imaging.CatmullRom,
	models.ResampleMitchellNetravali: imaging.MitchellNetravali,
	models.ResampleBSpline:           imaging.BSpline,
	models.ResampleGaussian:          imaging.Gaussian,
	models.ResampleHamming:           imaging.Hamming,
	models.ResampleHann:              imaging.Hann,
	models.ResampleBlackman:          imaging.Blackman,
}

// Filter returns the imaging filter for r, defaulting to Lanczos.
func Filter(r models.Resample) imaging.ResampleFilter {
	if f, ok := filters[r]; ok {
		return f
	}
	return imaging.Lanczos
}

type Renderer struct {
	jpegQuality int
	locker      keylock.Locker
	log         logging.Logger
}

type Option func(*Renderer)

func WithJPEGQuality(q int) Option {
	return func(r *Renderer) {
		if q > 0 {
			r.jpegQuality = q
		}
	}
}

// WithLocker serialises writes of the same variation key.
func WithLocker(l keylock.Locker) Option {
	return func(r *Renderer) { r.locker = l }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		jpegQuality: defaultJPEGQuality,
		locker:      keylock.None{},
		log:         logging.GetLogger("render"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render decodes src, fits or crops it to spec and re-encodes it in the
// format named by ext (the original's extension).
func (r *Renderer) Render(src []byte, ext string, spec models.VariationSpec) ([]byte, error) {
	const op = "render.Render"

	img, err := Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := r.transform(img, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := r.encode(out, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

// Decode decodes any registered image format.
func Decode(src []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	return img, nil
}

// Dimensions reads width and height without decoding pixel data.
func Dimensions(src []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	return cfg.Width, cfg.Height, nil
}

func needsResize(w, h int, spec models.VariationSpec) bool {
	if spec.Crop {
		return w != spec.Width || h != spec.Height
	}
	return w > spec.Width || h > spec.Height
}

// transform never scales a non-crop variation up; a crop variation always
// comes out at exactly spec.Width x spec.Height, anchored at the center.
func (r *Renderer) transform(img image.Image, spec models.VariationSpec) (image.Image, error) {
	b := img.Bounds()
	filter := Filter(spec.Resample)

	if needsResize(b.Dx(), b.Dy(), spec) {
		img = preShrink(img, spec)
		if spec.Crop {
			img = imaging.Fill(img, spec.Width, spec.Height, imaging.Center, filter)
		} else {
			img = imaging.Fit(img, spec.Width, spec.Height, filter)
		}
	}

	if spec.Watermark != "" {
		return watermark(img, spec.Watermark)
	}
	return img, nil
}

// preShrink halves the image with a box filter while it is still more than
// twice the target, so the final filter runs on a small bitmap.
func preShrink(img image.Image, spec models.VariationSpec) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	factor := 1
	for w/factor > 2*spec.Width && h*2/factor > 2*spec.Height {
		factor *= 2
	}
	// the shrunk image must still cover the target
	for factor > 1 && (w/factor < spec.Width || h/factor < spec.Height) {
		factor /= 2
	}
	if factor == 1 {
		return img
	}
	return imaging.Resize(img, w/factor, h/factor, imaging.Box)
}
