package models

import (
	"fmt"
	"strings"
)

// Size is a (width, height) pair in pixels. A zero component in a maximum
// bound means the axis is unbounded.
type Size struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// UnmarshalYAML accepts both [w, h] and {width: w, height: h}.
func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var pair []int
	if err := unmarshal(&pair); err == nil {
		if len(pair) != 2 {
			return NewConfigError(fmt.Sprintf("size must have two components, got %d", len(pair)))
		}
		s.Width, s.Height = pair[0], pair[1]
		return nil
	}

	type plain Size
	return unmarshal((*plain)(s))
}

// Resample selects the filter used when scaling a variation.
type Resample int

const (
	ResampleLanczos Resample = iota // antialias, highest quality
	ResampleNearest
	ResampleBox
	ResampleBilinear
	ResampleHermite
	ResampleBicubic
	ResampleMitchellNetravali
	ResampleBSpline
	ResampleGaussian
	ResampleHamming
	ResampleHann
	ResampleBlackman
)

// DefaultResample is used when a variation does not name a filter.
const DefaultResample = ResampleLanczos

var resampleNames = map[Resample]string{
	ResampleLanczos:           "lanczos",
	ResampleNearest:           "nearest",
	ResampleBox:               "box",
	ResampleBilinear:          "bilinear",
	ResampleHermite:           "hermite",
	ResampleBicubic:           "bicubic",
	ResampleMitchellNetravali: "mitchell",
	ResampleBSpline:           "bspline",
	ResampleGaussian:          "gaussian",
	ResampleHamming:           "hamming",
	ResampleHann:              "hann",
	ResampleBlackman:          "blackman",
}

var resampleAliases = map[string]Resample{
	"antialias":  ResampleLanczos,
	"linear":     ResampleBilinear,
	"catmullrom": ResampleBicubic,
	"cubic":      ResampleBicubic,
}

func (r Resample) String() string {
	if name, ok := resampleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("resample(%d)", int(r))
}

// ParseResample maps a filter name to a Resample. The empty name selects
// DefaultResample.
func ParseResample(name string) (Resample, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultResample, nil
	}
	if r, ok := resampleAliases[name]; ok {
		return r, nil
	}
	for r, n := range resampleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, NewConfigError(fmt.Sprintf("unknown resample filter %q", name))
}

// VariationSpec describes one named derived image. Values are immutable once
// a field has been declared.
type VariationSpec struct {
	Name      string
	Width     int
	Height    int
	Crop      bool
	Resample  Resample
	Watermark string
}

func (v VariationSpec) Size() Size {
	return Size{Width: v.Width, Height: v.Height}
}
