// Package variation resolves declared variations into a canonical set and
// validates original dimensions against the bounds derived from it.
package variation

import (
	"fmt"
	"sort"
	"strings"

	"stdimage/internal/models"
)

// AdminName is the implicit variation added for admin thumbnails.
const AdminName = "admin"

// Tuple is the positional form (width, height[, crop[, resample]]).
func Tuple(values ...interface{}) []interface{} { return values }

// Keyed is the mapping form with width, height, crop, resample and watermark
// keys.
type Keyed map[string]interface{}

// Options adjust resolution. A nil MinSize derives the minimum from the
// declared variations; a nil MaxSize leaves both axes unbounded.
type Options struct {
	MinSize        *models.Size
	MaxSize        *models.Size
	AdminThumbnail bool
}

// Set is the resolved, name-ordered list of variations of one field.
type Set struct {
	specs   []models.VariationSpec
	MinSize models.Size
	MaxSize models.Size
}

// Resolve turns raw declarations into a Set. Raw values may be positional
// slices, Keyed/map values, or models.VariationSpec.
func Resolve(raw map[string]interface{}, opts Options) (*Set, error) {
	const op = "variation.Resolve"

	set := &Set{}
	for name, value := range raw {
		if value == nil {
			continue
		}
		spec, err := parse(name, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		set.specs = append(set.specs, spec)
	}

	if opts.AdminThumbnail && !set.has(AdminName) {
		set.specs = append(set.specs, models.VariationSpec{
			Name:     AdminName,
			Width:    100,
			Height:   100,
			Resample: models.ResampleNearest,
		})
	}

	sort.Slice(set.specs, func(i, j int) bool { return set.specs[i].Name < set.specs[j].Name })

	if opts.MinSize != nil {
		set.MinSize = *opts.MinSize
	} else {
		for _, v := range set.specs {
			set.MinSize.Width = max(set.MinSize.Width, v.Width)
			set.MinSize.Height = max(set.MinSize.Height, v.Height)
		}
	}
	if opts.MaxSize != nil {
		set.MaxSize = *opts.MaxSize
	}
	return set, nil
}

// MustResolve is Resolve for static declarations; it panics on error.
func MustResolve(raw map[string]interface{}, opts Options) *Set {
	set, err := Resolve(raw, opts)
	if err != nil {
		panic(err)
	}
	return set
}

// Specs returns the variations ordered by name.
func (s *Set) Specs() []models.VariationSpec {
	out := make([]models.VariationSpec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Get looks up a variation by name.
func (s *Set) Get(name string) (models.VariationSpec, bool) {
	for _, v := range s.specs {
		if v.Name == name {
			return v, true
		}
	}
	return models.VariationSpec{}, false
}

func (s *Set) Names() []string {
	names := make([]string, len(s.specs))
	for i, v := range s.specs {
		names[i] = v.Name
	}
	return names
}

func (s *Set) Len() int { return len(s.specs) }

func (s *Set) has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Validate checks original dimensions against [MinSize, MaxSize]. It returns
// a *models.ValidationError, never panics.
func (s *Set) Validate(width, height int) error {
	if width < s.MinSize.Width || height < s.MinSize.Height {
		return models.NewTooSmall(s.MinSize)
	}
	if exceeds(width, s.MaxSize.Width) || exceeds(height, s.MaxSize.Height) {
		return models.NewTooLarge(s.MaxSize)
	}
	return nil
}

func exceeds(v, bound int) bool {
	return bound > 0 && v > bound
}

func parse(name string, value interface{}) (models.VariationSpec, error) {
	if name == "" || strings.ContainsAny(name, "./\\") {
		return models.VariationSpec{}, models.NewConfigError(fmt.Sprintf("invalid variation name %q", name))
	}

	spec := models.VariationSpec{Name: name, Resample: models.DefaultResample}
	var err error

	switch v := value.(type) {
	case models.VariationSpec:
		spec = v
		spec.Name = name
	case []interface{}:
		err = fromTuple(&spec, v)
	case []int:
		vals := make([]interface{}, len(v))
		for i := range v {
			vals[i] = v[i]
		}
		err = fromTuple(&spec, vals)
	case Keyed:
		err = fromMap(&spec, v)
	case map[string]interface{}:
		err = fromMap(&spec, v)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = val
		}
		err = fromMap(&spec, m)
	default:
		err = models.NewConfigError(fmt.Sprintf("variation %q: unsupported declaration %T", name, value))
	}
	if err != nil {
		return models.VariationSpec{}, err
	}

	if spec.Width <= 0 || spec.Height <= 0 {
		return models.VariationSpec{}, models.NewConfigError(
			fmt.Sprintf("variation %q: width and height must be positive, got %dx%d", name, spec.Width, spec.Height))
	}
	return spec, nil
}
