package field

import (
	"context"
	"fmt"
	"sync"

	"stdimage/internal/filestore"
	"stdimage/internal/models"
	"stdimage/internal/naming"
	"stdimage/internal/render"
)

// State of an image attachment.
type State int

const (
	Unbound State = iota
	Unrendered
	Rendered
)

func (s State) String() string {
	switch s {
	case Unrendered:
		return models.StatusUnrendered
	case Rendered:
		return models.StatusRendered
	}
	return models.StatusUnbound
}

// ParseState maps a persisted status back to a State.
func ParseState(status string) State {
	switch status {
	case models.StatusUnrendered:
		return Unrendered
	case models.StatusRendered:
		return Rendered
	}
	return Unbound
}

// ImageFile is the value of an image field: the stored original plus one
// accessor per declared variation.
type ImageFile struct {
	Key        string
	Width      int
	Height     int
	State      State
	Variations map[string]*VariationFile

	storage filestore.Backend
}

func (f *ImageFile) Path() string { return f.storage.Path(f.Key) }

func (f *ImageFile) URL() string { return f.storage.URL(f.Key) }

// Variation returns the accessor of the named variation.
func (f *ImageFile) Variation(name string) (*VariationFile, bool) {
	v, ok := f.Variations[name]
	return v, ok
}

// DeleteVariations removes every variation file, leaving the original.
func (f *ImageFile) DeleteVariations(ctx context.Context) (int, error) {
	const op = "field.ImageFile.DeleteVariations"

	for _, v := range f.Variations {
		if err := v.Delete(ctx); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}
	if f.State == Rendered {
		f.State = Unrendered
	}
	return len(f.Variations), nil
}

// VariationFile gives access to one variation. Nothing is read from storage
// until Exists or Size is called.
type VariationFile struct {
	Name string
	Key  string
	Spec models.VariationSpec

	storage filestore.Backend

	mu   sync.Mutex
	size *models.Size
}

func newVariationFile(storage filestore.Backend, original string, spec models.VariationSpec) *VariationFile {
	return &VariationFile{
		Name:    spec.Name,
		Key:     naming.VariationKey(original, spec.Name),
		Spec:    spec,
		storage: storage,
	}
}

func (v *VariationFile) Path() string { return v.storage.Path(v.Key) }

func (v *VariationFile) URL() string { return v.storage.URL(v.Key) }

func (v *VariationFile) Exists(ctx context.Context) (bool, error) {
	return v.storage.Exists(ctx, v.Key)
}

// Size reads the rendered dimensions of the variation.
func (v *VariationFile) Size(ctx context.Context) (models.Size, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.size != nil {
		return *v.size, nil
	}
	data, err := filestore.ReadAll(ctx, v.storage, v.Key)
	if err != nil {
		return models.Size{}, err
	}
	w, h, err := render.Dimensions(data)
	if err != nil {
		return models.Size{}, err
	}
	v.size = &models.Size{Width: w, Height: h}
	return *v.size, nil
}

// Delete removes the variation file. A missing file is not an error.
func (v *VariationFile) Delete(ctx context.Context) error {
	v.mu.Lock()
	v.size = nil
	v.mu.Unlock()
	return v.storage.Delete(ctx, v.Key)
}
