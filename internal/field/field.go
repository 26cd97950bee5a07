// Package field ties an image field's variations to the lifecycle of the
// record that owns it: render on save, re-attach on load, clean up on delete
// and replace.
package field

import (
	"bytes"
	"context"
	"fmt"

	"stdimage/internal/filestore"
	"stdimage/internal/logging"
	"stdimage/internal/metrics"
	"stdimage/internal/naming"
	"stdimage/internal/render"
	"stdimage/internal/variation"
)

// Field is one declared image field (app.model.field). It is built once and
// read-only afterwards.
type Field struct {
	Route    string
	Set      *variation.Set
	UploadTo naming.UploadTo
	Storage  filestore.Backend
	Policy   render.Policy
	Renderer *render.Renderer

	log logging.Logger
}

func New(
	route string,
	set *variation.Set,
	uploadTo naming.UploadTo,
	storage filestore.Backend,
	policy render.Policy,
	renderer *render.Renderer,
) *Field {
	return &Field{
		Route:    route,
		Set:      set,
		UploadTo: uploadTo,
		Storage:  storage,
		Policy:   policy,
		Renderer: renderer,
		log:      logging.GetLogger("field").With("route", route),
	}
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// Attach builds the field value for a stored original. It returns nil for an
// empty key.
func (f *Field) Attach(key string, width, height int, state State) *ImageFile {
	if key == "" {
		return nil
	}
	file := &ImageFile{
		Key:        key,
		Width:      width,
		Height:     height,
		State:      state,
		Variations: make(map[string]*VariationFile, f.Set.Len()),
		storage:    f.Storage,
	}
	for _, spec := range f.Set.Specs() {
		file.Variations[spec.Name] = newVariationFile(f.Storage, key, spec)
	}
	return file
}

// Validate reads the dimensions of data and checks them against the field
// bounds.
func (f *Field) Validate(data []byte) (int, int, error) {
	const op = "field.Validate"

	w, h, err := render.Dimensions(data)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := f.Set.Validate(w, h); err != nil {
		return w, h, fmt.Errorf("%s: %w", op, err)
	}
	return w, h, nil
}

// Job describes a render of every variation of key.
func (f *Field) Job(key string, replace bool) render.Job {
	return render.Job{
		Key:     key,
		Specs:   f.Set.Specs(),
		Storage: f.Storage,
		Replace: replace,
	}
}

// Save assigns up to inst. The files of prev are deleted first unless prev
// resolves to the same key. The original is stored as uploaded; variations
// are rendered when the field policy allows it, overwriting stale ones.
//
// A render failure is returned together with the file, which stays
// Unrendered.
func (f *Field) Save(ctx context.Context, inst naming.Instance, prev *ImageFile, up Upload) (*ImageFile, error) {
	return f.save(ctx, inst, prev, up, true)
}

// Assign is Save for records persisted through an EventSource. A prev stored
// under another key is left to the save hook, which removes it once the
// record points at the new image.
func (f *Field) Assign(ctx context.Context, inst naming.Instance, prev *ImageFile, up Upload) (*ImageFile, error) {
	return f.save(ctx, inst, prev, up, false)
}

func (f *Field) save(ctx context.Context, inst naming.Instance, prev *ImageFile, up Upload, dropPrev bool) (file *ImageFile, err error) {
	const op = "field.Save"

	log := f.log.With(logging.Group("upload", "filename", up.Filename, "bytes", len(up.Data)))
	defer func() {
		if err != nil {
			log.Error("failed to save image", "error", err)
			return
		}
		log.Info("image saved", "key", file.Key, "state", file.State.String())
	}()

	w, h, err := f.Validate(up.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key, err := filestore.CleanKey(f.UploadTo.Generate(inst, up.Filename))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if dropPrev && prev != nil && prev.Key != key {
		if err := f.Delete(ctx, prev); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	key, err = f.Storage.Save(ctx, key, bytes.NewReader(up.Data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	file = f.Attach(key, w, h, Unrendered)

	job := f.Job(key, true)
	job.Source = up.Data
	if !f.Policy.ShouldRender(job) {
		// variations of the overwritten original must not survive a deferred render
		if prev != nil && prev.Key == key {
			if _, err := file.DeleteVariations(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		return file, nil
	}
	if _, err := f.Renderer.Run(ctx, job); err != nil {
		return file, fmt.Errorf("%s: %w", op, err)
	}
	file.State = Rendered
	return file, nil
}

// Render renders the variations of file regardless of the field policy.
// Existing variations are kept unless replace is set.
func (f *Field) Render(ctx context.Context, file *ImageFile, replace bool) (render.Outcome, error) {
	const op = "field.Render"

	out, err := f.Renderer.Run(ctx, f.Job(file.Key, replace))
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	file.State = Rendered
	return out, nil
}

// Delete removes the original and every variation of file. Files that are
// already gone are ignored.
func (f *Field) Delete(ctx context.Context, file *ImageFile) error {
	const op = "field.Delete"

	if file == nil {
		return nil
	}
	n, err := file.DeleteVariations(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := f.Storage.Delete(ctx, file.Key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.DeletedFilesTotal.Add(float64(n + 1))

	f.log.Debug("image deleted", "key", file.Key, "variations", n)
	file.State = Unbound
	return nil
}
