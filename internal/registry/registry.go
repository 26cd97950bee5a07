// Package registry builds the configured image fields and looks them up by
// route.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"stdimage/internal/batch"
	"stdimage/internal/field"
	"stdimage/internal/filestore"
	"stdimage/internal/logging"
	"stdimage/internal/models"
	"stdimage/internal/naming"
	"stdimage/internal/render"
	"stdimage/internal/storage"
	"stdimage/internal/variation"
)

var ErrUnknownField = errors.New("unknown image field")

// Predicates are the render decisions a field may name in render_variations.
type Predicates map[string]func(render.Job) bool

// DefaultPredicates are available to every configuration.
var DefaultPredicates = Predicates{
	"jpeg_only": func(j render.Job) bool {
		ext := naming.Ext(j.Key)
		return ext == "jpg" || ext == "jpeg"
	},
}

type Registry struct {
	fields map[string]*field.Field
	log    logging.Logger
}

func New(
	cfgs []models.FieldConfig,
	store filestore.Backend,
	renderer *render.Renderer,
	predicates Predicates,
) (*Registry, error) {
	const op = "registry.New"

	merged := make(Predicates, len(DefaultPredicates)+len(predicates))
	for name, fn := range DefaultPredicates {
		merged[name] = fn
	}
	for name, fn := range predicates {
		merged[name] = fn
	}

	r := &Registry{
		fields: make(map[string]*field.Field, len(cfgs)),
		log:    logging.GetLogger("registry"),
	}
	for _, cfg := range cfgs {
		f, err := build(cfg, store, renderer, merged)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, cfg.Route, err)
		}
		if _, dup := r.fields[f.Route]; dup {
			return nil, fmt.Errorf("%s: %w", op, models.NewConfigError(
				fmt.Sprintf("field %q declared twice", f.Route)))
		}
		r.fields[f.Route] = f
		r.log.Debug("field registered",
			"route", f.Route,
			"variations", f.Set.Names(),
			"min_size", f.Set.MinSize.String(),
			"policy", f.Policy.String())
	}
	return r, nil
}

func build(cfg models.FieldConfig, store filestore.Backend, renderer *render.Renderer, predicates Predicates) (*field.Field, error) {
	route, err := batch.ParseRoute(cfg.Route)
	if err != nil {
		return nil, err
	}
	if route.Start != 0 {
		return nil, models.NewConfigError(fmt.Sprintf("field route %q must not carry a start position", cfg.Route))
	}

	uploadTo, err := naming.New(cfg.UploadTo)
	if err != nil {
		return nil, err
	}
	set, err := variation.Resolve(cfg.Variations, variation.Options{
		MinSize:        cfg.MinSize,
		MaxSize:        cfg.MaxSize,
		AdminThumbnail: cfg.AdminThumbnail,
	})
	if err != nil {
		return nil, err
	}
	policy, err := render.ParsePolicy(cfg.RenderVariations, predicates)
	if err != nil {
		return nil, err
	}
	return field.New(route.String(), set, uploadTo, store, policy, renderer), nil
}

func (r *Registry) Field(route string) (*field.Field, error) {
	f, ok := r.fields[route]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, route)
	}
	return f, nil
}

// Fields returns every field ordered by route.
func (r *Registry) Fields() []*field.Field {
	out := make([]*field.Field, 0, len(r.fields))
	for _, f := range r.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Contribute registers the hooks of every field with src.
func (r *Registry) Contribute(src field.EventSource) {
	for _, f := range r.Fields() {
		f.Contribute(src)
	}
}

// Records is the part of storage.Storage RenderRecord needs.
type Records interface {
	Get(ctx context.Context, id uuid.UUID) (*storage.Record, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// RenderRecord renders the variations of one stored record and marks it
// rendered. Records without an image are left alone.
func (r *Registry) RenderRecord(ctx context.Context, records Records, id uuid.UUID, replace bool) error {
	const op = "registry.RenderRecord"

	rec, err := records.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	f, err := r.Field(rec.Route)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	file := rec.File
	if file == nil {
		// no load hook registered for this source
		file = f.Attach(rec.Key, rec.Width, rec.Height, field.ParseState(rec.Status))
	}
	if file == nil {
		return nil
	}

	if _, err := f.Render(ctx, file, replace); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := records.SetStatus(ctx, id, file.State.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
