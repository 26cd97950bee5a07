package field

import (
	"context"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stdimage/internal/render"
)

type source struct {
	load, save, del map[string]Hook
}

func newSource() *source {
	return &source{load: map[string]Hook{}, save: map[string]Hook{}, del: map[string]Hook{}}
}

func (s *source) OnLoad(route string, h Hook)   { s.load[route] = h }
func (s *source) OnSave(route string, h Hook)   { s.save[route] = h }
func (s *source) OnDelete(route string, h Hook) { s.del[route] = h }

func TestContribute(t *testing.T) {
	ctx := context.Background()
	f, store := newField(render.Always())
	src := newSource()
	f.Contribute(src)

	require.Contains(t, src.load, f.Route)
	require.Contains(t, src.save, f.Route)
	require.Contains(t, src.del, f.Route)

	file, err := f.Save(ctx, &record{}, nil, Upload{Filename: "image.jpg", Data: picture(t, 600, 400, imaging.JPEG)})
	require.NoError(t, err)

	rec := &record{}
	rec.Route = f.Route
	rec.Key = file.Key
	rec.Width, rec.Height = file.Width, file.Height
	rec.Status = file.State.String()

	// load re-attaches accessors from persisted state only
	require.NoError(t, src.load[f.Route](ctx, Event{Record: rec}))
	require.NotNil(t, rec.file)
	assert.Equal(t, Rendered, rec.file.State)
	thumb, ok := rec.file.Variation("thumbnail")
	require.True(t, ok)
	exists, err := thumb.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	// saving the same key keeps the files
	prev := rec.Stored()
	require.NoError(t, src.save[f.Route](ctx, Event{Record: rec, Previous: &prev}))
	assert.Len(t, store.Keys(), 3)

	// clearing the field removes the previous image
	rec.Key, rec.Status = "", "unbound"
	require.NoError(t, src.save[f.Route](ctx, Event{Record: rec, Previous: &prev}))
	assert.Empty(t, store.Keys())
	assert.Nil(t, rec.file)
}

func TestOnDelete(t *testing.T) {
	ctx := context.Background()
	f, store := newField(render.Always())
	src := newSource()
	f.Contribute(src)

	file, err := f.Save(ctx, &record{}, nil, Upload{Filename: "image.jpg", Data: picture(t, 600, 400, imaging.JPEG)})
	require.NoError(t, err)

	rec := &record{}
	rec.Key = file.Key
	rec.Status = file.State.String()

	require.NoError(t, src.del[f.Route](ctx, Event{Record: rec}))
	assert.Empty(t, store.Keys())
	assert.Nil(t, rec.file)

	// unbound records delete nothing
	require.NoError(t, src.del[f.Route](ctx, Event{Record: &record{}}))
}
