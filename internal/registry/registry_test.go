package registry

import (
	"bytes"
	"context"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stdimage/internal/field"
	"stdimage/internal/filestore"
	"stdimage/internal/models"
	"stdimage/internal/render"
	"stdimage/internal/storage"
)

const config = `
database_url: postgres://localhost/stdimage
fields:
  - route: shop.product.image
    upload_to: {strategy: class_name_dir, path: img}
    variations:
      large: [600, 400]
      thumbnail: {width: 100, height: 100, crop: true}
    admin_thumbnail: true
  - route: blog.post.cover
    render_variations: jpeg_only
    variations:
      wide: [300, 100, true, nearest]
  - route: blog.post.header
    render_variations: never
    min_size: [10, 10]
    variations:
      small: [50, 50]
`

func load(t *testing.T, data string) []models.FieldConfig {
	t.Helper()
	cfg, err := models.ParseConfig([]byte(data))
	require.NoError(t, err)
	return cfg.Fields
}

func TestNew(t *testing.T) {
	reg, err := New(load(t, config), filestore.NewMemory(""), render.New(), nil)
	require.NoError(t, err)

	var routes []string
	for _, f := range reg.Fields() {
		routes = append(routes, f.Route)
	}
	assert.Equal(t, []string{"blog.post.cover", "blog.post.header", "shop.product.image"}, routes)

	f, err := reg.Field("shop.product.image")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "large", "thumbnail"}, f.Set.Names())
	assert.Equal(t, models.Size{Width: 600, Height: 400}, f.Set.MinSize)
	assert.Equal(t, "always", f.Policy.String())
	assert.Equal(t, "img/product/chair.jpg", f.UploadTo.Generate(&models.Image{Route: f.Route}, "Chair.JPG"))

	cover, err := reg.Field("blog.post.cover")
	require.NoError(t, err)
	assert.Equal(t, "jpeg_only", cover.Policy.String())
	assert.True(t, cover.Policy.ShouldRender(render.Job{Key: "a.JPEG"}))
	assert.False(t, cover.Policy.ShouldRender(render.Job{Key: "a.png"}))

	header, err := reg.Field("blog.post.header")
	require.NoError(t, err)
	assert.True(t, header.Policy.IsNever())
	assert.Equal(t, models.Size{Width: 10, Height: 10}, header.Set.MinSize)

	_, err = reg.Field("blog.post.missing")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestNewErrors(t *testing.T) {
	tests := map[string]string{
		"bad route": `
database_url: x
fields:
  - route: product.image
    variations: {thumbnail: [10, 10]}
`,
		"start marker": `
database_url: x
fields:
  - route: shop.product.image:3
    variations: {thumbnail: [10, 10]}
`,
		"duplicate": `
database_url: x
fields:
  - route: shop.product.image
  - route: shop.product.image
`,
		"unknown predicate": `
database_url: x
fields:
  - route: shop.product.image
    render_variations: on_tuesdays
`,
		"bad variation": `
database_url: x
fields:
  - route: shop.product.image
    variations: {thumbnail: [0, 10]}
`,
		"bad strategy": `
database_url: x
fields:
  - route: shop.product.image
    upload_to: {strategy: random_walk}
`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(load(t, data), filestore.NewMemory(""), render.New(), nil)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestCustomPredicate(t *testing.T) {
	data := `
database_url: x
fields:
  - route: shop.product.image
    render_variations: on_tuesdays
`
	reg, err := New(load(t, data), filestore.NewMemory(""), render.New(), Predicates{
		"on_tuesdays": func(render.Job) bool { return false },
	})
	require.NoError(t, err)
	f, err := reg.Field("shop.product.image")
	require.NoError(t, err)
	assert.False(t, f.Policy.ShouldRender(render.Job{}))
}

type records struct {
	rec    *storage.Record
	status string
}

func (r *records) Get(context.Context, uuid.UUID) (*storage.Record, error) { return r.rec, nil }

func (r *records) SetStatus(_ context.Context, _ uuid.UUID, status string) error {
	r.status = status
	return nil
}

func TestRenderRecord(t *testing.T) {
	ctx := context.Background()
	store := filestore.NewMemory("")
	reg, err := New(load(t, config), store, render.New(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(800, 600, color.Gray{Y: 90}), imaging.JPEG))
	_, err = store.Save(ctx, "img/post/header.jpg", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	src := &records{rec: &storage.Record{Image: models.Image{
		Route:  "blog.post.header",
		Key:    "img/post/header.jpg",
		Width:  800,
		Height: 600,
		Status: models.StatusUnrendered,
	}}}
	require.NoError(t, reg.RenderRecord(ctx, src, uuid.New(), false))
	assert.Equal(t, models.StatusRendered, src.status)
	assert.Equal(t, []string{"img/post/header.jpg", "img/post/header.small.jpg"}, store.Keys())

	// records without an image are a no-op
	src = &records{rec: &storage.Record{Image: models.Image{Route: "blog.post.header"}}}
	require.NoError(t, reg.RenderRecord(ctx, src, uuid.New(), false))
	assert.Empty(t, src.status)
}

func TestContribute(t *testing.T) {
	reg, err := New(load(t, config), filestore.NewMemory(""), render.New(), nil)
	require.NoError(t, err)

	src := &countingSource{}
	reg.Contribute(src)
	assert.Equal(t, 3, src.load)
	assert.Equal(t, 3, src.save)
	assert.Equal(t, 3, src.del)
}

type countingSource struct{ load, save, del int }

func (c *countingSource) OnLoad(string, field.Hook)   { c.load++ }
func (c *countingSource) OnSave(string, field.Hook)   { c.save++ }
func (c *countingSource) OnDelete(string, field.Hook) { c.del++ }
