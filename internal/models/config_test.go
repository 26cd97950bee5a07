package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database_url: postgres://localhost/images
kafka_broker: localhost:9092
kafka_topic: render
storage:
  path: ./media
render:
  workers: 4
fields:
  - route: gallery.photo.image
    upload_to:
      strategy: name
      name: image
      path: img
    variations:
      thumbnail: [100, 75]
      medium: {width: 400, height: 400}
    max_size: [4000, 3000]
    render_variations: always
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "filesystem", cfg.Storage.Backend)
	assert.Equal(t, "/media/", cfg.Storage.BaseURL)
	assert.Equal(t, "./media", cfg.Storage.Path)
	assert.Equal(t, "none", cfg.Render.Lock)
	assert.Equal(t, 4, cfg.Render.Workers)

	require.Len(t, cfg.Fields, 1)
	f := cfg.Fields[0]
	assert.Equal(t, "gallery.photo.image", f.Route)
	assert.Equal(t, "image", f.UploadTo.Name)
	assert.Len(t, f.Variations, 2)
	assert.Nil(t, f.MinSize)
	require.NotNil(t, f.MaxSize)
	assert.Equal(t, Size{Width: 4000, Height: 3000}, *f.MaxSize)
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing database", "storage: {path: x}\n"},
		{"bad backend", "database_url: x\nstorage: {backend: ftp}\n"},
		{"topic without broker topic", "database_url: x\nstorage: {path: x}\nkafka_broker: b\n"},
		{"redis lock without addr", "database_url: x\nstorage: {path: x}\nrender: {lock: redis}\n"},
		{"field without route", "database_url: x\nstorage: {path: x}\nfields: [{render_variations: always}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestDefaultMediaPath(t *testing.T) {
	cfg, err := ParseConfig([]byte("database_url: x\n"))
	require.NoError(t, err)
	assert.Equal(t, "media", cfg.Storage.Path)

	cfg, err = ParseConfig([]byte("database_url: x\nstorage: {backend: memory}\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Storage.Path)
}

func TestSizeUnmarshalMapping(t *testing.T) {
	cfg, err := ParseConfig([]byte("database_url: x\nstorage: {path: x}\nfields:\n  - route: a.b.c\n    min_size: {width: 10, height: 20}\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Fields[0].MinSize)
	assert.Equal(t, Size{Width: 10, Height: 20}, *cfg.Fields[0].MinSize)
}

func TestParseResample(t *testing.T) {
	r, err := ParseResample("")
	require.NoError(t, err)
	assert.Equal(t, DefaultResample, r)

	r, err = ParseResample("Antialias")
	require.NoError(t, err)
	assert.Equal(t, ResampleLanczos, r)

	r, err = ParseResample("nearest")
	require.NoError(t, err)
	assert.Equal(t, ResampleNearest, r)
	assert.Equal(t, "nearest", r.String())

	_, err = ParseResample("sharpest")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidationErrorMessages(t *testing.T) {
	err := NewTooSmall(Size{Width: 400, Height: 300})
	assert.Equal(t, "The image you uploaded is too small. The required minimal resolution is: 400x300 px.", err.Error())
	assert.ErrorIs(t, err, ErrSizeTooSmall)

	err = NewTooLarge(Size{Width: 16, Height: 16})
	assert.Equal(t, "The image you uploaded is too large. The required maximal resolution is: 16x16 px.", err.Error())
	assert.ErrorIs(t, err, ErrSizeTooLarge)
}

func TestImageInstance(t *testing.T) {
	img := &Image{Route: "gallery.Photo.image", Title: "Sunset"}
	assert.Equal(t, "Photo", img.ModelName())
	assert.Equal(t, "Sunset", img.FieldValue("title"))
	assert.Equal(t, "", img.FieldValue("missing"))
}
