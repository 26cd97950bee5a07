package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stdimage/internal/field"
	"stdimage/internal/filestore"
	"stdimage/internal/models"
	"stdimage/internal/queue"
	"stdimage/internal/registry"
	"stdimage/internal/render"
	"stdimage/internal/storage"
)

// memImages keeps rows in a map and fires field hooks like storage.Storage.
type memImages struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Image
	load map[string]field.Hook
	save map[string]field.Hook
	del  map[string]field.Hook

	updateErr error
}

func newMemImages() *memImages {
	return &memImages{
		rows: map[uuid.UUID]models.Image{},
		load: map[string]field.Hook{},
		save: map[string]field.Hook{},
		del:  map[string]field.Hook{},
	}
}

func (m *memImages) OnLoad(route string, h field.Hook)   { m.load[route] = h }
func (m *memImages) OnSave(route string, h field.Hook)   { m.save[route] = h }
func (m *memImages) OnDelete(route string, h field.Hook) { m.del[route] = h }

func (m *memImages) fire(ctx context.Context, hooks map[string]field.Hook, ev field.Event) error {
	if h, ok := hooks[ev.Record.(*storage.Record).Route]; ok {
		return h(ctx, ev)
	}
	return nil
}

func (m *memImages) Get(ctx context.Context, id uuid.UUID) (*storage.Record, error) {
	m.mu.Lock()
	img, ok := m.rows[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("get: %w", storage.ErrNotFound)
	}
	rec := &storage.Record{Image: img}
	return rec, m.fire(ctx, m.load, field.Event{Record: rec})
}

func (m *memImages) Create(ctx context.Context, rec *storage.Record) error {
	m.mu.Lock()
	m.rows[rec.ID] = rec.Image
	m.mu.Unlock()
	return m.fire(ctx, m.save, field.Event{Record: rec})
}

func (m *memImages) Update(ctx context.Context, rec *storage.Record, prev *field.Stored) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	m.rows[rec.ID] = rec.Image
	m.mu.Unlock()
	return m.fire(ctx, m.save, field.Event{Record: rec, Previous: prev})
}

func (m *memImages) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.fire(ctx, m.del, field.Event{Record: rec}); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.rows, id)
	m.mu.Unlock()
	return nil
}

type publisher struct{ reqs []queue.Request }

func (p *publisher) Publish(_ context.Context, req queue.Request) error {
	p.reqs = append(p.reqs, req)
	return nil
}

const fieldsConfig = `
database_url: x
fields:
  - route: shop.product.image
    upload_to: {path: img}
    variations:
      medium: [400, 400]
      thumbnail: [100, 75]
  - route: shop.product.deferred
    upload_to: {path: deferred}
    render_variations: never
    variations:
      thumbnail: [100, 75]
`

type env struct {
	srv    *Server
	store  *filestore.Memory
	images *memImages
	pub    *publisher
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := models.ParseConfig([]byte(fieldsConfig))
	require.NoError(t, err)
	cfg.Storage.Backend = "memory"

	store := filestore.NewMemory("/media/")
	reg, err := registry.New(cfg.Fields, store, render.New(), nil)
	require.NoError(t, err)

	images := newMemImages()
	reg.Contribute(images)
	pub := &publisher{}

	return &env{srv: NewServer(cfg, images, reg, pub), store: store, images: images, pub: pub}
}

func picture(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 30, G: 60, B: 90, A: 255}), imaging.JPEG))
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte, title string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if data != nil {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	if title != "" {
		require.NoError(t, w.WriteField("title", title))
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func (e *env) do(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *env) upload(t *testing.T, route, filename string, data []byte) (*httptest.ResponseRecorder, imageView) {
	t.Helper()
	body, ct := multipartBody(t, filename, data, "Chair")
	w := e.do(t, http.MethodPost, "/images/"+route, body, ct)
	var v imageView
	if w.Code == http.StatusCreated {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	}
	return w, v
}

func TestUpload(t *testing.T) {
	e := setup(t)

	w, v := e.upload(t, "shop.product.image", "Chair.jpg", picture(t, 600, 400))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, "Chair", v.Title)
	assert.Equal(t, "img/chair.jpg", v.Key)
	assert.Equal(t, "/media/img/chair.jpg", v.URL)
	assert.Equal(t, models.StatusRendered, v.Status)
	assert.Equal(t, variationView{
		Key:    "img/chair.thumbnail.jpg",
		URL:    "/media/img/chair.thumbnail.jpg",
		Exists: true,
	}, v.Variations["thumbnail"])
	assert.Len(t, e.store.Keys(), 3)
	assert.Empty(t, e.pub.reqs)
}

func TestUploadErrors(t *testing.T) {
	e := setup(t)

	w, _ := e.upload(t, "shop.product.image", "small.jpg", picture(t, 399, 400))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t,
		`{"error": "The image you uploaded is too small. The required minimal resolution is: 400x400 px."}`,
		w.Body.String())

	w, _ = e.upload(t, "shop.product.missing", "a.jpg", picture(t, 600, 400))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.upload(t, "shop.product.image", "a.jpg", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.upload(t, "shop.product.image", "a.jpg", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, e.store.Keys())
}

func TestUploadDeferred(t *testing.T) {
	e := setup(t)

	w, v := e.upload(t, "shop.product.deferred", "chair.jpg", picture(t, 600, 400))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.StatusUnrendered, v.Status)
	assert.False(t, v.Variations["thumbnail"].Exists)
	assert.Equal(t, []string{"deferred/chair.jpg"}, e.store.Keys())

	require.Len(t, e.pub.reqs, 1)
	assert.Equal(t, queue.Request{Route: "shop.product.deferred", ID: v.ID}, e.pub.reqs[0])
}

func TestGetImage(t *testing.T) {
	e := setup(t)
	_, v := e.upload(t, "shop.product.image", "chair.jpg", picture(t, 600, 400))

	w := e.do(t, http.MethodGet, "/images/"+v.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got imageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, v, got)

	w = e.do(t, http.MethodGet, "/images/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/images/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplaceImage(t *testing.T) {
	e := setup(t)
	_, v := e.upload(t, "shop.product.image", "old.jpg", picture(t, 600, 400))

	body, ct := multipartBody(t, "new.jpg", picture(t, 500, 500), "")
	w := e.do(t, http.MethodPut, "/images/"+v.ID.String(), body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got imageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "img/new.jpg", got.Key)
	assert.Equal(t, "Chair", got.Title)
	assert.Equal(t,
		[]string{"img/new.jpg", "img/new.medium.jpg", "img/new.thumbnail.jpg"},
		e.store.Keys())
}

func TestReplaceImageUpdateFails(t *testing.T) {
	e := setup(t)
	_, v := e.upload(t, "shop.product.image", "old.jpg", picture(t, 600, 400))
	e.images.updateErr = errors.New("connection reset")

	body, ct := multipartBody(t, "new.jpg", picture(t, 500, 500), "")
	w := e.do(t, http.MethodPut, "/images/"+v.ID.String(), body, ct)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	assert.Equal(t, "img/old.jpg", e.images.rows[v.ID].Key)
	keys := e.store.Keys()
	for _, key := range []string{"img/old.jpg", "img/old.medium.jpg", "img/old.thumbnail.jpg"} {
		assert.Contains(t, keys, key)
	}
}

func TestReplaceDeferredSameKey(t *testing.T) {
	e := setup(t)
	_, v := e.upload(t, "shop.product.deferred", "chair.jpg", picture(t, 600, 400))
	_, err := e.store.Save(context.Background(), "deferred/chair.thumbnail.jpg", bytes.NewReader(picture(t, 100, 66)))
	require.NoError(t, err)

	body, ct := multipartBody(t, "chair.jpg", picture(t, 500, 500), "")
	w := e.do(t, http.MethodPut, "/images/"+v.ID.String(), body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, []string{"deferred/chair.jpg"}, e.store.Keys())
	assert.Equal(t, models.StatusUnrendered, e.images.rows[v.ID].Status)
	assert.Len(t, e.pub.reqs, 2)
}

func TestDeleteImage(t *testing.T) {
	e := setup(t)
	_, v := e.upload(t, "shop.product.image", "chair.jpg", picture(t, 600, 400))

	w := e.do(t, http.MethodDelete, "/images/"+v.ID.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, e.store.Keys())

	w = e.do(t, http.MethodDelete, "/images/"+v.ID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteVariations(t *testing.T) {
	e := setup(t)
	_, v := e.upload(t, "shop.product.image", "chair.jpg", picture(t, 600, 400))

	w := e.do(t, http.MethodDelete, "/images/"+v.ID.String()+"/variations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted": 2}`, w.Body.String())
	assert.Equal(t, []string{"img/chair.jpg"}, e.store.Keys())
	assert.Equal(t, models.StatusUnrendered, e.images.rows[v.ID].Status)
}

func TestMetrics(t *testing.T) {
	e := setup(t)
	w := e.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
