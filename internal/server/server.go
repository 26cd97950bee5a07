package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stdimage/internal/field"
	"stdimage/internal/logging"
	"stdimage/internal/models"
	"stdimage/internal/queue"
	"stdimage/internal/registry"
	"stdimage/internal/storage"
)

// Images persists records. storage.Storage implements it.
type Images interface {
	Get(ctx context.Context, id uuid.UUID) (*storage.Record, error)
	Create(ctx context.Context, rec *storage.Record) error
	Update(ctx context.Context, rec *storage.Record, prev *field.Stored) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Server struct {
	cfg       *models.Config
	router    *gin.Engine
	srv       *http.Server
	images    Images
	fields    *registry.Registry
	publisher queue.Publisher
	log       logging.Logger
}

// NewServer wires the routes. publisher may be nil, in which case deferred
// fields wait for the batch command.
func NewServer(cfg *models.Config, images Images, fields *registry.Registry, publisher queue.Publisher) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Storage.Backend == "filesystem" && strings.HasPrefix(cfg.Storage.BaseURL, "/") {
		r.Static(strings.TrimSuffix(cfg.Storage.BaseURL, "/"), cfg.Storage.Path)
	}

	s := &Server{
		cfg:       cfg,
		router:    r,
		images:    images,
		fields:    fields,
		publisher: publisher,
		log:       logging.GetLogger("server"),
	}

	r.POST("/images/:route", s.handleUpload)
	r.GET("/images/:id", s.handleGetImage)
	r.PUT("/images/:id", s.handleReplaceImage)
	r.DELETE("/images/:id", s.handleDeleteImage)
	r.DELETE("/images/:id/variations", s.handleDeleteVariations)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.srv = &http.Server{Addr: s.cfg.ServerAddr, Handler: s.router}
	s.log.Info("listening", "addr", s.cfg.ServerAddr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type variationView struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Exists bool   `json:"exists"`
}

type imageView struct {
	ID         uuid.UUID                `json:"id"`
	Route      string                   `json:"route"`
	Title      string                   `json:"title"`
	Key        string                   `json:"key,omitempty"`
	URL        string                   `json:"url,omitempty"`
	Width      int                      `json:"width"`
	Height     int                      `json:"height"`
	Status     string                   `json:"status"`
	Variations map[string]variationView `json:"variations,omitempty"`
}

func (s *Server) view(ctx context.Context, rec *storage.Record) (imageView, error) {
	v := imageView{
		ID:     rec.ID,
		Route:  rec.Route,
		Title:  rec.Title,
		Key:    rec.Key,
		Width:  rec.Width,
		Height: rec.Height,
		Status: rec.Status,
	}
	if rec.File == nil {
		return v, nil
	}

	v.URL = rec.File.URL()
	v.Variations = make(map[string]variationView, len(rec.File.Variations))
	for name, vf := range rec.File.Variations {
		exists, err := vf.Exists(ctx)
		if err != nil {
			return v, err
		}
		v.Variations[name] = variationView{Key: vf.Key, URL: vf.URL(), Exists: exists}
	}
	return v, nil
}

func readUpload(c *gin.Context) (field.Upload, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return field.Upload{}, err
	}
	src, err := fh.Open()
	if err != nil {
		return field.Upload{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return field.Upload{}, err
	}
	return field.Upload{Filename: fh.Filename, Data: data}, nil
}

// saveStatus maps a field.Save error to a response code.
func saveStatus(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, models.ErrDecode):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func saveMessage(op string, err error) string {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return fmt.Sprintf("%s: %v", op, err)
}

func (s *Server) parseID(c *gin.Context, op string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) loadRecord(c *gin.Context, op string) (*storage.Record, bool) {
	id, ok := s.parseID(c, op)
	if !ok {
		return nil, false
	}
	rec, err := s.images.Get(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return nil, false
	}
	return rec, true
}

// deferRender queues a render for fields that never render on save.
func (s *Server) deferRender(ctx context.Context, f *field.Field, rec *storage.Record) error {
	if s.publisher == nil || rec.File == nil || rec.File.State != field.Unrendered || !f.Policy.IsNever() {
		return nil
	}
	return s.publisher.Publish(ctx, queue.Request{Route: rec.Route, ID: rec.ID})
}

func (s *Server) respond(c *gin.Context, op string, status int, rec *storage.Record) {
	v, err := s.view(c.Request.Context(), rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	c.JSON(status, v)
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"
	ctx := c.Request.Context()

	f, err := s.fields.Field(c.Param("route"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	up, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	rec := &storage.Record{Image: models.Image{
		ID:    uuid.New(),
		Route: f.Route,
		Title: c.PostForm("title"),
	}}

	file, saveErr := f.Save(ctx, rec, nil, up)
	if file == nil {
		c.JSON(saveStatus(saveErr), gin.H{"error": saveMessage(op, saveErr)})
		return
	}

	// the original is stored even when rendering failed
	rec.BindImage(file)
	if err := s.images.Create(ctx, rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	if saveErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"id": rec.ID.String(), "error": saveMessage(op, saveErr)})
		return
	}

	if err := s.deferRender(ctx, f, rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"id": rec.ID.String(), "error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	s.respond(c, op, http.StatusCreated, rec)
}

func (s *Server) handleGetImage(c *gin.Context) {
	const op = "server.handleGetImage"

	rec, ok := s.loadRecord(c, op)
	if !ok {
		return
	}
	s.respond(c, op, http.StatusOK, rec)
}

func (s *Server) handleReplaceImage(c *gin.Context) {
	const op = "server.handleReplaceImage"
	ctx := c.Request.Context()

	rec, ok := s.loadRecord(c, op)
	if !ok {
		return
	}
	f, err := s.fields.Field(rec.Route)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	up, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	if title, ok := c.GetPostForm("title"); ok {
		rec.Title = title
	}

	prev := rec.Stored()
	file, saveErr := f.Assign(ctx, rec, rec.File, up)
	if file == nil {
		c.JSON(saveStatus(saveErr), gin.H{"error": saveMessage(op, saveErr)})
		return
	}

	rec.BindImage(file)
	if err := s.images.Update(ctx, rec, &prev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	if saveErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"id": rec.ID.String(), "error": saveMessage(op, saveErr)})
		return
	}

	if err := s.deferRender(ctx, f, rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"id": rec.ID.String(), "error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	s.respond(c, op, http.StatusOK, rec)
}

func (s *Server) handleDeleteImage(c *gin.Context) {
	const op = "server.handleDeleteImage"

	id, ok := s.parseID(c, op)
	if !ok {
		return
	}
	if err := s.images.Delete(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteVariations(c *gin.Context) {
	const op = "server.handleDeleteVariations"
	ctx := c.Request.Context()

	rec, ok := s.loadRecord(c, op)
	if !ok {
		return
	}
	if rec.File == nil {
		c.JSON(http.StatusOK, gin.H{"deleted": 0})
		return
	}

	prev := rec.Stored()
	n, err := rec.File.DeleteVariations(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	rec.BindImage(rec.File)
	if err := s.images.Update(ctx, rec, &prev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
