// Command rendervariations renders missing variations of stored images.
//
//	rendervariations [--replace] [--workers N] shop.product.image[:start] ...
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"stdimage/internal/filestore"
	"stdimage/internal/keylock"
	"stdimage/internal/logging"
	"stdimage/internal/models"
	"stdimage/internal/registry"
	"stdimage/internal/render"
	"stdimage/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newCommand(openEnv, os.Stdout)
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openEnv loads the configuration and connects to storage.
func openEnv(ctx context.Context, path string) (*env, error) {
	cfg, err := models.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logging.Configure(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	files, err := filestore.FromConfig(cfg.Storage)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	locker, err := keylock.New(cfg.Render.Lock, rdb)
	if err != nil {
		return nil, err
	}
	renderer := render.New(render.WithJPEGQuality(cfg.Render.JPEGQuality), render.WithLocker(locker))

	db, err := storage.NewStorage(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	fields, err := registry.New(cfg.Fields, files, renderer, nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &env{
		fields:   fields,
		records:  db,
		renderer: renderer,
		render:   cfg.Render,
		close: func() {
			db.Close()
			if rdb != nil {
				_ = rdb.Close()
			}
		},
	}, nil
}
