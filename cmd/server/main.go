package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"stdimage/internal/filestore"
	"stdimage/internal/keylock"
	"stdimage/internal/logging"
	"stdimage/internal/models"
	"stdimage/internal/queue"
	"stdimage/internal/registry"
	"stdimage/internal/render"
	"stdimage/internal/server"
	"stdimage/internal/storage"
)

func configPath() string {
	if p := os.Getenv("STDIMAGE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func fatal(log logging.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	log := logging.GetLogger("main")

	cfg, err := models.LoadConfig(configPath())
	if err != nil {
		fatal(log, "failed to load config", err)
	}
	logging.Configure(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	log = logging.GetLogger("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	files, err := filestore.FromConfig(cfg.Storage)
	if err != nil {
		fatal(log, "failed to init file storage", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}
	locker, err := keylock.New(cfg.Render.Lock, rdb)
	if err != nil {
		fatal(log, "failed to init render lock", err)
	}
	renderer := render.New(render.WithJPEGQuality(cfg.Render.JPEGQuality), render.WithLocker(locker))

	db, err := storage.NewStorage(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(log, "failed to init storage", err)
	}
	defer db.Close()

	fields, err := registry.New(cfg.Fields, files, renderer, nil)
	if err != nil {
		fatal(log, "failed to register fields", err)
	}
	fields.Contribute(db)

	// Kafka carries renders of fields that defer them
	var publisher queue.Publisher
	if cfg.KafkaBroker != "" {
		producer := queue.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer

		consumer := queue.NewKafkaConsumer(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroup,
			func(ctx context.Context, req queue.Request) error {
				return fields.RenderRecord(ctx, db, req.ID, req.Replace)
			})
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("render consumer stopped", "error", err)
			}
		}()
	}

	srv := server.NewServer(cfg, db, fields, publisher)

	go func() {
		if err := srv.Start(); err != nil {
			fatal(log, "failed to start server", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop server", "error", err)
	}
}
