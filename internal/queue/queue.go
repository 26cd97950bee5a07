// Package queue carries deferred render requests over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"stdimage/internal/logging"
)

// Request asks a worker to render the variations of one record.
type Request struct {
	Route   string    `json:"route"`
	ID      uuid.UUID `json:"id"`
	Replace bool      `json:"replace"`
}

type Publisher interface {
	Publish(ctx context.Context, req Request) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(broker, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:     kafka.TCP(broker),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

// Publish keys messages by record id so requests for one record stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, req Request) error {
	const op = "queue.Publish"

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{Key: []byte(req.ID.String()), Value: data})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

type Handler func(ctx context.Context, req Request) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	r      messageReader
	handle Handler
	log    logging.Logger
}

func NewKafkaConsumer(broker, topic, group string, handle Handler) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{broker},
			Topic:   topic,
			GroupID: group,
		}),
		handle: handle,
		log:    logging.GetLogger("queue"),
	}
}

// Run handles messages until ctx is cancelled. Malformed messages and handler
// failures are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	const op = "queue.Consumer.Run"

	defer c.r.Close()
	for {
		msg, err := c.r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.log.Error("error reading message", "error", err)
			return fmt.Errorf("%s: %w", op, err)
		}

		var req Request
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			c.log.Warn("skipping malformed message", "offset", msg.Offset, "error", err)
			continue
		}

		if err := c.handle(ctx, req); err != nil {
			c.log.Error("error processing render request",
				logging.Group("request", "route", req.Route, "id", req.ID.String()),
				"error", err)
			continue
		}
		c.log.Debug("render request done", "route", req.Route, "id", req.ID.String())
	}
}
