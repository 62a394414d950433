package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/config"
	"github.com/uhafan/stream-dashboard-go/internal/metrics"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

// JobHandler processes one annotation job.
type JobHandler interface {
	AnnotateVideo(ctx context.Context, videoID, mode string) error
}

// Consumer drains annotation jobs from the broker and hands them to the
// handler one at a time. A failed job is requeued once; a redelivered
// failure is dropped.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	handler JobHandler
	log     *zap.Logger
}

// NewConsumer connects and declares the same topology as the publisher,
// so either side can start first.
func NewConsumer(cfg *config.RabbitMQConfig, handler JobHandler) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	// One unacked job at a time; annotation is LLM-bound anyway.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		config:  cfg,
		handler: handler,
		log:     logger.Named("queue"),
	}, nil
}

// Run consumes until the context is cancelled or the delivery channel
// closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(
		c.config.Queue, // queue
		"",             // consumer tag
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.log.Info("Consuming annotation jobs", zap.String("queue", c.config.Queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var job AnnotationJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		c.log.Warn("Dropping malformed job", zap.Error(err))
		metrics.JobsConsumed.WithLabelValues("malformed").Inc()
		_ = delivery.Nack(false, false)
		return
	}

	if err := c.handler.AnnotateVideo(ctx, job.VideoID, job.Mode); err != nil {
		requeue := !delivery.Redelivered
		c.log.Warn("Annotation job failed",
			zap.String("jobId", job.JobID),
			zap.String("videoId", job.VideoID),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		metrics.JobsConsumed.WithLabelValues("error").Inc()
		_ = delivery.Nack(false, requeue)
		return
	}

	metrics.JobsConsumed.WithLabelValues("ok").Inc()
	c.log.Debug("Annotation job done",
		zap.String("jobId", job.JobID),
		zap.String("videoId", job.VideoID),
	)
	_ = delivery.Ack(false)
}

func (c *Consumer) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing consumer: %v", errs)
	}
	return nil
}
