// Package queue moves annotation refresh jobs through RabbitMQ so that
// slow LLM work never blocks a page request.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/config"
	"github.com/uhafan/stream-dashboard-go/internal/metrics"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

const (
	messageTTLMillis = 86400000 // jobs older than 24h are pointless
	maxQueueLength   = 100000
	confirmTimeout   = 5 * time.Second
)

// AnnotationJob is the message body for one annotation request.
type AnnotationJob struct {
	JobID   string `json:"job_id"`
	VideoID string `json:"video_id"`
	Mode    string `json:"mode"` // "annotate" or "refresh"
}

// Publisher sends annotation jobs to the broker with publisher confirms.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	log     *zap.Logger
	mu      sync.RWMutex
}

// NewPublisher connects, declares the topology, and enables confirms.
func NewPublisher(cfg *config.RabbitMQConfig) (*Publisher, error) {
	p := &Publisher{
		config: cfg,
		log:    logger.Named("queue"),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := amqp.Dial(p.config.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := declareTopology(ch, p.config); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.channel = ch

	p.log.Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("queue", p.config.Queue),
	)
	return nil
}

func declareTopology(ch *amqp.Channel, cfg *config.RabbitMQConfig) error {
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		amqp.Table{
			"x-message-ttl": messageTTLMillis,
			"x-max-length":  maxQueueLength,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// PublishAnnotationJob enqueues one job and waits for the broker ack.
// Returns the generated job id.
func (p *Publisher) PublishAnnotationJob(ctx context.Context, videoID, mode string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil {
		return "", fmt.Errorf("channel is not initialized")
	}

	job := AnnotationJob{
		JobID:   uuid.New().String(),
		VideoID: videoID,
		Mode:    mode,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	// A deferred confirmation is scoped to this publish; per-publish
	// NotifyPublish listeners leak and stall the confirms dispatcher.
	confirmCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	confirmation, err := p.channel.PublishWithDeferredConfirmWithContext(
		confirmCtx,
		p.config.Exchange,
		p.config.RoutingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    job.JobID,
		},
	)
	if err != nil {
		metrics.JobsPublished.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to publish job: %w", err)
	}

	acked, err := confirmation.WaitContext(confirmCtx)
	if err != nil {
		metrics.JobsPublished.WithLabelValues("timeout").Inc()
		return "", fmt.Errorf("waiting for publish confirmation: %w", err)
	}
	if !acked {
		metrics.JobsPublished.WithLabelValues("nack").Inc()
		return "", fmt.Errorf("job was not acknowledged by broker")
	}

	metrics.JobsPublished.WithLabelValues("ok").Inc()
	p.log.Debug("Published annotation job",
		zap.String("jobId", job.JobID),
		zap.String("videoId", videoID),
		zap.String("mode", mode),
	)
	return job.JobID, nil
}

// IsHealthy reports whether the broker connection is open.
func (p *Publisher) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}
	p.log.Info("RabbitMQ publisher closed")
	return nil
}
