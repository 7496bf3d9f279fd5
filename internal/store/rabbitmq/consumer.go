package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// JobHandler processes one job id. A returned error dead-letters the delivery.
type JobHandler func(ctx context.Context, jobID string) error

// Acknowledger is the subset of amqp.Delivery the pool needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	log         zerolog.Logger
}

func NewConsumer(url, queue string, concurrency int, log zerolog.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 2
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, log: log}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context, handle JobHandler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info().Str("queue", c.queue).Int("concurrency", c.concurrency).Msg("worker started")

	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				Process(ctx, c.log.With().Int("worker", workerID).Logger(), d, d.Body, handle)
			}
		}(i)
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

// Process decodes one delivery, runs handle and settles the delivery.
func Process(ctx context.Context, log zerolog.Logger, ack Acknowledger, body []byte, handle JobHandler) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil || m.JobID == "" {
		log.Warn().Err(err).Msg("bad message")
		_ = ack.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handle(ctx, m.JobID); err != nil {
		log.Warn().Err(err).Str("job_id", m.JobID).Dur("took", time.Since(start)).Msg("job failed")
		_ = ack.Nack(false, false)
		return
	}
	if err := ack.Ack(false); err != nil {
		log.Error().Err(err).Str("job_id", m.JobID).Msg("ack failed")
	}
}
