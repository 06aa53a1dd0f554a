// Package queue carries ingest, reconcile and delete jobs over RabbitMQ and
// publishes entity change events to a topic exchange.
package queue

import (
	"sync"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ExtractionQueue = "extraction_queue"
	ReconcileQueue  = "reconcile_queue"
	DeleteQueue     = "delete_queue"

	// EventExchange receives store events routed by event type.
	EventExchange = "kinfolk_events"

	retryTTL = 10 * time.Second
)

// Queues lists every work queue the worker consumes.
func Queues() []string {
	return []string{ExtractionQueue, ReconcileQueue, DeleteQueue}
}

func Init(cfg config.RabbitMQConfig) *amqp091.Connection {
	conn, err := amqp091.Dial(cfg.URL())
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "host", cfg.Host, "err", err)
	}
	return conn
}

// SetupQueues declares the event exchange and, for every queue, a durable
// queue plus its _dlq and a _retry queue that dead-letters back after a
// delay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	if err := declareExchange(ch); err != nil {
		return err
	}

	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		); err != nil {
			return err
		}

		if _, err := ch.QueueDeclare(
			name+"_dlq",
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return err
		}

		if _, err := ch.QueueDeclare(
			name+"_retry",
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryTTL.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		); err != nil {
			return err
		}
	}

	return nil
}

func declareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		EventExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	return ch.Publish(
		"",
		q.Name,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func PublishTopic(ch *amqp091.Channel, topic string, data []byte) error {
	if err := declareExchange(ch); err != nil {
		return err
	}

	return ch.Publish(
		EventExchange,
		topic,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// ChannelPublisher publishes jobs on one AMQP channel from any goroutine.
type ChannelPublisher struct {
	mu sync.Mutex
	ch *amqp091.Channel
}

func NewChannelPublisher(ch *amqp091.Channel) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(queueName string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublishFIFO(p.ch, queueName, data)
}
