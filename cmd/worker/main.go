package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kinfolk-ai/kinfolk/internal/app"
	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/internal/queue"
	"github.com/kinfolk-ai/kinfolk/internal/storage"
	"github.com/kinfolk-ai/kinfolk/internal/timing"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/logger/console"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
)

const maxRetries = 10

func main() {
	configFile := flag.String("config", "", "path to kinfolk.yaml")
	flag.Parse()

	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.LogJSON,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	var s3Client *storage.Client
	if cfg.S3.Enabled() {
		s3Client, err = storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			logger.Fatal("Could not create S3 client", "err", err)
		}
	}

	// Init rabbitmq
	conn := queue.Init(cfg.RabbitMQ)
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := queue.Queues()
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	eventCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open event channel", "err", err)
	}
	defer eventCh.Close()

	a, err := app.New(ctx, cfg, queue.NewNotifier(eventCh))
	if err != nil {
		logger.Fatal("Unable to open store", "err", err)
	}
	defer a.Close()

	publisher := queue.NewChannelPublisher(ch)
	processor := &queue.Processor{
		App:       a,
		S3:        s3Client,
		Publisher: publisher,
	}

	if cfg.Reconcile.Schedule != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.Reconcile.Schedule, func() {
			body, _ := json.Marshal(queue.ReconcileMsg{MergedBy: "schedule"})
			if err := publisher.Publish(queue.ReconcileQueue, body); err != nil {
				logger.Error("Failed to schedule reconcile", "err", err)
			}
		})
		if err != nil {
			logger.Fatal("Invalid reconcile schedule", "schedule", cfg.Reconcile.Schedule, "err", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("Scheduled reconciliation", "schedule", cfg.Reconcile.Schedule)
	}

	logger.Info("Listening for messages")

	// A single consumer channel with a global prefetch delivers one message
	// at a time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(max(cfg.RabbitMQ.Prefetch, 1), 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				sw := timing.Start()
				logger.Info("Received message", "queue", qm.queueName)

				processingErr := processor.Process(ctx, qm.queueName, qm.msg.Body)

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName, queue.IsPermanent(processingErr))
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				logger.Info("Processing time", "duration", sw.String())
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

// handleProcessingError re-publishes msg to the retry queue, or to the
// dead-letter queue once retries are exhausted or the failure is permanent.
func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string, permanent bool) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	if permanent || retries >= maxRetries {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName, "retries", retries, "permanent", permanent)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
