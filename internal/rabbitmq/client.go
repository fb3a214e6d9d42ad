package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/messaging/payloads"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Client представляет собой клиент RabbitMQ для очереди оптимизации
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *slog.Logger
}

// NewClient подключается к RabbitMQ и объявляет durable-очередь.
func NewClient(url, queueName string, logger *slog.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// оптимизация тяжёлая, воркер берёт по одному сообщению
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set channel QoS: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	logger.Info("RabbitMQ queue declared", "queue", q.Name, "messages", q.Messages)
	return &Client{conn: conn, channel: ch, queue: q, logger: logger}, nil
}

// Close закрывает канал и соединение
func (c *Client) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("error closing RabbitMQ channel", "error", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("close RabbitMQ connection: %w", err)
		}
	}
	return nil
}

// PublishOptimizeRequest реализует ports.OptimizePublisher.
func (c *Client) PublishOptimizeRequest(ctx context.Context, payload payloads.OptimizePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload to JSON: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		publishCtx,
		"",           // exchange
		c.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    payload.RequestedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}
	c.logger.Info("optimize request published", "queue", c.queue.Name, "full_key", payload.FullKey)
	return nil
}

// StartConsumingOptimizeRequests реализует ports.OptimizeConsumer.
// Сообщения обрабатываются в отдельной горутине до отмены ctx.
func (c *Client) StartConsumingOptimizeRequests(ctx context.Context, handler func(context.Context, payloads.OptimizePayload) error) error {
	msgs, err := c.channel.Consume(
		c.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.logger.Info("consumer registered", "queue", c.queue.Name)

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("RabbitMQ delivery channel closed, stopping consumer")
					return
				}
				handleDelivery(ctx, msg, handler, c.logger)
			case <-ctx.Done():
				c.logger.Info("context cancelled, stopping RabbitMQ consumer")
				return
			}
		}
	}()

	return nil
}

// handleDelivery разбирает сообщение и подтверждает его.
// Сообщения с ошибкой не возвращаются в очередь: повтор делается
// повторной загрузкой того же файла.
func handleDelivery(ctx context.Context, msg amqp.Delivery, handler func(context.Context, payloads.OptimizePayload) error, logger *slog.Logger) {
	start := time.Now()

	var payload payloads.OptimizePayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload.FullKey == "" {
		logger.Error("malformed optimize message", "error", err, "body", string(msg.Body))
		if err := msg.Nack(false, false); err != nil {
			logger.Error("failed to NACK message", "error", err)
		}
		return
	}

	if err := handler(ctx, payload); err != nil {
		logger.Error("optimize job failed",
			"full_key", payload.FullKey,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if err := msg.Nack(false, false); err != nil {
			logger.Error("failed to NACK message", "error", err)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("failed to ACK message", "error", err)
		return
	}
	logger.Info("optimize job done",
		"full_key", payload.FullKey,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
