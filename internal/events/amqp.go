package events

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
)

// ExchangeName topic-обменник доменных событий.
const ExchangeName = "admarket.events"

func dial(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("events: не удалось подключиться к RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("events: не удалось открыть канал: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("events: не удалось объявить обменник: %w", err)
	}

	return conn, ch, nil
}

// AMQPPublisher публикует события в RabbitMQ.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewAMQPPublisher подключается к брокеру и объявляет обменник.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

// Publish отправляет событие с routing key, равным типу события.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, ExchangeName, event.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID.String(),
		Timestamp:    event.OccurredAt,
		Body:         body,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// IsConnected проверяет соединение с брокером.
func (p *AMQPPublisher) IsConnected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close закрывает канал и соединение.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Handler обрабатывает полученное событие.
type Handler func(ctx context.Context, event Event) error

// Consumer читает события из очереди воркера.
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
}

// NewConsumer объявляет очередь и привязывает её к перечисленным событиям.
func NewConsumer(url, queueName string, routingKeys []string) (*Consumer, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: не удалось объявить очередь: %w", err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeName, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("events: не удалось привязать очередь к %s: %w", key, err)
		}
	}

	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: qos %w", err)
	}

	return &Consumer{conn: conn, channel: ch, queue: q.Name}, nil
}

// Run блокируется до отмены контекста или закрытия канала.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	deliveries, err := c.channel.Consume(c.queue, "admarket-worker", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("events: не удалось начать чтение очереди: %w", err)
	}

	logger.Log.WithField("queue", c.queue).Info("events: consumer запущен")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("events: канал доставки закрыт")
			}
			switch dispatch(ctx, handler, msg.Body) {
			case outcomeAck:
				_ = msg.Ack(false)
			case outcomeRetry:
				_ = msg.Nack(false, true)
			case outcomeDrop:
				_ = msg.Nack(false, false)
			}
		}
	}
}

// Close закрывает канал и соединение.
func (c *Consumer) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDrop
)

// dispatch: некорректный JSON отбрасывается, ошибка обработчика или panic ведут к повтору.
func dispatch(ctx context.Context, handler Handler, body []byte) (result outcome) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Log.WithError(err).Error("events: некорректное сообщение, отбрасываем")
		return outcomeDrop
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithFields(logrus.Fields{
				"event": event.Type,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("events: panic в обработчике")
			result = outcomeRetry
		}
	}()

	if err := handler(ctx, event); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"event": event.Type,
			"id":    event.ID,
			"error": err.Error(),
		}).Error("events: ошибка обработки, вернём в очередь")
		return outcomeRetry
	}
	return outcomeAck
}
