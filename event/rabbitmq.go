package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"support-chat/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

type EventChannelData struct {
	Action string
	Data   []byte
}

const RabbitMQActionHeader string = "x-action"

// Broker owns one RabbitMQ connection and channel. Publishing is serialized
// because an amqp channel must not interleave frames from concurrent senders.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

func URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		config.Config("RABBITMQ_USER"),
		config.Config("RABBITMQ_PASSWORD"),
		config.String("RABBITMQ_HOST", "127.0.0.1"),
		config.String("RABBITMQ_PORT", "5672"),
	)
}

// RabbitMQConnect dials the broker and declares every queue.
func RabbitMQConnect(url string, queues []string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	log.Info().Msg("connection opened to RabbitMQ server")

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	for _, name := range queues {
		_, err := channel.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare RabbitMQ queue %s: %w", name, err)
		}
		log.Info().Str("queue", name).Msg("declared RabbitMQ queue")
	}

	return &Broker{conn: conn, channel: channel}, nil
}

// Emit publishes data to queue with the action in a header.
func (b *Broker) Emit(ctx context.Context, queue string, action string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers: amqp.Table{
				RabbitMQActionHeader: action,
			},
			Body: data,
		},
	)
}

// Subscribe forwards every delivery on queue to out until the channel closes.
// Messages are acked once handed off.
func (b *Broker) Subscribe(queue string, out chan<- EventChannelData) error {
	msgs, err := b.channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}
	log.Info().Str("queue", queue).Msg("subscribed to RabbitMQ queue")

	go func() {
		defer close(out)
		for msg := range msgs {
			action, _ := msg.Headers[RabbitMQActionHeader].(string)
			msg.Ack(false)
			out <- EventChannelData{
				Action: action,
				Data:   msg.Body,
			}
		}
	}()
	return nil
}

func (b *Broker) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
