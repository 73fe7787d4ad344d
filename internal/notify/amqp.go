package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// EventMessage is the wire form of an Event. Credentials and the avatar never
// leave the process.
type EventMessage struct {
	Kind         Kind      `json:"kind"`
	Identity     string    `json:"identity"`
	Previous     string    `json:"previous,omitempty"`
	Name         string    `json:"name,omitempty"`
	Budget       float64   `json:"budget"`
	ExpenseCount int       `json:"expense_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewEventMessage builds the wire form of ev.
func NewEventMessage(ev Event) *EventMessage {
	msg := &EventMessage{
		Kind:      ev.Kind,
		Identity:  ev.Identity,
		Previous:  ev.Previous,
		Timestamp: ev.At,
	}
	if ev.User != nil {
		msg.Name = ev.User.Name
		msg.Budget = ev.User.Budget
		msg.ExpenseCount = len(ev.User.Expenses)
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// channel is the part of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher forwards events to a topic exchange, routed by event kind.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher dials url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return newAMQPPublisher(conn, ch, exchange, logger), nil
}

func newAMQPPublisher(conn *amqp091.Connection, ch channel, exchange string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger.With("component", "amqp"),
	}
}

// Publish sends one event. Failures are returned, never retried.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := NewEventMessage(ev).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,      // exchange
		string(ev.Kind), // routing key
		false,           // mandatory
		false,           // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.DebugContext(ctx, "published event", "kind", ev.Kind, "exchange", p.exchange)
	return nil
}

// Listener adapts the publisher for Hub.Subscribe. Publish errors are logged.
func (p *AMQPPublisher) Listener() Listener {
	return func(ctx context.Context, ev Event) {
		if err := p.Publish(ctx, ev); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish event", "kind", ev.Kind, "error", err)
		}
	}
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = fmt.Errorf("close channel: %w", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection: %w", err)
		}
	}
	return firstErr
}
