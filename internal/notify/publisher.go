// Package notify publishes template registry changes to an AMQP topic
// exchange so other services can react to added, updated or removed
// templates.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/registry"
)

// MessageType is the routing key and type of a published message.
type MessageType string

const (
	MessageTypeAdded   MessageType = "template.added"
	MessageTypeUpdated MessageType = "template.updated"
	MessageTypeRemoved MessageType = "template.removed"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is the JSON body of a published event.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Template  TemplatePayload `json:"template"`
	Timestamp time.Time       `json:"timestamp"`
}

// TemplatePayload describes the template an event is about.
type TemplatePayload struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	FilePath string   `json:"file_path,omitempty"`
	Hash     string   `json:"hash,omitempty"`
	Inserts  []string `json:"inserts,omitempty"`
}

// MessageTypeFor maps a registry event type to its message type.
func MessageTypeFor(t registry.EventType) (MessageType, bool) {
	switch t {
	case registry.EventTypeAdded:
		return MessageTypeAdded, true
	case registry.EventTypeUpdated:
		return MessageTypeUpdated, true
	case registry.EventTypeRemoved:
		return MessageTypeRemoved, true
	default:
		return "", false
	}
}

// NewMessage builds the message for a registry event with a fresh id.
func NewMessage(event registry.TemplateEvent) (*Message, error) {
	msgType, ok := MessageTypeFor(event.Type)
	if !ok || event.Template == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidData,
			fmt.Sprintf("cannot publish %s event", event.Type))
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	info := event.Template
	return &Message{
		ID:   uuid.New().String(),
		Type: msgType,
		Template: TemplatePayload{
			ID:       info.ID,
			Source:   string(info.Source),
			FilePath: info.FilePath,
			Hash:     info.Hash,
			Inserts:  info.Inserts,
		},
		Timestamp: ts,
	}, nil
}

// Publisher sends template events to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	logger   logging.Logger
}

// Dial connects to url, opens a channel and declares exchange.
func Dial(url, exchange string, logger logging.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodePublishFailed, "dial amqp", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.NewIOError(errors.ErrCodePublishFailed, "open amqp channel", err)
	}

	p, err := NewPublisher(ch, exchange, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	p.logger.Info(context.Background(), "Connected to message broker", "url", logging.RedactURL(url))
	return p, nil
}

// NewPublisher declares a durable topic exchange on ch and returns a
// publisher for it.
func NewPublisher(ch Channel, exchange string, logger logging.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodePublishFailed, "declare exchange "+exchange, err)
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.WithComponent("notify"),
	}, nil
}

// Publish sends the message for event. The routing key is the message type.
func (p *Publisher) Publish(ctx context.Context, event registry.TemplateEvent) error {
	msg, err := NewMessage(event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.ch.PublishWithContext(
		ctx,
		p.exchange,       // exchange
		string(msg.Type), // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.Timestamp,
			Type:         string(msg.Type),
			Body:         body,
		},
	)
	if err != nil {
		return errors.NewIOError(errors.ErrCodePublishFailed,
			fmt.Sprintf("publish to %s/%s", p.exchange, msg.Type), err).
			WithTemplate(msg.Template.ID)
	}

	p.logger.Debug(ctx, "Published template event",
		"exchange", p.exchange,
		"routing_key", msg.Type,
		"message_id", msg.ID,
		"template", msg.Template.ID,
	)
	return nil
}

// Forward publishes every event of reg until ctx is done. Failed publishes
// are logged and do not stop forwarding.
func (p *Publisher) Forward(ctx context.Context, reg *registry.TemplateRegistry) {
	events := reg.Watch()
	defer reg.UnWatch(events)
	p.ForwardEvents(ctx, events)
}

// ForwardEvents publishes events until ctx is done or events is closed.
func (p *Publisher) ForwardEvents(ctx context.Context, events <-chan registry.TemplateEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ctx, event); err != nil {
				logging.LogFillError(ctx, p.logger, err, "Failed to publish template event")
			}
		}
	}
}

// Close closes the channel and the connection opened by Dial.
func (p *Publisher) Close() error {
	var first error
	if err := p.ch.Close(); err != nil {
		first = fmt.Errorf("close channel: %w", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && first == nil {
			first = fmt.Errorf("close connection: %w", err)
		}
	}
	return first
}
