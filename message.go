package rabbit

import (
	"strconv"
	"time"

	"github.com/streadway/amqp"
)

// Message is a single message published to or delivered from the broker
type Message struct {
	Exchange   string // Exchange to publish to, empty for the default exchange
	RoutingKey string // Routing key, queue name when publishing to the default exchange

	ID            string // Message ID
	CorrelationID string // ID of the correlated message
	ReplyTo       string // Queue the reply should be sent to
	Type          string // Application specific message type
	AppID         string // Sender application ID

	Headers    amqp.Table
	Persistent bool          // Survive broker restarts when routed to durable queues
	Priority   uint8         // Message priority 0..9
	Expiration time.Duration // Message expiration
	Timestamp  time.Time

	ContentType string // Message body content type
	Body        []byte // Message body

	Redelivered bool // Set on deliveries the broker has already tried to deliver

	tag   uint64
	acker acknowledger
}

type acknowledger interface {
	Ack(tag uint64)
	Nack(tag uint64, requeue bool)
}

// Ack acknowledges successfully processing a delivered message
//
// Ack is a no-op for messages consumed with automatic acknowledgement.
func (m *Message) Ack() {
	if m.acker != nil {
		m.acker.Ack(m.tag)
	}
}

// Nack acknowledges failure to process a delivered message
// and optionally requests to requeue it
func (m *Message) Nack(requeue bool) {
	if m.acker != nil {
		m.acker.Nack(m.tag, requeue)
	}
}

// DeliveryTag returns the channel scoped delivery tag, zero for messages not delivered by the broker
func (m *Message) DeliveryTag() uint64 {
	return m.tag
}

// Handler is a function that handles a delivered message
//
// When consuming with manual acknowledgement, the handler must eventually
// Ack or Nack the message.
type Handler func(*Message)

// TextMessage returns a plain text message for the given exchange and routing key
func TextMessage(exchange, key, text string) *Message {
	return &Message{
		Exchange:    exchange,
		RoutingKey:  key,
		ContentType: "text/plain",
		Body:        []byte(text),
	}
}

func messageFromDelivery(d *amqp.Delivery, acker acknowledger) *Message {
	return &Message{
		Exchange:      d.Exchange,
		RoutingKey:    d.RoutingKey,
		ID:            d.MessageId,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		Type:          d.Type,
		AppID:         d.AppId,
		Headers:       d.Headers,
		Persistent:    d.DeliveryMode == amqp.Persistent,
		Priority:      d.Priority,
		Expiration:    millisecondsStringToDuration(d.Expiration),
		Timestamp:     d.Timestamp,
		ContentType:   d.ContentType,
		Body:          d.Body,
		Redelivered:   d.Redelivered,

		tag:   d.DeliveryTag,
		acker: acker,
	}
}

func messageToPublishing(m *Message) amqp.Publishing {
	mode := amqp.Transient
	if m.Persistent {
		mode = amqp.Persistent
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return amqp.Publishing{
		Headers:       m.Headers,
		AppId:         m.AppID,
		MessageId:     m.ID,
		CorrelationId: m.CorrelationID,
		ReplyTo:       m.ReplyTo,
		Type:          m.Type,
		DeliveryMode:  mode,
		Priority:      m.Priority,
		Expiration:    durationToMillisecondsString(m.Expiration),
		Timestamp:     ts,
		ContentType:   m.ContentType,
		Body:          m.Body,
	}
}

func millisecondsStringToDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	res, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(res) * time.Millisecond
}

func durationToMillisecondsString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return strconv.FormatInt(int64(d/time.Millisecond), 10)
}
