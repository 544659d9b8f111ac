package mocks

import (
	"fmt"
	"strings"
	"sync"

	"github.com/streadway/amqp"

	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/channel"
)

// Broker is an in-memory message broker implementing the parts of AMQP 0-9-1
// semantics the library relies on
//
// It routes publishings through default, direct, fanout and topic exchanges,
// honours per channel prefetch, tracks unacknowledged deliveries, requeues
// them on nack or channel close and sends publisher confirms. Broker can be
// used in place of a real connection.
type Broker struct {
	// OpenErr, when set, is returned by Open
	OpenErr error

	mu        sync.Mutex
	exchanges map[string]string
	bindings  map[string][]binding
	queues    map[string]*queue
	channels  []*BrokerChannel
	names     uint64
}

type binding struct {
	queue string
	key   string
}

type queue struct {
	name       string
	owner      *BrokerChannel
	autoDelete bool
	ready      []amqp.Delivery
	consumers  []*brokerConsumer
	next       int

	delivered int
	acked     int
}

type brokerConsumer struct {
	ch      *BrokerChannel
	tag     string
	queue   *queue
	autoAck bool
	out     chan amqp.Delivery
}

type unacked struct {
	queue    *queue
	delivery amqp.Delivery
}

const consumerBuffer = 4096

// NewBroker creates a broker with the standard amq.* exchanges declared
func NewBroker() *Broker {
	return &Broker{
		exchanges: map[string]string{
			"amq.direct": amqp.ExchangeDirect,
			"amq.fanout": amqp.ExchangeFanout,
			"amq.topic":  amqp.ExchangeTopic,
		},
		bindings: make(map[string][]binding),
		queues:   make(map[string]*queue),
	}
}

// Open opens a new channel on the broker
func (b *Broker) Open() (channel.Channel, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := &BrokerChannel{
		b:         b,
		unacked:   make(map[uint64]unacked),
		consumers: make(map[string]*brokerConsumer),
	}
	b.channels = append(b.channels, ch)
	return ch, nil
}

// Close closes every open channel
func (b *Broker) Close() error {
	b.mu.Lock()
	channels := append([]*BrokerChannel(nil), b.channels...)
	b.mu.Unlock()
	for _, ch := range channels {
		_ = ch.Close()
	}
	return nil
}

// Publish routes a publishing as if it was sent by some other client
func (b *Broker) Publish(exchange, key string, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.route(exchange, key, msg)
}

// QueueLength returns the number of messages ready for delivery in the queue
func (b *Broker) QueueLength(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.ready)
	}
	return 0
}

// HasQueue tells whether the queue is declared
func (b *Broker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

// Delivered returns how many times messages were delivered from the queue, redeliveries included
func (b *Broker) Delivered(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q.delivered
	}
	return 0
}

// Acked returns how many deliveries from the queue were acknowledged
func (b *Broker) Acked(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q.acked
	}
	return 0
}

// MaxUnacked returns the highest number of unacknowledged deliveries any channel ever held
func (b *Broker) MaxUnacked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	max := 0
	for _, ch := range b.channels {
		if ch.maxUnacked > max {
			max = ch.maxUnacked
		}
	}
	return max
}

// Channels returns all channels ever opened on the broker
func (b *Broker) Channels() []*BrokerChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*BrokerChannel(nil), b.channels...)
}

func (b *Broker) route(exchange, key string, msg amqp.Publishing) error {
	var targets []string
	if exchange == "" {
		if _, ok := b.queues[key]; ok {
			targets = append(targets, key)
		}
	} else {
		kind, ok := b.exchanges[exchange]
		if !ok {
			return &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no exchange '%s'", exchange)}
		}
		seen := make(map[string]bool)
		for _, bnd := range b.bindings[exchange] {
			if seen[bnd.queue] || !matches(kind, bnd.key, key) {
				continue
			}
			seen[bnd.queue] = true
			targets = append(targets, bnd.queue)
		}
	}
	for _, name := range targets {
		q := b.queues[name]
		q.ready = append(q.ready, amqp.Delivery{
			Headers:         msg.Headers,
			ContentType:     msg.ContentType,
			ContentEncoding: msg.ContentEncoding,
			DeliveryMode:    msg.DeliveryMode,
			Priority:        msg.Priority,
			CorrelationId:   msg.CorrelationId,
			ReplyTo:         msg.ReplyTo,
			Expiration:      msg.Expiration,
			MessageId:       msg.MessageId,
			Timestamp:       msg.Timestamp,
			Type:            msg.Type,
			UserId:          msg.UserId,
			AppId:           msg.AppId,
			Exchange:        exchange,
			RoutingKey:      key,
			Body:            msg.Body,
		})
		b.dispatch(q)
	}
	return nil
}

// dispatch hands ready messages to consumers round-robin, skipping consumers
// whose channel reached its prefetch limit
func (b *Broker) dispatch(q *queue) {
	for len(q.ready) > 0 && len(q.consumers) > 0 {
		var c *brokerConsumer
		for i := 0; i < len(q.consumers); i++ {
			candidate := q.consumers[(q.next+i)%len(q.consumers)]
			if candidate.hasCapacity() {
				c = candidate
				q.next = (q.next + i + 1) % len(q.consumers)
				break
			}
		}
		if c == nil {
			return
		}
		d := q.ready[0]
		q.ready = q.ready[1:]
		c.ch.deliveryTag++
		d.DeliveryTag = c.ch.deliveryTag
		d.ConsumerTag = c.tag
		d.Acknowledger = c.ch
		q.delivered++
		if c.autoAck {
			q.acked++
		} else {
			c.ch.unacked[d.DeliveryTag] = unacked{q, d}
			if len(c.ch.unacked) > c.ch.maxUnacked {
				c.ch.maxUnacked = len(c.ch.unacked)
			}
		}
		select {
		case c.out <- d:
		default:
			panic("mock broker: consumer buffer is full")
		}
	}
}

func (c *brokerConsumer) hasCapacity() bool {
	return c.autoAck || c.ch.prefetch == 0 || len(c.ch.unacked) < c.ch.prefetch
}

func (b *Broker) deleteQueue(q *queue) {
	delete(b.queues, q.name)
	for ex, bindings := range b.bindings {
		kept := bindings[:0]
		for _, bnd := range bindings {
			if bnd.queue != q.name {
				kept = append(kept, bnd)
			}
		}
		b.bindings[ex] = kept
	}
}

func matches(kind, bindingKey, routingKey string) bool {
	switch kind {
	case amqp.ExchangeFanout:
		return true
	case amqp.ExchangeTopic:
		return MatchTopic(bindingKey, routingKey)
	default:
		return bindingKey == routingKey
	}
}

// MatchTopic tells whether routing key matches topic binding pattern
//
// Words are separated by dots, '*' substitutes exactly one word and '#'
// substitutes zero or more words.
func MatchTopic(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && key[0] == pattern[0] && matchWords(pattern[1:], key[1:])
	}
}

// BrokerChannel is a channel opened on the in-memory Broker
type BrokerChannel struct {
	b *Broker

	prefetch    int
	confirm     bool
	closed      bool
	publishTag  uint64
	deliveryTag uint64
	unacked     map[uint64]unacked
	maxUnacked  int
	consumers   map[string]*brokerConsumer
	consumerSeq int

	closeNotify   []chan *amqp.Error
	confirmNotify []chan amqp.Confirmation
}

// Close closes the channel, cancelling its consumers and requeueing unacknowledged deliveries
func (ch *BrokerChannel) Close() error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.shutdown(nil)
	return nil
}

// Fail closes the channel as if the broker closed it with the given error
func (ch *BrokerChannel) Fail(err *amqp.Error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.shutdown(err)
}

// MaxUnacked returns the highest number of unacknowledged deliveries the channel held
func (ch *BrokerChannel) MaxUnacked() int {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.maxUnacked
}

// Prefetch returns the prefetch count set on the channel
func (ch *BrokerChannel) Prefetch() int {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.prefetch
}

func (ch *BrokerChannel) shutdown(err *amqp.Error) {
	if ch.closed {
		return
	}
	ch.closed = true
	b := ch.b

	for tag, c := range ch.consumers {
		ch.removeConsumer(c)
		delete(ch.consumers, tag)
	}

	requeue := make(map[*queue]bool)
	for tag, u := range ch.unacked {
		d := u.delivery
		d.Redelivered = true
		u.queue.ready = append([]amqp.Delivery{d}, u.queue.ready...)
		requeue[u.queue] = true
		delete(ch.unacked, tag)
	}

	for _, q := range b.queues {
		if q.owner == ch {
			b.deleteQueue(q)
			delete(requeue, q)
		}
	}
	for q := range requeue {
		b.dispatch(q)
	}

	for _, c := range ch.closeNotify {
		if err != nil {
			select {
			case c <- err:
			default:
			}
		}
		close(c)
	}
	ch.closeNotify = nil
}

func (ch *BrokerChannel) removeConsumer(c *brokerConsumer) {
	q := c.queue
	for i, qc := range q.consumers {
		if qc == c {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			break
		}
	}
	if q.next >= len(q.consumers) {
		q.next = 0
	}
	close(c.out)
	if q.autoDelete && len(q.consumers) == 0 {
		ch.b.deleteQueue(q)
	}
}

func (ch *BrokerChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		close(c)
		return c
	}
	ch.closeNotify = append(ch.closeNotify, c)
	return c
}

func (ch *BrokerChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.confirmNotify = append(ch.confirmNotify, confirm)
	return confirm
}

func (ch *BrokerChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.prefetch = prefetchCount
	return nil
}

func (ch *BrokerChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	if name == "" {
		b.names++
		name = fmt.Sprintf("amq.gen-%d", b.names)
	}
	q, ok := b.queues[name]
	if !ok {
		q = &queue{name: name, autoDelete: autoDelete}
		if exclusive {
			q.owner = ch
		}
		b.queues[name] = q
	} else if q.owner != nil && q.owner != ch {
		return amqp.Queue{}, &amqp.Error{Code: amqp.ResourceLocked, Reason: fmt.Sprintf("queue '%s' is exclusive", name)}
	}
	return amqp.Queue{Name: name, Messages: len(q.ready), Consumers: len(q.consumers)}, nil
}

func (ch *BrokerChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if _, ok := b.queues[name]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no queue '%s'", name)}
	}
	if _, ok := b.exchanges[exchange]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no exchange '%s'", exchange)}
	}
	for _, bnd := range b.bindings[exchange] {
		if bnd.queue == name && bnd.key == key {
			return nil
		}
	}
	b.bindings[exchange] = append(b.bindings[exchange], binding{name, key})
	return nil
}

func (ch *BrokerChannel) QueuePurge(name string, noWait bool) (int, error) {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return 0, &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no queue '%s'", name)}
	}
	n := len(q.ready)
	q.ready = nil
	return n, nil
}

func (ch *BrokerChannel) Consume(queueName, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return nil, amqp.ErrClosed
	}
	q, ok := b.queues[queueName]
	if !ok {
		return nil, &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no queue '%s'", queueName)}
	}
	if consumer == "" {
		ch.consumerSeq++
		consumer = fmt.Sprintf("ctag-%d", ch.consumerSeq)
	}
	c := &brokerConsumer{
		ch:      ch,
		tag:     consumer,
		queue:   q,
		autoAck: autoAck,
		out:     make(chan amqp.Delivery, consumerBuffer),
	}
	ch.consumers[consumer] = c
	q.consumers = append(q.consumers, c)
	b.dispatch(q)
	return c.out, nil
}

func (ch *BrokerChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if existing, ok := b.exchanges[name]; ok && existing != kind {
		return &amqp.Error{Code: amqp.PreconditionFailed, Reason: fmt.Sprintf("exchange '%s' is %s", name, existing)}
	}
	b.exchanges[name] = kind
	return nil
}

func (ch *BrokerChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if err := b.route(exchange, key, msg); err != nil {
		return err
	}
	if ch.confirm {
		ch.publishTag++
		confirmation := amqp.Confirmation{DeliveryTag: ch.publishTag, Ack: true}
		for _, c := range ch.confirmNotify {
			go func(c chan amqp.Confirmation) {
				c <- confirmation
			}(c)
		}
	}
	return nil
}

func (ch *BrokerChannel) Confirm(noWait bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.confirm = true
	return nil
}

func (ch *BrokerChannel) Ack(tag uint64, multiple bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.settle(tag, multiple, func(u unacked) {
		u.queue.acked++
	})
}

func (ch *BrokerChannel) Nack(tag uint64, multiple bool, requeue bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.settle(tag, multiple, func(u unacked) {
		if requeue {
			d := u.delivery
			d.Redelivered = true
			u.queue.ready = append([]amqp.Delivery{d}, u.queue.ready...)
		}
	})
}

func (ch *BrokerChannel) Reject(tag uint64, requeue bool) error {
	return ch.Nack(tag, false, requeue)
}

func (ch *BrokerChannel) settle(tag uint64, multiple bool, f func(unacked)) error {
	if ch.closed {
		return amqp.ErrClosed
	}
	var tags []uint64
	if multiple {
		for t := range ch.unacked {
			if t <= tag {
				tags = append(tags, t)
			}
		}
	} else if _, ok := ch.unacked[tag]; ok {
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return &amqp.Error{Code: amqp.PreconditionFailed, Reason: fmt.Sprintf("unknown delivery tag %d", tag)}
	}
	queues := make(map[*queue]bool)
	for _, t := range tags {
		u := ch.unacked[t]
		delete(ch.unacked, t)
		f(u)
		queues[u.queue] = true
	}
	for _, c := range ch.consumers {
		queues[c.queue] = true
	}
	for q := range queues {
		ch.b.dispatch(q)
	}
	return nil
}
