package rabbit

import (
	"github.com/pkg/errors"
	"github.com/streadway/amqp"

	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/channel"
)

// ExchangeKind is an AMQP exchange type
type ExchangeKind string

const (
	ExchangeDirect  ExchangeKind = amqp.ExchangeDirect
	ExchangeFanout  ExchangeKind = amqp.ExchangeFanout
	ExchangeTopic   ExchangeKind = amqp.ExchangeTopic
	ExchangeHeaders ExchangeKind = amqp.ExchangeHeaders
)

// DefaultExchange is the nameless direct exchange every queue is bound to by its name
const DefaultExchange = ""

// Exchange describes an exchange to be declared
type Exchange struct {
	Name       string
	Kind       ExchangeKind
	Durable    bool
	AutoDelete bool
	Internal   bool
	Args       amqp.Table
}

// Queue describes a queue to be declared and bound
//
// Empty Name lets the broker generate a unique one, such queues are usually
// Exclusive and AutoDelete.
type Queue struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       amqp.Table

	// Bindings of the queue to exchanges
	Bindings []Binding

	// Purge removes all ready messages from the queue once it is declared
	Purge bool
}

// Binding routes messages from an exchange to a queue
type Binding struct {
	Exchange string
	Key      string
}

// Topology is a set of exchanges and queues declared together
type Topology struct {
	Exchanges []Exchange
	Queues    []Queue
}

// ServerNamedQueue returns an exclusive auto-deleted queue with broker generated name
func ServerNamedQueue(bindings ...Binding) Queue {
	return Queue{
		Exclusive:  true,
		AutoDelete: true,
		Bindings:   bindings,
	}
}

// Declare creates exchanges, then queues and their bindings
//
// Declarations are idempotent for entities declared with the same arguments.
// Returns actual names of declared queues in the order they are listed.
func (t Topology) Declare(ch channel.Channel) (queues []string, err error) {
	for _, ex := range t.Exchanges {
		if err = declareExchange(ch, ex); err != nil {
			return nil, err
		}
	}
	queues = make([]string, 0, len(t.Queues))
	for _, q := range t.Queues {
		name, err := declareQueue(ch, q)
		if err != nil {
			return nil, err
		}
		queues = append(queues, name)
	}
	return queues, nil
}

func declareExchange(ch channel.Channel, ex Exchange) error {
	kind := ex.Kind
	if kind == "" {
		kind = ExchangeDirect
	}
	err := ch.ExchangeDeclare(ex.Name, string(kind), ex.Durable, ex.AutoDelete, ex.Internal, false, ex.Args)
	return errors.Wrapf(err, "cant declare %s exchange %q", kind, ex.Name)
}

func declareQueue(ch channel.Channel, q Queue) (string, error) {
	declared, err := ch.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, q.Args)
	if err != nil {
		return "", errors.Wrapf(err, "cant declare queue %q", q.Name)
	}
	name := declared.Name
	if name == "" {
		name = q.Name
	}
	for _, b := range q.Bindings {
		if err := ch.QueueBind(name, b.Key, b.Exchange, false, nil); err != nil {
			return "", errors.Wrapf(err, "cant bind queue %q to %q with %q", name, b.Exchange, b.Key)
		}
	}
	if q.Purge {
		if _, err := ch.QueuePurge(name, false); err != nil {
			return "", errors.Wrapf(err, "cant purge queue %q", name)
		}
	}
	return name, nil
}
