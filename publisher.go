package rabbit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"

	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/channel"
)

// Publisher publishes messages over a single AMQP channel in confirm mode
//
// Topology is declared each time the channel is (re)created. Publish is safe
// for concurrent use, publishings are serialized by the publisher loop.
type Publisher struct {
	// RabbitMQ connection
	Connection ConnectionOpenCloser

	// Exchanges and queues to declare before publishing
	Topology Topology

	// How many messages could be in flight for publishing
	// Default is 100
	MaxPublishingsInFlight int

	// Time to wait for outstanding publishing confirms after Shutdown is called
	// Default is 5s
	ShutdownTimeout time.Duration

	Logger Logger

	started    int32
	quit       chan struct{}
	done       chan struct{}
	shouldQuit chan error
	fatal      error

	publishings chan *publishing

	ch channel.Channel

	err      chan *amqp.Error
	confirms chan amqp.Confirmation

	// publishing delivery tag, starting with 1
	tag uint64

	// publishings in flight by delivery tag
	outstanding map[uint64]*publishing
}

type publishing struct {
	exchange string
	key      string
	msg      amqp.Publishing
	done     chan error
}

func newPublishing(m *Message) *publishing {
	return &publishing{
		exchange: m.Exchange,
		key:      m.RoutingKey,
		msg:      messageToPublishing(m),
		done:     make(chan error, 1),
	}
}

const (
	defaultMaxPublishingsInFlight = 100
	defaultShutdownTimeout        = 5 * time.Second
)

var (
	// ErrNotStarted is returned when using a publisher or consumer that was not started
	ErrNotStarted = errors.New("not started")

	// ErrClosed is returned for publishings that could not be completed before shutdown
	ErrClosed = errors.New("publisher is shut down")

	errChannelClosed = errors.New("channel closed")
)

// Start opens publisher channel, declares topology and starts the publisher loop
//
// Start returns immediately after the channel is set up. Use Shutdown to stop the started publisher.
func (p *Publisher) Start() error {
	if atomic.LoadInt32(&p.started) > 0 {
		panic("trying to start already started publisher")
	}

	p.setDefaults()

	p.quit = make(chan struct{})
	p.done = make(chan struct{})
	p.shouldQuit = make(chan error, 1)
	p.fatal = nil
	p.publishings = make(chan *publishing, p.MaxPublishingsInFlight)

	if err := p.createChannel(); err != nil {
		err = errors.Wrap(err, "cant create publisher channel")
		p.debugf(err.Error())
		return err
	}

	atomic.StoreInt32(&p.started, 1)
	go p.run()

	return nil
}

// Publish publishes a message and blocks until publishing is confirmed or rejected by the broker
func (p *Publisher) Publish(ctx context.Context, m *Message) error {
	if atomic.LoadInt32(&p.started) == 0 {
		return ErrNotStarted
	}

	pub := newPublishing(m)
	select {
	case p.publishings <- pub:
	case <-p.done:
		return p.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-pub.done:
		return err
	case <-p.done:
		select {
		case err := <-pub.done:
			return err
		default:
			return p.closedErr()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the publisher, waiting for outstanding confirms up to ShutdownTimeout,
// and closes its channel
func (p *Publisher) Shutdown() {
	if !atomic.CompareAndSwapInt32(&p.started, 1, 0) {
		return
	}
	close(p.quit)
	<-p.done
}

// Err returns a channel receiving an unrecoverable publisher error
func (p *Publisher) Err() <-chan error {
	return p.shouldQuit
}

// run loops over publishings and their confirmations until quit is closed or
// unrecoverable connection error occurs
func (p *Publisher) run() {
	defer close(p.done)
	p.debugf("running publisher")
	for {
		select {
		case pub := <-p.publishings:
			p.publish(pub)
		case c, ok := <-p.confirms:
			if !ok {
				p.confirms = nil
				continue
			}
			p.confirm(c)
		case amqpErr, ok := <-p.err:
			var err error = errChannelClosed
			if ok && amqpErr != nil {
				err = amqpErr
			}
			if err := p.handleProtocolError(err); err != nil {
				p.fatal = err
				p.failQueued(err)
				p.shouldQuit <- err
				return
			}
		case <-p.quit:
			p.debugf("stopping publisher")
			p.waitForOutstandingPublishings()
			p.failQueued(ErrClosed)
			ignoreError(p.ch.Close())
			return
		}
	}
}

func (p *Publisher) publish(pub *publishing) {
	err := p.ch.Publish(pub.exchange, pub.key, false, false, pub.msg)
	if err != nil {
		pub.done <- errors.Wrapf(err, "cant publish to %q with key %q", pub.exchange, pub.key)
		return
	}
	p.tag++
	p.outstanding[p.tag] = pub
}

func (p *Publisher) confirm(c amqp.Confirmation) {
	pub, ok := p.outstanding[c.DeliveryTag]
	if !ok {
		return
	}
	delete(p.outstanding, c.DeliveryTag)
	if !c.Ack {
		pub.done <- fmt.Errorf("publishing %d nacked by broker", c.DeliveryTag)
		return
	}
	pub.done <- nil
}

func (p *Publisher) handleProtocolError(amqpErr error) (err error) {
	p.debugf("publisher error: %s", amqpErr)
	p.nackOutstandingPublishings(amqpErr)
	err = p.createChannel()
	if err != nil {
		p.debugf("cant recreate publisher channel: %s", err)
		return
	}
	return
}

// createChannel opens and configures for publishing AMQP channel
func (p *Publisher) createChannel() (err error) {
	p.ch, err = p.Connection.Open()
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			ignoreError(p.ch.Close())
		}
	}()

	if _, err = p.Topology.Declare(p.ch); err != nil {
		return
	}

	// put channel in confirm mode
	err = p.ch.Confirm(false)
	if err != nil {
		return
	}

	// subscribe to error notifications
	p.err = make(chan *amqp.Error, 1)
	p.ch.NotifyClose(p.err)

	// subscribe to publishing confirmations
	p.confirms = make(chan amqp.Confirmation, p.MaxPublishingsInFlight)
	p.ch.NotifyPublish(p.confirms)

	p.outstanding = make(map[uint64]*publishing, p.MaxPublishingsInFlight)
	p.tag = 0
	return
}

func (p *Publisher) nackOutstandingPublishings(err error) {
	for tag, pub := range p.outstanding {
		pub.done <- err
		delete(p.outstanding, tag)
	}
}

func (p *Publisher) waitForOutstandingPublishings() {
	timeout := time.NewTimer(p.ShutdownTimeout)
	defer timeout.Stop()
	for len(p.outstanding) > 0 {
		select {
		case c, ok := <-p.confirms:
			if !ok {
				p.nackOutstandingPublishings(errChannelClosed)
				return
			}
			p.confirm(c)
		case <-timeout.C:
			p.nackOutstandingPublishings(ErrClosed)
			return
		}
	}
}

// failQueued fails publishings that were queued but never sent to the broker
func (p *Publisher) failQueued(err error) {
	for {
		select {
		case pub := <-p.publishings:
			pub.done <- err
		default:
			return
		}
	}
}

func (p *Publisher) closedErr() error {
	if p.fatal != nil {
		return p.fatal
	}
	return ErrClosed
}

func (p *Publisher) setDefaults() {
	if p.MaxPublishingsInFlight == 0 {
		p.MaxPublishingsInFlight = defaultMaxPublishingsInFlight
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (p *Publisher) debugf(f string, a ...interface{}) {
	if p.Logger != nil {
		p.Logger.Debugf(f, a...)
	}
}

func ignoreError(err error) {
	_ = err
}
