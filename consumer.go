package rabbit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"

	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/channel"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/resequencer"
)

// Consumer consumes messages from a queue over a single AMQP channel
//
// Exchanges and Queue are declared each time the channel is (re)created, so a
// server-named queue gets a new name after a channel error. Handler is called
// from the consumer loop, one message at a time.
type Consumer struct {
	// RabbitMQ connection
	Connection ConnectionOpenCloser

	// Exchanges to declare before the queue is bound to them
	Exchanges []Exchange

	// Queue to declare and consume from
	// Purge is applied when the consumer starts, not when its channel is recreated
	Queue Queue

	// Consumer tag, generated by the broker if empty
	Name string

	// How many messages could be delivered but not yet acknowledged
	// Zero means no limit, which is allowed only with AutoAck.
	// Default is 100 for manual acknowledgement
	Prefetch int

	// AutoAck makes the broker consider messages acknowledged once delivered
	AutoAck bool

	// How many acks should be batched for sending to the broker
	// Default and maximum is Prefetch
	AcksBatchSize int

	// Maximum amount of time between message being acked by handler and ack being sent to the broker
	// Default is 1s
	AcksMaxDelay time.Duration

	Handler Handler

	Logger Logger

	started    int32
	quit       chan struct{}
	done       chan struct{}
	shouldQuit chan error

	queueM    sync.RWMutex
	queueName string
	purged    bool

	chM sync.RWMutex
	ch  channel.Channel

	err  chan *amqp.Error
	msgs <-chan amqp.Delivery

	acknowledgements *resequencer.Resequencer
	lastacked        uint64
	lastsequenced    uint64
}

const (
	defaultPrefetch     = 100
	defaultAcksMaxDelay = 1 * time.Second
)

var errNoHandler = errors.New("no message handler")

// Start opens consumer channel, declares topology and starts consuming
//
// Start returns immediately after the broker accepted the consumer. Use Shutdown to stop it.
func (c *Consumer) Start() error {
	if atomic.LoadInt32(&c.started) > 0 {
		panic("trying to start already started consumer")
	}
	if c.Handler == nil {
		return errNoHandler
	}

	c.setDefaults()

	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	c.shouldQuit = make(chan error, 1)
	c.purged = false

	if err := c.createChannel(); err != nil {
		err = errors.Wrap(err, "cant create consumer channel")
		c.debugf(err.Error())
		return err
	}

	atomic.StoreInt32(&c.started, 1)
	go c.run()

	return nil
}

// Run starts the consumer and blocks until ctx is done or unrecoverable error occurs
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	defer c.Shutdown()

	select {
	case <-ctx.Done():
		return nil
	case err := <-c.shouldQuit:
		return err
	}
}

// Shutdown stops consuming, sends pending acknowledgements and closes the channel
//
// Unacknowledged messages are requeued by the broker.
func (c *Consumer) Shutdown() {
	if !atomic.CompareAndSwapInt32(&c.started, 1, 0) {
		return
	}
	close(c.quit)
	<-c.done
}

// Err returns a channel receiving an unrecoverable consumer error
func (c *Consumer) Err() <-chan error {
	return c.shouldQuit
}

// QueueName returns the name of the consumed queue as declared by the broker
func (c *Consumer) QueueName() string {
	c.queueM.RLock()
	defer c.queueM.RUnlock()
	return c.queueName
}

// run loops over received messages until quit is closed or unrecoverable
// protocol error occurs
func (c *Consumer) run() {
	defer close(c.done)
	c.debugf("running consumer on %s", c.QueueName())
	ackTicker := time.NewTicker(c.AcksMaxDelay)
	defer ackTicker.Stop()
	for {
		var sequenced <-chan uint64
		if c.acknowledgements != nil {
			sequenced = c.acknowledgements.Out
		}
		select {
		case msg, ok := <-c.msgs:
			if !ok {
				if err := c.handleProtocolError(errChannelClosed); err != nil {
					c.shouldQuit <- err
					return
				}
				continue
			}
			var acker acknowledger
			if !c.AutoAck {
				acker = &deliveryAcker{c, c.currentChannel()}
			}
			c.Handler(messageFromDelivery(&msg, acker))
		case tag := <-sequenced:
			atomic.StoreUint64(&c.lastsequenced, tag)
			if tag-atomic.LoadUint64(&c.lastacked) >= uint64(c.AcksBatchSize) {
				c.ackSequenced()
				ackTicker.Reset(c.AcksMaxDelay)
			}
		case <-ackTicker.C:
			c.flushAcks()
		case amqpErr, ok := <-c.err:
			var err error = errChannelClosed
			if ok && amqpErr != nil {
				err = amqpErr
			}
			if err := c.handleProtocolError(err); err != nil {
				c.shouldQuit <- err
				return
			}
		case <-c.quit:
			c.debugf("stopping consumer on %s", c.QueueName())
			c.flushAcks()
			ignoreError(c.currentChannel().Close())
			return
		}
	}
}

// deliveryAcker acknowledges deliveries on the channel they were received from
type deliveryAcker struct {
	c  *Consumer
	ch channel.Channel
}

func (a *deliveryAcker) Ack(tag uint64) {
	if a.ch != a.c.currentChannel() {
		// channel was recreated, broker will redeliver
		return
	}
	a.c.ack(tag)
}

func (a *deliveryAcker) Nack(tag uint64, requeue bool) {
	if a.ch != a.c.currentChannel() {
		return
	}
	a.c.nack(tag, requeue)
}

func (c *Consumer) ack(tag uint64) {
	if tag < atomic.LoadUint64(&c.lastacked) {
		ignoreError(c.currentChannel().Ack(tag, false))
		return
	}
	c.acknowledgements.Sequence(tag)
}

func (c *Consumer) nack(tag uint64, requeue bool) {
	ch := c.currentChannel()
	if tag < atomic.LoadUint64(&c.lastsequenced) {
		c.ackSequenced()
		c.acknowledgements.Reset(tag, func(n uint64) {
			ignoreError(ch.Ack(n, false))
		})
		atomic.StoreUint64(&c.lastacked, tag)
	} else {
		c.flushAcks()
		c.acknowledgements.StartAt(tag)
		atomic.StoreUint64(&c.lastacked, tag)
		atomic.StoreUint64(&c.lastsequenced, tag)
	}
	ignoreError(ch.Nack(tag, false, requeue))
}

func (c *Consumer) flushAcks() {
	if c.acknowledgements == nil {
		return
	}
	c.drainSequenced()
	c.ackSequenced()
	c.ackUnsequenced()
}

// drainSequenced picks up tags already ordered by the resequencer but not yet seen by the loop
func (c *Consumer) drainSequenced() {
	for {
		select {
		case tag := <-c.acknowledgements.Out:
			atomic.StoreUint64(&c.lastsequenced, tag)
		default:
			return
		}
	}
}

func (c *Consumer) ackSequenced() {
	lastsequenced := atomic.LoadUint64(&c.lastsequenced)
	lastacked := atomic.LoadUint64(&c.lastacked)
	if lastsequenced > lastacked {
		ignoreError(c.currentChannel().Ack(lastsequenced, true))
		atomic.StoreUint64(&c.lastacked, lastsequenced)
	}
}

func (c *Consumer) ackUnsequenced() {
	ch := c.currentChannel()
	c.acknowledgements.DumpUnsequenced(func(n uint64) {
		ignoreError(ch.Ack(n, false))
		if n > atomic.LoadUint64(&c.lastacked) {
			atomic.StoreUint64(&c.lastacked, n)
		}
	})
}

// createChannel opens and configures for consuming AMQP channel
func (c *Consumer) createChannel() (err error) {
	ch, err := c.Connection.Open()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			ignoreError(ch.Close())
		}
	}()

	queue := c.Queue
	// recreated channels must not drop requeued messages
	queue.Purge = queue.Purge && !c.purged
	topology := Topology{Exchanges: c.Exchanges, Queues: []Queue{queue}}
	queues, err := topology.Declare(ch)
	if err != nil {
		return err
	}

	err = ch.Qos(c.Prefetch, 0, false)
	if err != nil {
		return errors.Wrap(err, "cant set prefetch")
	}

	c.err = make(chan *amqp.Error, 1)
	ch.NotifyClose(c.err)

	if !c.AutoAck {
		c.acknowledgements = resequencer.New(c.Prefetch)
	}
	atomic.StoreUint64(&c.lastacked, 0)
	atomic.StoreUint64(&c.lastsequenced, 0)

	c.msgs, err = ch.Consume(queues[0], c.Name, c.AutoAck, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "cant consume from %q", queues[0])
	}

	c.chM.Lock()
	c.ch = ch
	c.chM.Unlock()
	c.queueM.Lock()
	c.queueName = queues[0]
	c.queueM.Unlock()
	c.purged = true
	return nil
}

func (c *Consumer) handleProtocolError(amqpErr error) (err error) {
	c.debugf("consumer on %s error: %s", c.QueueName(), amqpErr)
	if old := c.currentChannel(); old != nil {
		ignoreError(old.Close())
	}
	err = c.createChannel()
	if err != nil {
		c.debugf("cant recreate consumer channel: %s", err)
		return
	}
	return
}

func (c *Consumer) currentChannel() channel.Channel {
	c.chM.RLock()
	defer c.chM.RUnlock()
	return c.ch
}

func (c *Consumer) setDefaults() {
	if c.Prefetch == 0 && !c.AutoAck {
		c.Prefetch = defaultPrefetch
	}
	if c.AcksBatchSize == 0 || c.AcksBatchSize > c.Prefetch {
		c.AcksBatchSize = c.Prefetch
	}
	if c.AcksMaxDelay == 0 {
		c.AcksMaxDelay = defaultAcksMaxDelay
	}
}

func (c *Consumer) debugf(f string, a ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debugf(f, a...)
	}
}
