package rpc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
)

// Client calls a remote procedure served by Server
//
// Client owns one exclusive server-named reply queue reused by all calls.
// Call is safe for concurrent use.
type Client struct {
	// RabbitMQ connection
	Connection rabbit.ConnectionOpenCloser

	// Queue requests are published to
	// Default is rpc_queue
	RequestQueue string

	// How long Call waits for a reply unless its context is done earlier
	// Default is 30s
	CallTimeout time.Duration

	// Sent as AppID of every request
	AppID string

	Logger rabbit.Logger

	started int32
	closed  chan struct{}

	publisher *rabbit.Publisher
	replies   *rabbit.Consumer
	pending   *pendingCalls
}

const defaultCallTimeout = 30 * time.Second

// Start declares request and reply queues and starts receiving replies
func (c *Client) Start() error {
	if atomic.LoadInt32(&c.started) > 0 {
		panic("trying to start already started rpc client")
	}
	c.setDefaults()

	c.closed = make(chan struct{})
	c.pending = newPendingCalls()

	c.publisher = &rabbit.Publisher{
		Connection: c.Connection,
		Topology:   rabbit.Topology{Queues: []rabbit.Queue{RequestQueue(c.RequestQueue)}},
		Logger:     c.Logger,
	}
	if err := c.publisher.Start(); err != nil {
		return errors.Wrap(err, "cant start request publisher")
	}

	c.replies = &rabbit.Consumer{
		Connection: c.Connection,
		Queue:      rabbit.ServerNamedQueue(),
		AutoAck:    true,
		Handler:    c.handleReply,
		Logger:     c.Logger,
	}
	if err := c.replies.Start(); err != nil {
		c.publisher.Shutdown()
		return errors.Wrap(err, "cant start reply consumer")
	}

	atomic.StoreInt32(&c.started, 1)
	c.debugf("rpc client awaiting replies on %s", c.replies.QueueName())
	return nil
}

// Call sends payload to the request queue and blocks until the matching reply
// arrives, ctx is done or CallTimeout elapses
//
// A failure reported by the server is returned as *RemoteError.
func (c *Client) Call(ctx context.Context, payload []byte) ([]byte, error) {
	if atomic.LoadInt32(&c.started) == 0 {
		return nil, rabbit.ErrNotStarted
	}

	callCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()

	id := uuid.New().String()
	slot := c.pending.add(id)
	defer c.pending.remove(id)

	req := &rabbit.Message{
		Exchange:      rabbit.DefaultExchange,
		RoutingKey:    c.RequestQueue,
		CorrelationID: id,
		ReplyTo:       c.replies.QueueName(),
		Type:          TypeRequest,
		AppID:         c.AppID,
		ContentType:   "text/plain",
		Body:          payload,
	}
	c.debugf("rpc call %s: %s", id, payload)
	if err := c.publisher.Publish(callCtx, req); err != nil {
		if callCtx.Err() != nil {
			return nil, c.doneErr(ctx)
		}
		return nil, errors.Wrap(err, "cant publish rpc request")
	}

	select {
	case r := <-slot:
		return r.body, r.err
	case <-callCtx.Done():
		return nil, c.doneErr(ctx)
	case <-c.closed:
		return nil, ErrClientClosed
	}
}

// Shutdown stops receiving replies and fails outstanding calls with ErrClientClosed
func (c *Client) Shutdown() {
	if !atomic.CompareAndSwapInt32(&c.started, 1, 0) {
		return
	}
	close(c.closed)
	c.replies.Shutdown()
	c.publisher.Shutdown()
	c.pending.failAll(ErrClientClosed)
}

// handleReply completes the call waiting for the reply, dropping replies
// nobody waits for
func (c *Client) handleReply(m *rabbit.Message) {
	r := reply{body: m.Body}
	if m.Type == TypeError {
		r = reply{err: &RemoteError{Reason: string(m.Body)}}
	}
	if !c.pending.resolve(m.CorrelationID, r) {
		c.debugf("dropping reply with unknown correlation id %q", m.CorrelationID)
	}
}

func (c *Client) doneErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrCallTimeout
}

func (c *Client) setDefaults() {
	if c.RequestQueue == "" {
		c.RequestQueue = DefaultQueue
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defaultCallTimeout
	}
}

func (c *Client) debugf(f string, a ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debugf(f, a...)
	}
}
