package rpc

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/fib"
)

// HandlerFunc computes a reply payload for a request payload
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Server answers requests from a request queue
//
// Every request is handled, replied to and only then acknowledged. A request
// whose reply could not be published is requeued.
type Server struct {
	// RabbitMQ connection
	Connection rabbit.ConnectionOpenCloser

	// Queue requests are consumed from
	// Default is rpc_queue
	Queue string

	// How many requests could be delivered but not yet acknowledged
	// Default is 1
	Prefetch int

	// PurgeOnStart drops requests left in the queue before the server starts
	PurgeOnStart bool

	// Computes replies
	// Default is FibonacciHandler
	Handler HandlerFunc

	// Sent as AppID of every reply
	AppID string

	Logger rabbit.Logger
}

// Run serves requests until ctx is done or an unrecoverable channel error occurs
func (s *Server) Run(ctx context.Context) error {
	s.setDefaults()

	replies := &rabbit.Publisher{
		Connection: s.Connection,
		Logger:     s.Logger,
	}
	if err := replies.Start(); err != nil {
		return errors.Wrap(err, "cant start reply publisher")
	}
	defer replies.Shutdown()

	queue := RequestQueue(s.Queue)
	queue.Purge = s.PurgeOnStart
	requests := &rabbit.Consumer{
		Connection:    s.Connection,
		Queue:         queue,
		Prefetch:      s.Prefetch,
		AcksBatchSize: 1,
		Handler: func(m *rabbit.Message) {
			s.serve(ctx, replies, m)
		},
		Logger: s.Logger,
	}
	if err := requests.Start(); err != nil {
		return errors.Wrap(err, "cant start request consumer")
	}
	defer requests.Shutdown()

	s.infof("awaiting rpc requests on %s", s.Queue)
	select {
	case <-ctx.Done():
		return nil
	case err := <-requests.Err():
		return err
	case err := <-replies.Err():
		return err
	}
}

func (s *Server) serve(ctx context.Context, replies *rabbit.Publisher, req *rabbit.Message) {
	if req.ReplyTo == "" {
		s.infof("dropping rpc request %q without reply queue", req.CorrelationID)
		req.Ack()
		return
	}

	resp := &rabbit.Message{
		Exchange:      rabbit.DefaultExchange,
		RoutingKey:    req.ReplyTo,
		CorrelationID: req.CorrelationID,
		Type:          TypeResult,
		AppID:         s.AppID,
		ContentType:   "text/plain",
	}
	result, err := s.Handler(ctx, req.Body)
	if err != nil {
		s.debugf("rpc request %q failed: %s", req.CorrelationID, err)
		resp.Type = TypeError
		resp.Body = []byte(err.Error())
		if len(resp.Body) == 0 {
			resp.Body = []byte("request failed")
		}
	} else {
		s.debugf("rpc request %q: %s -> %s", req.CorrelationID, req.Body, result)
		resp.Body = result
	}

	if err := replies.Publish(ctx, resp); err != nil {
		s.infof("cant reply to rpc request %q: %s", req.CorrelationID, err)
		req.Nack(true)
		return
	}
	req.Ack()
}

// FibonacciHandler parses payload as a decimal integer n and replies with fib(n)
func FibonacciHandler(_ context.Context, payload []byte) ([]byte, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, errors.Errorf("not an integer: %q", payload)
	}
	res, err := fib.Recursive(n)
	if err != nil {
		return nil, err
	}
	return []byte(strconv.Itoa(res)), nil
}

func (s *Server) setDefaults() {
	if s.Queue == "" {
		s.Queue = DefaultQueue
	}
	if s.Prefetch == 0 {
		s.Prefetch = 1
	}
	if s.Handler == nil {
		s.Handler = FibonacciHandler
	}
}

func (s *Server) debugf(f string, a ...interface{}) {
	if s.Logger != nil {
		s.Logger.Debugf(f, a...)
	}
}

func (s *Server) infof(f string, a ...interface{}) {
	if s.Logger != nil {
		s.Logger.Infof(f, a...)
	}
}
