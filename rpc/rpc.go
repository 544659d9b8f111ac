// Package rpc implements request/reply over a broker: a Client publishes
// requests to a shared durable queue and matches replies arriving on its
// exclusive reply queue by correlation id, a Server consumes the request
// queue one request at a time and publishes tagged replies.
package rpc

import (
	"github.com/pkg/errors"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
)

// Message types carried in the AMQP type property
const (
	TypeRequest = "rpc.request"
	TypeResult  = "rpc.result"
	TypeError   = "rpc.error"
)

// DefaultQueue is the request queue used when none is configured
const DefaultQueue = "rpc_queue"

var (
	// ErrCallTimeout is returned by Call when no reply arrived within CallTimeout
	ErrCallTimeout = errors.New("rpc call timed out")

	// ErrClientClosed is returned for calls outstanding when the client is shut down
	ErrClientClosed = errors.New("rpc client is shut down")
)

// RemoteError is a failure reported by the server handling the request
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "rpc remote error: " + e.Reason
}

// RequestQueue returns the declaration of a durable request queue shared by clients and servers
func RequestQueue(name string) rabbit.Queue {
	return rabbit.Queue{Name: name, Durable: true}
}
