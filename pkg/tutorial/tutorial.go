// Package tutorial wires the library into the classic broker messaging patterns:
// a simple queue, work queues, publish/subscribe, routing, topics and RPC.
package tutorial

import (
	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/rpc"
)

// Queue and exchange names used by the patterns
const (
	HelloQueue      = "hello"
	TaskQueue       = "task_queue"
	RoundRobinQueue = "task_queue_roundrobin"
	LogsExchange    = "logs"
	RoutingExchange = "logs_routing"
	TopicExchange   = "logs_topic"
	RPCQueue        = rpc.DefaultQueue
)

// Setup creates publishers, consumers and RPC peers of every pattern on a connection
type Setup struct {
	Connection rabbit.ConnectionOpenCloser
	Logger     rabbit.Logger
}

// HelloPublisher publishes to the hello queue through the default exchange
func (s Setup) HelloPublisher() *rabbit.Publisher {
	return s.publisher(rabbit.Topology{Queues: []rabbit.Queue{{Name: HelloQueue}}})
}

// HelloConsumer receives from the hello queue
func (s Setup) HelloConsumer(h rabbit.Handler) *rabbit.Consumer {
	return s.consumer(nil, rabbit.Queue{Name: HelloQueue}, 0, true, h)
}

// WorkPublisher publishes tasks to the fair dispatch queue, or to the
// round-robin one if roundRobin is set
func (s Setup) WorkPublisher(roundRobin bool) *rabbit.Publisher {
	return s.publisher(rabbit.Topology{Queues: []rabbit.Queue{workQueue(roundRobin)}})
}

// WorkConsumer receives tasks
//
// Fair dispatch takes one task at a time and acknowledges it manually, so a slow
// worker is never handed a second task before it is done with the first.
// Round-robin dispatch takes as many tasks as the broker pushes and acknowledges
// them on delivery. The handler must Ack or Nack fair dispatch tasks.
func (s Setup) WorkConsumer(roundRobin bool, h rabbit.Handler) *rabbit.Consumer {
	if roundRobin {
		return s.consumer(nil, workQueue(true), 0, true, h)
	}
	return s.consumer(nil, workQueue(false), 1, false, h)
}

// WorkMessage builds a task message, persistent when dispatched fairly
func WorkMessage(roundRobin bool, body string) *rabbit.Message {
	m := rabbit.TextMessage(rabbit.DefaultExchange, workQueue(roundRobin).Name, body)
	m.Persistent = !roundRobin
	return m
}

func workQueue(roundRobin bool) rabbit.Queue {
	if roundRobin {
		return rabbit.Queue{Name: RoundRobinQueue}
	}
	return rabbit.Queue{Name: TaskQueue, Durable: true}
}

// LogsPublisher broadcasts to the logs fanout exchange
func (s Setup) LogsPublisher() *rabbit.Publisher {
	return s.publisher(rabbit.Topology{Exchanges: []rabbit.Exchange{logsExchange()}})
}

// LogsConsumer receives every broadcast on a private queue
func (s Setup) LogsConsumer(h rabbit.Handler) *rabbit.Consumer {
	q := rabbit.ServerNamedQueue(rabbit.Binding{Exchange: LogsExchange})
	return s.consumer([]rabbit.Exchange{logsExchange()}, q, 0, true, h)
}

func logsExchange() rabbit.Exchange {
	return rabbit.Exchange{Name: LogsExchange, Kind: rabbit.ExchangeFanout}
}

// RoutingPublisher publishes to the direct routing exchange
func (s Setup) RoutingPublisher() *rabbit.Publisher {
	return s.publisher(rabbit.Topology{Exchanges: []rabbit.Exchange{routingExchange()}})
}

// RoutingConsumer receives messages published with any of the given levels,
// every level if none is given
func (s Setup) RoutingConsumer(levels []string, h rabbit.Handler) *rabbit.Consumer {
	if len(levels) == 0 {
		levels = Levels
	}
	q := rabbit.ServerNamedQueue(bindings(RoutingExchange, levels)...)
	return s.consumer([]rabbit.Exchange{routingExchange()}, q, 0, true, h)
}

func routingExchange() rabbit.Exchange {
	return rabbit.Exchange{Name: RoutingExchange, Kind: rabbit.ExchangeDirect}
}

// TopicPublisher publishes to the topic exchange
func (s Setup) TopicPublisher() *rabbit.Publisher {
	return s.publisher(rabbit.Topology{Exchanges: []rabbit.Exchange{topicExchange()}})
}

// TopicConsumer receives messages whose routing key matches any of the patterns,
// '*' matching exactly one word and '#' zero or more
func (s Setup) TopicConsumer(patterns []string, h rabbit.Handler) *rabbit.Consumer {
	if len(patterns) == 0 {
		patterns = []string{"#"}
	}
	q := rabbit.ServerNamedQueue(bindings(TopicExchange, patterns)...)
	return s.consumer([]rabbit.Exchange{topicExchange()}, q, 0, true, h)
}

func topicExchange() rabbit.Exchange {
	return rabbit.Exchange{Name: TopicExchange, Kind: rabbit.ExchangeTopic}
}

// RPCClient calls the Fibonacci server
func (s Setup) RPCClient() *rpc.Client {
	return &rpc.Client{
		Connection:   s.Connection,
		RequestQueue: RPCQueue,
		Logger:       s.Logger,
	}
}

// RPCServer serves Fibonacci numbers, dropping requests left from previous runs
func (s Setup) RPCServer() *rpc.Server {
	return &rpc.Server{
		Connection:   s.Connection,
		Queue:        RPCQueue,
		PurgeOnStart: true,
		Handler:      rpc.FibonacciHandler,
		Logger:       s.Logger,
	}
}

func bindings(exchange string, keys []string) []rabbit.Binding {
	res := make([]rabbit.Binding, 0, len(keys))
	for _, k := range keys {
		res = append(res, rabbit.Binding{Exchange: exchange, Key: k})
	}
	return res
}

func (s Setup) publisher(t rabbit.Topology) *rabbit.Publisher {
	return &rabbit.Publisher{
		Connection: s.Connection,
		Topology:   t,
		Logger:     s.Logger,
	}
}

func (s Setup) consumer(exchanges []rabbit.Exchange, q rabbit.Queue, prefetch int, autoAck bool, h rabbit.Handler) *rabbit.Consumer {
	return &rabbit.Consumer{
		Connection: s.Connection,
		Exchanges:  exchanges,
		Queue:      q,
		Prefetch:   prefetch,
		AutoAck:    autoAck,
		Handler:    h,
		Logger:     s.Logger,
	}
}
