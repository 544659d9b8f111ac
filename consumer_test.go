package rabbit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/w1ck3dg0ph3r/rabbit-patterns/test/mocks"
)

func expectConsumerChannel(ch *mocks.Channel, deliveries <-chan amqp.Delivery, times int) {
	ch.On("QueueDeclare", "hello", false, false, false, false, amqp.Table(nil)).
		Return(amqp.Queue{Name: "hello"}, nil).Times(times)
	ch.On("Qos", 5, 0, false).Return(nil).Times(times)
	ch.On("NotifyClose", mock.Anything).Return(nil).Times(times)
	ch.On("Consume", "hello", "", false, false, false, false, amqp.Table(nil)).
		Return(deliveries, nil).Times(times)
}

func TestConsumer_SetupsChannelInConsumeMode(t *testing.T) {
	ch := &mocks.Channel{}
	c := Consumer{
		Connection: &MockConn{ch},
		Queue:      Queue{Name: "hello"},
		Prefetch:   5,
		Handler:    func(m *Message) { m.Ack() },
	}

	expectConsumerChannel(ch, nil, 1)
	ch.On("Close").Return(nil).Once()

	require.NoError(t, c.Start())
	assert.Equal(t, "hello", c.QueueName())
	c.Shutdown()
	ch.AssertExpectations(t)
}

func TestConsumer_RequiresHandler(t *testing.T) {
	c := Consumer{Queue: Queue{Name: "hello"}}
	assert.Equal(t, errNoHandler, c.Start())
}

func TestConsumer_RecreatesChannelOnError(t *testing.T) {
	ch := &mocks.Channel{}
	c := Consumer{
		Connection: &MockConn{ch},
		Queue:      Queue{Name: "hello"},
		Prefetch:   5,
		Handler:    func(m *Message) { m.Ack() },
	}

	var errM sync.Mutex
	var errch chan *amqp.Error
	chopened := make(chan bool, 2)

	ch.On("QueueDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything).Return(amqp.Queue{Name: "hello"}, nil).Twice()
	ch.On("Qos", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
	ch.On("NotifyClose", mock.Anything).Return(func(e chan *amqp.Error) chan *amqp.Error {
		errM.Lock()
		errch = e
		errM.Unlock()
		chopened <- true
		return e
	}).Twice()
	ch.On("Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything).Return(nil, nil).Twice()
	ch.On("Close").Return(nil).Twice()

	require.NoError(t, c.Start())

	// when channel is opened, imitate protocol error
	<-chopened
	errM.Lock()
	errch <- &amqp.Error{Code: amqp.ChannelError}
	errM.Unlock()
	<-chopened

	c.Shutdown()
	ch.AssertExpectations(t)
}

func TestConsumer_BatchesAcks(t *testing.T) {
	ch := &mocks.Channel{}
	c := Consumer{
		Connection:    &MockConn{ch},
		Queue:         Queue{Name: "hello"},
		Prefetch:      5,
		AcksBatchSize: 3,
		AcksMaxDelay:  100 * time.Minute,
	}

	deliveries := make(chan amqp.Delivery, 5)
	var handled int32
	c.Handler = func(m *Message) {
		m.Ack()
		atomic.AddInt32(&handled, 1)
	}

	batchAcked := make(chan struct{})
	expectConsumerChannel(ch, deliveries, 1)
	ch.On("Ack", uint64(3), true).Return(nil).Once().Run(func(mock.Arguments) {
		close(batchAcked)
	})
	ch.On("Ack", uint64(5), true).Return(nil).Once()
	ch.On("Close").Return(nil).Once()

	require.NoError(t, c.Start())

	for i := uint64(1); i <= 5; i++ {
		deliveries <- amqp.Delivery{DeliveryTag: i}
	}
	<-batchAcked
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 5 },
		time.Second, time.Millisecond)

	c.Shutdown()
	ch.AssertExpectations(t)
}

func TestConsumer_NacksWithRequeue(t *testing.T) {
	ch := &mocks.Channel{}
	c := Consumer{
		Connection:   &MockConn{ch},
		Queue:        Queue{Name: "hello"},
		Prefetch:     5,
		AcksMaxDelay: 100 * time.Minute,
	}

	deliveries := make(chan amqp.Delivery, 2)
	done := make(chan struct{}, 2)
	c.Handler = func(m *Message) {
		if string(m.Body) == "bad" {
			m.Nack(true)
		} else {
			m.Ack()
		}
		done <- struct{}{}
	}

	expectConsumerChannel(ch, deliveries, 1)
	ch.On("Ack", uint64(1), true).Return(nil).Once()
	ch.On("Nack", uint64(2), false, true).Return(nil).Once()
	ch.On("Close").Return(nil).Once()

	require.NoError(t, c.Start())
	deliveries <- amqp.Delivery{DeliveryTag: 1, Body: []byte("good")}
	deliveries <- amqp.Delivery{DeliveryTag: 2, Body: []byte("bad")}
	<-done
	<-done

	c.Shutdown()
	ch.AssertExpectations(t)
}

func TestConsumer_AutoAckNeverAcks(t *testing.T) {
	broker := mocks.NewBroker()
	received := make(chan *Message, 3)
	c := Consumer{
		Connection: broker,
		Queue:      Queue{Name: "hello"},
		AutoAck:    true,
		Handler: func(m *Message) {
			m.Ack()
			received <- m
		},
	}
	require.NoError(t, c.Start())
	defer c.Shutdown()

	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, broker.Publish("", "hello", amqp.Publishing{Body: []byte(body)}))
	}
	for _, body := range []string{"a", "b", "c"} {
		m := <-received
		assert.Equal(t, body, string(m.Body))
	}
	assert.Equal(t, 0, broker.MaxUnacked())
}

func TestConsumer_ServerNamedQueueBoundToExchange(t *testing.T) {
	broker := mocks.NewBroker()
	received := make(chan string, 1)
	c := Consumer{
		Connection: broker,
		Exchanges:  []Exchange{{Name: "logs", Kind: ExchangeFanout}},
		Queue:      ServerNamedQueue(Binding{Exchange: "logs"}),
		AutoAck:    true,
		Handler:    func(m *Message) { received <- string(m.Body) },
	}
	require.NoError(t, c.Start())

	name := c.QueueName()
	assert.NotEmpty(t, name)
	assert.True(t, broker.HasQueue(name))

	require.NoError(t, broker.Publish("logs", "", amqp.Publishing{Body: []byte("broadcast")}))
	assert.Equal(t, "broadcast", <-received)

	c.Shutdown()
	assert.False(t, broker.HasQueue(name), "exclusive queue outlived its channel")
}

func TestConsumer_RecoversFromBrokerClosingChannel(t *testing.T) {
	broker := mocks.NewBroker()
	received := make(chan string, 2)
	c := Consumer{
		Connection: broker,
		Queue:      Queue{Name: "task_queue", Durable: true},
		Prefetch:   1,
		Handler: func(m *Message) {
			received <- string(m.Body)
			m.Ack()
		},
	}
	require.NoError(t, c.Start())
	defer c.Shutdown()

	require.NoError(t, broker.Publish("", "task_queue", amqp.Publishing{Body: []byte("first")}))
	assert.Equal(t, "first", <-received)
	assert.Eventually(t, func() bool { return broker.Acked("task_queue") == 1 }, time.Second, time.Millisecond)

	broker.Channels()[0].Fail(&amqp.Error{Code: amqp.InternalError, Reason: "boom"})

	assert.Eventually(t, func() bool { return len(broker.Channels()) == 2 }, time.Second, time.Millisecond)
	require.NoError(t, broker.Publish("", "task_queue", amqp.Publishing{Body: []byte("second")}))
	assert.Equal(t, "second", <-received)
}

func TestConsumer_PurgesOnlyOnStart(t *testing.T) {
	broker := mocks.NewBroker()
	received := make(chan string, 4)
	release := make(chan struct{})
	var once sync.Once
	c := Consumer{
		Connection: broker,
		Queue:      Queue{Name: "task_queue", Durable: true, Purge: true},
		Prefetch:   1,
		Handler: func(m *Message) {
			received <- string(m.Body)
			once.Do(func() { <-release })
			m.Ack()
		},
	}
	require.NoError(t, c.Start())
	defer c.Shutdown()

	require.NoError(t, broker.Publish("", "task_queue", amqp.Publishing{Body: []byte("first")}))
	assert.Equal(t, "first", <-received)
	require.NoError(t, broker.Publish("", "task_queue", amqp.Publishing{Body: []byte("queued")}))
	broker.Channels()[0].Fail(&amqp.Error{Code: amqp.InternalError, Reason: "boom"})
	close(release)

	assert.Equal(t, "first", <-received)
	assert.Equal(t, "queued", <-received)
	assert.True(t, c.Queue.Purge)
}

func TestConsumer_RunStopsOnContext(t *testing.T) {
	broker := mocks.NewBroker()
	c := Consumer{
		Connection: broker,
		Queue:      Queue{Name: "hello"},
		Handler:    func(m *Message) { m.Ack() },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- c.Run(ctx)
	}()
	cancel()
	assert.NoError(t, <-done)
}

func TestConsumer_RunReturnsOpenError(t *testing.T) {
	broker := mocks.NewBroker()
	broker.OpenErr = errConnectionTimeout
	c := Consumer{
		Connection: broker,
		Queue:      Queue{Name: "hello"},
		Handler:    func(m *Message) { m.Ack() },
	}
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection timeout")
}
