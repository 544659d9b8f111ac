//go:build integration
// +build integration

package test_test

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/tutorial"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/rpc"
)

var log = &logrus.Logger{
	Out:       os.Stderr,
	Level:     logrus.InfoLevel,
	Formatter: &logrus.TextFormatter{},
	Hooks:     make(logrus.LevelHooks),
}

func connection() *rabbit.Connection {
	return &rabbit.Connection{
		Protocol:          "amqp",
		Hostnames:         []string{"127.0.0.1:5672"},
		Vhost:             "/",
		Username:          "guest",
		Password:          "guest",
		DialTimeout:       2 * time.Second,
		ConnectionTimeout: 30 * time.Second,
		ConnectionBackoff: 2 * time.Second,
		Logger:            log,
	}
}

func TestPublishConsume(t *testing.T) {
	conn := connection()
	defer conn.Close()
	s := tutorial.Setup{Connection: conn, Logger: log}

	var payload = []byte("TEST")
	const count = 100
	var recv int32

	consumer := s.WorkConsumer(false, func(m *rabbit.Message) {
		if !bytes.Equal(payload, m.Body) {
			t.Fail()
		}
		atomic.AddInt32(&recv, 1)
		m.Ack()
	})
	if err := consumer.Start(); err != nil {
		t.Fatal(err)
	}
	defer consumer.Shutdown()

	publisher := s.WorkPublisher(false)
	if err := publisher.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < count; i++ {
		m := tutorial.WorkMessage(false, string(payload))
		m.ID = strconv.Itoa(i + 1)
		if err := publisher.Publish(context.Background(), m); err != nil {
			t.Fatal(err)
		}
	}
	publisher.Shutdown()

	deadline := time.Now().Add(10 * time.Second)
	for atomic.LoadInt32(&recv) < count && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&recv); got != count {
		t.Fatalf("received %d of %d", got, count)
	}
}

func TestRPC(t *testing.T) {
	conn := connection()
	defer conn.Close()
	s := tutorial.Setup{Connection: conn, Logger: log}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	server := s.RPCServer()
	server.PurgeOnStart = false
	go func() {
		done <- server.Run(ctx)
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Error(err)
		}
	}()

	client := s.RPCClient()
	client.CallTimeout = 10 * time.Second
	if err := client.Start(); err != nil {
		t.Fatal(err)
	}
	defer client.Shutdown()

	for i, want := range []string{"0", "1", "1", "2", "3", "5"} {
		res, err := client.Call(ctx, []byte(strconv.Itoa(i)))
		if err != nil {
			t.Fatal(err)
		}
		if string(res) != want {
			t.Errorf("fib(%d) = %s, want %s", i, res, want)
		}
	}

	_, err := client.Call(ctx, []byte("abc"))
	if _, ok := err.(*rpc.RemoteError); !ok {
		t.Errorf("expected remote error, got %v", err)
	}
}

func BenchmarkPublish(b *testing.B) {
	conn := connection()
	defer conn.Close()
	publisher := &rabbit.Publisher{
		Connection: conn,
		Topology:   rabbit.Topology{Exchanges: []rabbit.Exchange{{Name: tutorial.LogsExchange, Kind: rabbit.ExchangeFanout}}},
	}
	if err := publisher.Start(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()

	var id uint64
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mid := atomic.AddUint64(&id, 1)
			m := rabbit.TextMessage(tutorial.LogsExchange, "", tutorial.LogMessage(time.Now(), int(mid)))
			if err := publisher.Publish(context.Background(), m); err != nil {
				b.Fatal(err)
			}
		}
	})

	publisher.Shutdown()
}

func BenchmarkConsume(b *testing.B) {
	conn := connection()
	defer conn.Close()
	s := tutorial.Setup{Connection: conn}

	counter := int64(b.N)
	consumer := s.WorkConsumer(false, func(m *rabbit.Message) {
		atomic.AddInt64(&counter, -1)
		m.Ack()
	})
	consumer.Prefetch = 100
	if err := consumer.Start(); err != nil {
		b.Fatal(err)
	}
	defer consumer.Shutdown()

	publisher := s.WorkPublisher(false)
	if err := publisher.Start(); err != nil {
		b.Fatal(err)
	}
	defer publisher.Shutdown()

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := publisher.Publish(context.Background(), tutorial.WorkMessage(false, "task")); err != nil {
				b.Fatal(err)
			}
		}
	})

	for {
		if c := atomic.LoadInt64(&counter); c <= 0 {
			break
		}
		runtime.Gosched()
	}
}
