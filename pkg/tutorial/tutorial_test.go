package tutorial

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/test/mocks"
)

var now = time.Date(2019, 3, 7, 9, 5, 1, 0, time.UTC)

type inbox struct {
	m    sync.Mutex
	msgs []string
}

func (i *inbox) handle(m *rabbit.Message) {
	i.m.Lock()
	i.msgs = append(i.msgs, string(m.Body))
	i.m.Unlock()
	m.Ack()
}

func (i *inbox) received() []string {
	i.m.Lock()
	defer i.m.Unlock()
	return append([]string(nil), i.msgs...)
}

func (i *inbox) count() int {
	return len(i.received())
}

func start(t *testing.T, c *rabbit.Consumer) {
	t.Helper()
	require.NoError(t, c.Start())
	t.Cleanup(c.Shutdown)
}

func publishAll(t *testing.T, p *rabbit.Publisher, msgs ...*rabbit.Message) {
	t.Helper()
	require.NoError(t, p.Start())
	defer p.Shutdown()
	for _, m := range msgs {
		require.NoError(t, p.Publish(context.Background(), m))
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "2019-03-07 09:05:01", Timestamp(now))
	assert.Equal(t, "Hello World!2019-03-07 09:05:01", HelloMessage(now))
	assert.Equal(t, "Hello World!2019-03-07 09:05:01----7", TaskMessage(now, 7))
	assert.Equal(t, "2019-03-07 09:05:01---7", LogMessage(now, 7))
	assert.Equal(t, "warn---2019-03-07 09:05:01---7", LevelMessage("warn", now, 7))
	assert.Equal(t, "cn.li.info---2019-03-07 09:05:01---7", TopicMessage("cn.li.info", now, 7))
}

func TestRandomTopicKey(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		words := strings.Split(RandomTopicKey(r), ".")
		require.Len(t, words, 3)
		assert.Contains(t, Countries, words[0])
		assert.Contains(t, Persons, words[1])
		assert.Contains(t, Levels, words[2])
		assert.Contains(t, Levels, RandomLevel(r))
	}
}

func TestHello(t *testing.T) {
	broker := mocks.NewBroker()
	s := Setup{Connection: broker}
	var in inbox
	start(t, s.HelloConsumer(in.handle))

	publishAll(t, s.HelloPublisher(), rabbit.TextMessage(rabbit.DefaultExchange, HelloQueue, HelloMessage(now)))

	assert.Eventually(t, func() bool { return in.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{HelloMessage(now)}, in.received())
}

func TestWork_FairDispatchSkipsBusyWorker(t *testing.T) {
	broker := mocks.NewBroker()
	s := Setup{Connection: broker}

	release := make(chan struct{})
	var slow, fast inbox
	start(t, s.WorkConsumer(false, func(m *rabbit.Message) {
		<-release
		slow.handle(m)
	}))
	start(t, s.WorkConsumer(false, fast.handle))

	var tasks []*rabbit.Message
	for i := 0; i < 4; i++ {
		tasks = append(tasks, WorkMessage(false, TaskMessage(now, i)))
	}
	publishAll(t, s.WorkPublisher(false), tasks...)

	assert.Eventually(t, func() bool { return fast.count() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, broker.MaxUnacked())

	close(release)
	assert.Eventually(t, func() bool { return broker.Acked(TaskQueue) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{TaskMessage(now, 0)}, slow.received())
}

func TestWork_RoundRobinAlternates(t *testing.T) {
	broker := mocks.NewBroker()
	s := Setup{Connection: broker}

	var first, second inbox
	start(t, s.WorkConsumer(true, first.handle))
	start(t, s.WorkConsumer(true, second.handle))

	var tasks []*rabbit.Message
	for i := 0; i < 4; i++ {
		tasks = append(tasks, WorkMessage(true, TaskMessage(now, i)))
	}
	publishAll(t, s.WorkPublisher(true), tasks...)

	assert.Eventually(t, func() bool { return first.count()+second.count() == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{TaskMessage(now, 0), TaskMessage(now, 2)}, first.received())
	assert.Equal(t, []string{TaskMessage(now, 1), TaskMessage(now, 3)}, second.received())
}

func TestWorkMessage_PersistentOnlyForFairQueue(t *testing.T) {
	fair := WorkMessage(false, "x")
	assert.True(t, fair.Persistent)
	assert.Equal(t, TaskQueue, fair.RoutingKey)

	rr := WorkMessage(true, "x")
	assert.False(t, rr.Persistent)
	assert.Equal(t, RoundRobinQueue, rr.RoutingKey)
}

func TestLogs_FanoutReachesEveryConsumer(t *testing.T) {
	broker := mocks.NewBroker()
	s := Setup{Connection: broker}

	var a, b inbox
	start(t, s.LogsConsumer(a.handle))
	start(t, s.LogsConsumer(b.handle))

	publishAll(t, s.LogsPublisher(),
		rabbit.TextMessage(LogsExchange, "", LogMessage(now, 0)),
		rabbit.TextMessage(LogsExchange, "", LogMessage(now, 1)),
	)

	want := []string{LogMessage(now, 0), LogMessage(now, 1)}
	assert.Eventually(t, func() bool { return a.count() == 2 && b.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, want, a.received())
	assert.Equal(t, want, b.received())
}

func TestRouting_HonoursBindingKeys(t *testing.T) {
	broker := mocks.NewBroker()
	s := Setup{Connection: broker}

	var errorsOnly, all inbox
	start(t, s.RoutingConsumer([]string{"error"}, errorsOnly.handle))
	start(t, s.RoutingConsumer(nil, all.handle))

	var msgs []*rabbit.Message
	for i, level := range Levels {
		msgs = append(msgs, rabbit.TextMessage(RoutingExchange, level, LevelMessage(level, now, i)))
	}
	publishAll(t, s.RoutingPublisher(), msgs...)

	assert.Eventually(t, func() bool { return all.count() == 3 && errorsOnly.count() == 1 },
		time.Second, time.Millisecond)
	assert.Equal(t, []string{LevelMessage("error", now, 2)}, errorsOnly.received())
}

func TestTopic_MatchesPatterns(t *testing.T) {
	broker := mocks.NewBroker()
	s := Setup{Connection: broker}

	chinaOrErrors := []string{"cn.#", "*.*.error"}
	ming := []string{"*.ming.*"}
	var one, two, everything inbox
	start(t, s.TopicConsumer(chinaOrErrors, one.handle))
	start(t, s.TopicConsumer(ming, two.handle))
	start(t, s.TopicConsumer(nil, everything.handle))

	var msgs []*rabbit.Message
	wantOne, wantTwo := 0, 0
	for _, c := range Countries {
		for _, p := range Persons {
			for _, l := range Levels {
				key := strings.Join([]string{c, p, l}, ".")
				msgs = append(msgs, rabbit.TextMessage(TopicExchange, key, TopicMessage(key, now, len(msgs))))
				if c == "cn" || l == "error" {
					wantOne++
				}
				if p == "ming" {
					wantTwo++
				}
			}
		}
	}
	publishAll(t, s.TopicPublisher(), msgs...)

	assert.Eventually(t, func() bool { return everything.count() == len(msgs) }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return one.count() == wantOne && two.count() == wantTwo },
		time.Second, time.Millisecond)
	for _, body := range one.received() {
		key := strings.SplitN(body, "---", 2)[0]
		assert.True(t, mocks.MatchTopic("cn.#", key) || mocks.MatchTopic("*.*.error", key), key)
	}
	assert.Equal(t, 15, wantOne)
	assert.Equal(t, 9, wantTwo)
}

func TestRPC(t *testing.T) {
	broker := mocks.NewBroker()
	s := Setup{Connection: broker}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.RPCServer().Run(ctx)
	}()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()
	// requests published before the server purged its queue would be lost
	assert.Eventually(t, func() bool {
		chs := broker.Channels()
		return len(chs) == 2 && chs[1].Prefetch() == 1
	}, time.Second, time.Millisecond)

	client := s.RPCClient()
	require.NoError(t, client.Start())
	defer client.Shutdown()

	res, err := client.Call(ctx, []byte("10"))
	require.NoError(t, err)
	assert.Equal(t, "55", string(res))
}
