package cmd

import (
	"context"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/tutorial"
)

var flagBindings []string

func init() {
	topicReceiveCmd.Flags().StringSliceVar(&flagBindings, "bind", nil,
		"Binding patterns such as cn.# or *.*.error, everything by default")
	addProducerFlags(topicEmitCmd, 200*time.Millisecond)
	topicCmd.AddCommand(topicEmitCmd, topicReceiveCmd)
	rootCmd.AddCommand(topicCmd)
}

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Topics: consumers select messages by key patterns",
}

var topicEmitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Send logs with random <country>.<person>.<level> keys",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		return e.produce(ctx, e.setup.TopicPublisher(), func(i int) *rabbit.Message {
			key := tutorial.RandomTopicKey(r)
			return rabbit.TextMessage(tutorial.TopicExchange, key, tutorial.TopicMessage(key, time.Now(), i))
		})
	}),
}

var topicReceiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Print logs matching binding patterns",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		return e.consume(ctx, e.setup.TopicConsumer(flagBindings, e.printMessage))
	}),
}
