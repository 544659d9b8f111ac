package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/tutorial"
)

func init() {
	addProducerFlags(pubsubEmitCmd, 200*time.Millisecond)
	pubsubCmd.AddCommand(pubsubEmitCmd, pubsubReceiveCmd)
	rootCmd.AddCommand(pubsubCmd)
}

var pubsubCmd = &cobra.Command{
	Use:   "pubsub",
	Short: "Publish/subscribe: every consumer gets every message",
}

var pubsubEmitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Broadcast logs",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		return e.produce(ctx, e.setup.LogsPublisher(), func(i int) *rabbit.Message {
			return rabbit.TextMessage(tutorial.LogsExchange, "", tutorial.LogMessage(time.Now(), i))
		})
	}),
}

var pubsubReceiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Print broadcast logs",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		return e.consume(ctx, e.setup.LogsConsumer(e.printMessage))
	}),
}
