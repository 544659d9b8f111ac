package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/tutorial"
)

func init() {
	addProducerFlags(helloSendCmd, time.Second)
	helloCmd.AddCommand(helloSendCmd, helloReceiveCmd)
	rootCmd.AddCommand(helloCmd)
}

var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Simple queue: one producer, one consumer",
}

var helloSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send greetings to the hello queue",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		return e.produce(ctx, e.setup.HelloPublisher(), func(int) *rabbit.Message {
			return rabbit.TextMessage(rabbit.DefaultExchange, tutorial.HelloQueue, tutorial.HelloMessage(time.Now()))
		})
	}),
}

var helloReceiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Print greetings from the hello queue",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		return e.consume(ctx, e.setup.HelloConsumer(e.printMessage))
	}),
}
