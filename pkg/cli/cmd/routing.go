package cmd

import (
	"context"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/tutorial"
)

var flagLevels []string

func init() {
	routingReceiveCmd.Flags().StringSliceVar(&flagLevels, "level", nil,
		"Levels to receive, all of info, warn and error by default")
	addProducerFlags(routingEmitCmd, 200*time.Millisecond)
	routingCmd.AddCommand(routingEmitCmd, routingReceiveCmd)
	rootCmd.AddCommand(routingCmd)
}

var routingCmd = &cobra.Command{
	Use:   "routing",
	Short: "Routing: consumers select messages by exact key",
}

var routingEmitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Send logs of random levels",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		return e.produce(ctx, e.setup.RoutingPublisher(), func(i int) *rabbit.Message {
			level := tutorial.RandomLevel(r)
			return rabbit.TextMessage(tutorial.RoutingExchange, level, tutorial.LevelMessage(level, time.Now(), i))
		})
	}),
}

var routingReceiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Print logs of selected levels",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		return e.consume(ctx, e.setup.RoutingConsumer(flagLevels, e.printMessage))
	}),
}
