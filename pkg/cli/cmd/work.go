package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/tutorial"
)

var (
	flagRoundRobin bool
	flagWorkDelay  time.Duration
)

func init() {
	workCmd.PersistentFlags().BoolVar(&flagRoundRobin, "round-robin", false,
		"Dispatch round-robin with automatic acks instead of fair dispatch")
	workReceiveCmd.Flags().DurationVar(&flagWorkDelay, "delay", 0, "Time spent on every task")
	addProducerFlags(workSendCmd, 200*time.Millisecond)
	workCmd.AddCommand(workSendCmd, workReceiveCmd)
	rootCmd.AddCommand(workCmd)
}

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Work queue: tasks distributed among workers",
}

var workSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send tasks",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		return e.produce(ctx, e.setup.WorkPublisher(flagRoundRobin), func(i int) *rabbit.Message {
			return tutorial.WorkMessage(flagRoundRobin, tutorial.TaskMessage(time.Now(), i))
		})
	}),
}

var workReceiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Work on tasks",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		if flagWorkDelay > 0 {
			fmt.Fprintf(e.out, "working slow, %s per task\n", flagWorkDelay)
		}
		return e.consume(ctx, e.setup.WorkConsumer(flagRoundRobin, func(m *rabbit.Message) {
			time.Sleep(flagWorkDelay)
			e.printMessage(m)
			fmt.Fprintln(e.out, " [x] Done")
			m.Ack()
		}))
	}),
}
