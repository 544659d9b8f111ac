package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var flagCallTimeout time.Duration

func init() {
	rpcCallCmd.Flags().DurationVar(&flagCallTimeout, "timeout", 30*time.Second, "How long to wait for every reply")
	rpcCmd.AddCommand(rpcCallCmd, rpcServeCmd)
	rootCmd.AddCommand(rpcCmd)
}

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "RPC: Fibonacci numbers computed by a remote server",
}

var rpcCallCmd = &cobra.Command{
	Use:   "call [n ...]",
	Short: "Request fib(n) for every argument, fib(0) to fib(31) by default",
	RunE: run(func(ctx context.Context, e *env, args []string) error {
		if len(args) == 0 {
			for i := 0; i < 32; i++ {
				args = append(args, strconv.Itoa(i))
			}
		}

		client := e.setup.RPCClient()
		client.CallTimeout = flagCallTimeout
		if err := client.Start(); err != nil {
			return err
		}
		defer client.Shutdown()

		for _, n := range args {
			fmt.Fprintf(e.out, " [x] Requesting fib(%s)\n", n)
			res, err := client.Call(ctx, []byte(n))
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintf(e.out, " [.] Failed: %s\n", err)
				continue
			}
			fmt.Fprintf(e.out, " [.] Got '%s'\n", res)
		}
		return nil
	}),
}

var rpcServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Fibonacci requests",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		fmt.Fprintln(e.out, " [x] Awaiting RPC requests")
		return e.setup.RPCServer().Run(ctx)
	}),
}
