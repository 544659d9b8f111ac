package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/config"
	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/tutorial"
)

var (
	flagConfig   string
	flagLogLevel string
	flagHosts    []string
	flagUsername string
	flagPassword string
	flagVhost    string
)

var rootCmd = &cobra.Command{
	Use:          "rabbit-patterns",
	Short:        "RabbitMQ messaging patterns",
	Long:         `Producers and consumers of the simple queue, work queue, publish/subscribe, routing, topic and RPC patterns`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "YAML file with broker connection settings")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringSliceVar(&flagHosts, "host", nil, "Broker host[:port], may be repeated")
	pf.StringVar(&flagUsername, "username", "", "Broker username")
	pf.StringVar(&flagPassword, "password", "", "Broker password")
	pf.StringVar(&flagVhost, "vhost", "", "Broker virtual host")
}

// Execute runs the rabbit-patterns command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// addProducerFlags adds flags controlling how many messages a producer sends and how often
// Values are read back from the command in newEnv.
func addProducerFlags(cmd *cobra.Command, interval time.Duration) {
	cmd.Flags().IntP("count", "n", 100, "Number of messages to send")
	cmd.Flags().Duration("interval", interval, "Delay between messages")
}

// env is what every pattern command runs with
type env struct {
	log   *logrus.Logger
	conn  *rabbit.Connection
	setup tutorial.Setup
	out   io.Writer

	count    int
	interval time.Duration
}

func newEnv(cmd *cobra.Command) (*env, error) {
	log := &logrus.Logger{
		Out:       os.Stderr,
		Formatter: &logrus.TextFormatter{},
		Hooks:     make(logrus.LevelHooks),
	}
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Hostnames = flagHosts
	}
	if flags.Changed("username") {
		cfg.Username = flagUsername
	}
	if flags.Changed("password") {
		cfg.Password = flagPassword
	}
	if flags.Changed("vhost") {
		cfg.Vhost = flagVhost
	}

	conn := cfg.Connection(log)
	e := &env{
		log:   log,
		conn:  conn,
		setup: tutorial.Setup{Connection: conn, Logger: log},
		out:   cmd.OutOrStdout(),
	}
	if flags.Lookup("count") != nil {
		if e.count, err = flags.GetInt("count"); err != nil {
			return nil, err
		}
		if e.interval, err = flags.GetDuration("interval"); err != nil {
			return nil, err
		}
		if e.interval <= 0 {
			return nil, errors.Errorf("interval must be positive, got %s", e.interval)
		}
	}
	return e, nil
}

func (e *env) close() {
	if err := e.conn.Close(); err != nil {
		e.log.Debugf("cant close connection: %s", err)
	}
}

// produce publishes count messages built by next, interval apart
func (e *env) produce(ctx context.Context, p *rabbit.Publisher, next func(i int) *rabbit.Message) error {
	if err := p.Start(); err != nil {
		return err
	}
	defer p.Shutdown()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for i := 0; i < e.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		m := next(i)
		if err := p.Publish(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintf(e.out, " [x] Sent '%s'\n", m.Body)
	}
	return nil
}

// consume runs c until interrupted
func (e *env) consume(ctx context.Context, c *rabbit.Consumer) error {
	fmt.Fprintln(e.out, " [*] Waiting for messages. To exit press CTRL+C")
	return c.Run(ctx)
}

func (e *env) printMessage(m *rabbit.Message) {
	fmt.Fprintf(e.out, " [x] Received '%s'\n", m.Body)
}

// run calls f with an env and a context cancelled on SIGINT or SIGTERM
func run(f func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return f(ctx, e, args)
	}
}
