package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cachemir/redisbus/pkg/client"
	"github.com/cachemir/redisbus/pkg/config"
	"github.com/cachemir/redisbus/pkg/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "busctl:", err)
		os.Exit(1)
	}
}

// app carries the global flags and the lazily created client.
type app struct {
	configPath string
	host       string
	port       int
	password   string
	db         int
	timeout    time.Duration
	logLevel   string

	logger *zap.Logger
	client *client.Client
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "busctl",
		Short:         "Inspect and drive a redisbus store",
		Long:          "busctl reads and writes keys, sets and hashes and publishes or listens on channels.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&a.host, "host", config.DefaultHost, "store host")
	flags.IntVar(&a.port, "port", config.DefaultPort, "store port")
	flags.StringVar(&a.password, "password", "", "store password")
	flags.IntVar(&a.db, "db", 0, "database index")
	flags.DurationVar(&a.timeout, "timeout", 5*time.Second, "timeout for one command")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		a.pingCommand(),
		a.getCommand(),
		a.setCommand(),
		a.delCommand(),
		a.membersCommand(),
		a.addCommand(),
		a.removeCommand(),
		a.hgetallCommand(),
		a.hsetCommand(),
		a.hdelCommand(),
		a.publishCommand(),
		a.listenCommand(),
		a.flushallCommand(),
	)

	cobra.OnFinalize(a.close)
	return root
}

// connect returns the client, creating it on first use from defaults, the config file,
// the environment and the flags given on the command line.
func (a *app) connect(cmd *cobra.Command) (*client.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	cfg, err := config.LoadClientConfig(a.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = a.host
	}
	if flags.Changed("port") {
		cfg.Port = a.port
	}
	if flags.Changed("password") {
		cfg.Password = a.password
	}
	if flags.Changed("db") {
		cfg.DB = a.db
	}
	cfg.Enabled = true

	logger, err := logging.New(a.logLevel, true)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	redis.SetLogger(logging.NewRedisLogger(logger))

	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	c, err := client.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Address(), err)
	}
	a.client = c
	return c, nil
}

func (a *app) close() {
	if a.client != nil {
		_ = a.client.Close()
		a.client = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
		a.logger = nil
	}
}

// withClient adapts a command body that needs a connected client and a bounded context.
func (a *app) withClient(fn func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := a.connect(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
		defer cancel()
		return fn(ctx, cmd, c, args)
	}
}
