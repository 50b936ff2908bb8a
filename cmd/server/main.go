package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cachemir/redisbus/internal/server"
	"github.com/cachemir/redisbus/pkg/config"
	"github.com/cachemir/redisbus/pkg/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "redisbus-server",
		Short:        "Run the redisbus development store",
		Long:         "Runs an in-memory store speaking the Redis protocol, for local development and tests.",
		SilenceUsage: true,
		RunE:         run,
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a YAML configuration file")
	flags.String("host", config.DefaultServerHost, "address to bind to")
	flags.Int("port", config.DefaultPort, "port to listen on (0 picks a free port)")
	flags.Int("max-conns", config.DefaultMaxConnections, "maximum concurrent connections")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("dev-log", false, "human readable log output")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServerConfig(path)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	devLog, _ := cmd.Flags().GetBool("dev-log")
	logger, err := logging.New(cfg.LogLevel, devLog)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting development store",
		zap.String("addr", cfg.Address()),
		zap.Int("max_conns", cfg.MaxConns),
		zap.Duration("cleanup_interval", cfg.CleanupInterval))

	srv := server.New(cfg, logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if err := srv.Stop(); err != nil {
		logger.Warn("error stopping server", zap.Error(err))
	}
	return nil
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.ServerConfig) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("max-conns") {
		cfg.MaxConns, _ = flags.GetInt("max-conns")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
}
