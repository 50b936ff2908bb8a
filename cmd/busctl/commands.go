package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cachemir/redisbus/pkg/client"
	"github.com/cachemir/redisbus/pkg/pubsub"
)

func (a *app) pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the store answers",
		Args:  cobra.NoArgs,
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			if err := c.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PONG")
			return nil
		}),
	}
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the string stored at key",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			value, ok, err := c.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		}),
	}
}

func (a *app) setCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a string, optionally expiring",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			if err := c.SetEx(ctx, args[0], args[1], ttl); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		}),
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire after this long (0 keeps the key)")
	return cmd
}

func (a *app) delCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>...",
		Short: "Remove keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withClient(func(ctx context.Context, _ *cobra.Command, c *client.Client, args []string) error {
			for _, key := range args {
				if err := c.Delete(ctx, key); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func (a *app) membersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "members <set>",
		Short: "List the members of a set",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			members, err := c.Members(ctx, args[0])
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		}),
	}
}

func (a *app) addCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <set> <member>...",
		Short: "Add members to a set in one round trip",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.withClient(func(ctx context.Context, _ *cobra.Command, c *client.Client, args []string) error {
			return c.AddAll(ctx, args[0], args[1:])
		}),
	}
}

func (a *app) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <set> <member>...",
		Short: "Remove members from a set",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.withClient(func(ctx context.Context, _ *cobra.Command, c *client.Client, args []string) error {
			for _, m := range args[1:] {
				if err := c.Remove(ctx, args[0], m); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func (a *app) hgetallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hgetall <hash>",
		Short: "Print every field of a hash",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			fields, err := c.GetAll(ctx, args[0])
			if err != nil {
				return err
			}
			for _, f := range sortedKeys(fields) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", f, fields[f])
			}
			return nil
		}),
	}
}

func (a *app) hsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hset <hash> <field> <value> [<field> <value>...]",
		Short: "Write hash fields in one command",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 3 || len(args)%2 == 0 {
				return errors.New("requires a hash name followed by field/value pairs")
			}
			return nil
		},
		RunE: a.withClient(func(ctx context.Context, _ *cobra.Command, c *client.Client, args []string) error {
			fields := make(map[string]string, len(args)/2)
			for i := 1; i+1 < len(args); i += 2 {
				fields[args[i]] = args[i+1]
			}
			return c.SetFields(ctx, args[0], fields)
		}),
	}
}

func (a *app) hdelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hdel <hash> <field>...",
		Short: "Remove hash fields",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.withClient(func(ctx context.Context, _ *cobra.Command, c *client.Client, args []string) error {
			for _, f := range args[1:] {
				if err := c.RemoveField(ctx, args[0], f); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func (a *app) publishCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <channel> <message>",
		Short: "Publish a message to the current subscribers of a channel",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(ctx context.Context, _ *cobra.Command, c *client.Client, args []string) error {
			return c.Publish(ctx, args[0], args[1])
		}),
	}
}

func (a *app) listenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "listen <dataset> <channel>",
		Short: "Print the messages of a channel until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd)
			if err != nil {
				return err
			}

			reg, err := pubsub.NewRegistration(args[0], args[1])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			failed := make(chan error, 1)
			l := c.NewListener(reg,
				pubsub.SubscriberFunc(func(channel, payload string) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", channel, payload)
				}),
				pubsub.WithStatusFunc(func(status pubsub.Status, err error) {
					if status == pubsub.StatusFailed {
						failed <- err
					}
				}))
			defer l.Close()

			if !l.Subscribe() {
				return errors.New("could not subscribe")
			}
			cmd.PrintErrf("listening on %s, press Ctrl+C to stop\n", reg)

			select {
			case <-ctx.Done():
				return nil
			case err := <-failed:
				return fmt.Errorf("subscription lost: %w", err)
			}
		},
	}
}

func (a *app) flushallCommand() *cobra.Command {
	var yes bool

	flush := a.withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
		if err := c.FlushAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	})

	cmd := &cobra.Command{
		Use:   "flushall",
		Short: "Remove every key of every database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to flush without --yes")
			}
			return flush(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm removing everything")
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
