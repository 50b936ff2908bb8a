// Package client provides the data access facade applications use to read and write the
// store and to listen for change notifications.
//
// A Client wraps one store connection handle. Every operation is one synchronous round
// trip bounded by the caller's context; a broken connection is redialed and the request
// retried once before a *store.ConnectionError is returned. Store error replies, such as
// WRONGTYPE, keep their text. A missing key or field is reported as absent, not as an
// error.
//
// Key Features:
//   - Key-value access with optional expiration
//   - Named sets and hashes
//   - Fire-and-forget publishing
//   - Listeners that deliver channel messages on a background goroutine
//   - Thread-safe operations
//
// Basic Usage:
//
//	cfg, err := config.LoadClientConfig("redisbus.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	c, err := client.New(ctx, cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	// Key-value
//	err = c.SetEx(ctx, "session:abc", "alice", time.Hour)
//	user, ok, err := c.Get(ctx, "session:abc")
//
//	// Sets
//	err = c.AddAll(ctx, "users", []string{"alice", "bob"})
//	users, err := c.Members(ctx, "users")
//
//	// Hashes
//	err = c.SetFields(ctx, "user:alice", map[string]string{"name": "Alice", "role": "admin"})
//	profile, err := c.GetAll(ctx, "user:alice")
//
//	// Notifications
//	err = c.Publish(ctx, "users-changed", "alice")
//
// Listening:
//
//	reg, _ := pubsub.NewRegistration("users", "users-changed")
//	l := c.NewListener(reg, pubsub.SubscriberFunc(func(channel, payload string) {
//		log.Printf("%s: %s", channel, payload)
//	}))
//	l.Subscribe()
//	defer l.Close()
package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cachemir/redisbus/pkg/config"
	"github.com/cachemir/redisbus/pkg/logging"
	"github.com/cachemir/redisbus/pkg/pubsub"
	"github.com/cachemir/redisbus/pkg/store"
)

// Client is the data access facade over one store connection handle.
// It is safe for concurrent use by multiple goroutines.
//
// Example:
//
//	c, err := client.New(ctx, config.DefaultClientConfig(), logger)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if err := c.Add(ctx, "users", "alice"); err != nil {
//		return err
//	}
type Client struct {
	conn        *store.Conn   // Connection handle
	owned       bool          // Whether Close closes conn
	stopTimeout time.Duration // Stop timeout handed to listeners
	logger      *zap.Logger
}

// New creates a Client for the store described by cfg and checks that the store answers,
// retrying with backoff for up to cfg.ConnectTimeout.
//
// Example:
//
//	cfg := config.DefaultClientConfig()
//	cfg.Host = "cache.internal"
//	c, err := client.New(ctx, cfg, logger)
//
// Parameters:
//   - ctx: Bounds the initial connection attempts
//   - cfg: Store address, credentials and timeouts
//   - logger: Destination for log lines; nil disables logging
//
// Returns:
//   - A connected Client
//   - config.ErrDisabled when cfg.Enabled is false, a validation error, or a
//     *store.ConnectionError when the store stays unreachable
func New(ctx context.Context, cfg *config.ClientConfig, logger *zap.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, config.ErrDisabled
	}

	conn, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c := NewWithConn(conn, logger)
	c.owned = true
	c.stopTimeout = cfg.StopTimeout
	return c, nil
}

// NewWithConn creates a Client on an existing connection handle. The handle stays owned
// by the caller: Close does not close it, so several Clients may share it.
//
// Example:
//
//	conn, err := store.Open(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	users := client.NewWithConn(conn, logger)
func NewWithConn(conn *store.Conn, logger *zap.Logger) *Client {
	return &Client{
		conn:        conn,
		stopTimeout: config.DefaultStopTimeout,
		logger:      logging.OrNop(logger).Named(logging.ComponentClient),
	}
}

// Conn returns the underlying connection handle.
func (c *Client) Conn() *store.Conn { return c.conn }

// Ping checks that the store answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close releases the connection handle if the Client created it. Listeners created by
// the Client must be closed first.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

// Get retrieves the string stored at key.
//
// Example:
//
//	value, ok, err := c.Get(ctx, "session:abc")
//	if err != nil {
//		return err
//	}
//	if !ok {
//		// key does not exist or has expired
//	}
//
// Returns:
//   - The value and true when the key exists
//   - "" and false when it does not
//   - An error if the request failed or the key holds a set or hash
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	return c.conn.Get(ctx, key)
}

// Set stores value at key without expiration, replacing any previous value.
func (c *Client) Set(ctx context.Context, key, value string) error {
	return c.conn.Set(ctx, key, value)
}

// SetEx stores value at key and lets it expire after ttl.
//
// Example:
//
//	// Session that disappears after an hour
//	err := c.SetEx(ctx, "session:abc", "alice", time.Hour)
//
// A non-positive ttl stores the value without expiration.
func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.conn.SetEx(ctx, key, value, ttl)
}

// Delete removes key whatever it holds. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.conn.Del(ctx, key)
	return err
}

// Exists reports whether key exists.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	return c.conn.Exists(ctx, key)
}

// Members returns the members of the named set in lexical order. A missing set is empty.
//
// Example:
//
//	users, err := c.Members(ctx, "users")
//	// users == []string{"alice", "bob"}
func (c *Client) Members(ctx context.Context, name string) ([]string, error) {
	return c.conn.SMembers(ctx, name)
}

// Add puts value into the named set. Adding an existing member is not an error.
func (c *Client) Add(ctx context.Context, name, value string) error {
	_, err := c.conn.SAdd(ctx, name, value)
	return err
}

// AddAll puts every value into the named set in one pipelined round trip.
//
// Example:
//
//	err := c.AddAll(ctx, "users", []string{"alice", "bob"})
//
// An empty values slice sends nothing. On failure the returned error lists every value
// that was not added (see multierr.Errors); the others were.
func (c *Client) AddAll(ctx context.Context, name string, values []string) error {
	return c.conn.RunBatch(ctx, func(b *store.Batch) {
		for _, v := range values {
			b.SAdd(name, v)
		}
	})
}

// Remove takes value out of the named set. Removing a missing member is not an error.
func (c *Client) Remove(ctx context.Context, name, value string) error {
	_, err := c.conn.SRem(ctx, name, value)
	return err
}

// IsMember reports whether value belongs to the named set.
func (c *Client) IsMember(ctx context.Context, name, value string) (bool, error) {
	return c.conn.SIsMember(ctx, name, value)
}

// Clear removes the named set entirely.
func (c *Client) Clear(ctx context.Context, name string) error {
	return c.Delete(ctx, name)
}

// GetAll returns every field of the hash at key. A missing hash is empty.
//
// Example:
//
//	profile, err := c.GetAll(ctx, "user:alice")
//	// profile == map[string]string{"name": "Alice", "role": "admin"}
func (c *Client) GetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.conn.HGetAll(ctx, key)
}

// GetField returns one field of the hash at key; ok is false when the hash or the field
// does not exist.
func (c *Client) GetField(ctx context.Context, key, field string) (string, bool, error) {
	return c.conn.HGet(ctx, key, field)
}

// SetField writes one field of the hash at key.
func (c *Client) SetField(ctx context.Context, key, field, value string) error {
	_, err := c.conn.HSet(ctx, key, map[string]string{field: value})
	return err
}

// SetFields writes several fields of the hash at key in one command. Fields not in the
// map are left alone. An empty map sends nothing.
func (c *Client) SetFields(ctx context.Context, key string, fields map[string]string) error {
	_, err := c.conn.HSet(ctx, key, fields)
	return err
}

// RemoveField deletes one field of the hash at key.
func (c *Client) RemoveField(ctx context.Context, key, field string) error {
	_, err := c.conn.HDel(ctx, key, field)
	return err
}

// Publish sends message to every current subscriber of channel. It does not report how
// many subscribers received it and is not retried on delivery; a message published while
// nobody listens is lost.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	n, err := c.conn.Publish(ctx, channel, message)
	if err != nil {
		return err
	}
	c.logger.Debug("published", zap.String("channel", channel), zap.Int64("receivers", n))
	return nil
}

// FlushAll removes every key of every database on the store. There is no confirmation.
func (c *Client) FlushAll(ctx context.Context) error {
	c.logger.Warn("flushing all databases", zap.String("addr", c.conn.Addr()))
	return c.conn.FlushAll(ctx)
}

// FlushDB removes every key of the selected database.
func (c *Client) FlushDB(ctx context.Context) error {
	c.logger.Warn("flushing database", zap.String("addr", c.conn.Addr()))
	return c.conn.FlushDB(ctx)
}

// NewListener creates an unsubscribed Listener on this Client's connection handle. It
// uses the Client's logger and stop timeout unless opts override them.
//
// Example:
//
//	reg, err := pubsub.NewRegistration("users", "users-changed")
//	if err != nil {
//		return err
//	}
//	l := c.NewListener(reg, subscriber, pubsub.WithStatusFunc(onStatus))
//	l.Subscribe()
//	defer l.Close()
func (c *Client) NewListener(reg pubsub.Registration, sub pubsub.Subscriber, opts ...pubsub.SessionOption) *pubsub.Listener {
	defaults := []pubsub.SessionOption{
		pubsub.WithLogger(c.logger),
		pubsub.WithStopTimeout(c.stopTimeout),
	}
	return pubsub.NewListener(c.conn, reg, sub, append(defaults, opts...)...)
}
