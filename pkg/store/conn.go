// Package store implements the connection handle redisbus uses to talk to the store.
//
// A Conn owns a pooled go-redis client. Ordinary requests borrow a pooled connection
// for one round trip; the pool redials broken connections on demand and a failed request
// is retried once (ClientConfig.MaxRetries). Transport failures surface as
// *ConnectionError, store error replies keep their text, and a missing key or field is
// reported as absent rather than as an error.
//
// Subscribe mode never shares a pooled connection: every Subscription occupies a
// dedicated transport until it is cancelled or the transport fails.
//
// Example usage:
//
//	conn, err := store.Open(ctx, cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	err = conn.Set(ctx, "greeting", "hello")
//	value, ok, err := conn.Get(ctx, "greeting")
//
//	err = conn.RunBatch(ctx, func(b *store.Batch) {
//		b.SAdd("users", "alice")
//		b.SAdd("users", "bob")
//	})
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cachemir/redisbus/pkg/config"
	"github.com/cachemir/redisbus/pkg/logging"
)

// Conn is the connection handle to one store. It is safe for concurrent use.
type Conn struct {
	rdb            *redis.Client
	addr           string
	connectTimeout time.Duration
	logger         *zap.Logger
}

// New creates a Conn for the store described by cfg. No network I/O happens until the
// first request; use Open to fail fast on an unreachable store.
func New(cfg *config.ClientConfig, logger *zap.Logger) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		// go-redis reads 0 as "use the default"; -1 turns retries off.
		maxRetries = -1
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   maxRetries,
		PoolSize:     cfg.PoolSize,
	})

	c := NewWithClient(rdb, logger)
	c.connectTimeout = cfg.ConnectTimeout
	return c, nil
}

// Open is New followed by Connect.
func Open(ctx context.Context, cfg *config.ClientConfig, logger *zap.Logger) (*Conn, error) {
	c, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewWithClient wraps an already configured go-redis client. The Conn takes ownership:
// Close closes rdb.
func NewWithClient(rdb *redis.Client, logger *zap.Logger) *Conn {
	return &Conn{
		rdb:            rdb,
		addr:           rdb.Options().Addr,
		connectTimeout: config.DefaultConnectTimeout,
		logger:         logging.OrNop(logger).Named(logging.ComponentStore),
	}
}

// Addr returns the store address.
func (c *Conn) Addr() string { return c.addr }

// Connect pings the store until it answers, backing off exponentially for at most the
// configured connect timeout. Error replies (for example a rejected password) end the
// loop immediately.
func (c *Conn) Connect(ctx context.Context) error {
	ping := func() (struct{}, error) {
		err := c.rdb.Ping(ctx).Err()
		if err == nil {
			return struct{}{}, nil
		}
		if isReplyError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		c.logger.Debug("store not reachable yet", zap.String("addr", c.addr), zap.Error(err))
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.connectTimeout),
	)
	if err != nil {
		return c.wrap("CONNECT", err)
	}

	c.logger.Info("connected to store", zap.String("addr", c.addr))
	return nil
}

// Close releases every pooled connection. Running subscriptions keep their dedicated
// transport until cancelled.
func (c *Conn) Close() error {
	return c.rdb.Close()
}

// Ping checks that the store answers.
func (c *Conn) Ping(ctx context.Context) error {
	return c.wrap("PING", c.rdb.Ping(ctx).Err())
}

// Get returns the string stored at key; ok is false when the key does not exist.
func (c *Conn) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	value, err = c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, c.wrap("GET", err)
	}
	return value, true, nil
}

// Set stores value at key without expiration.
func (c *Conn) Set(ctx context.Context, key, value string) error {
	return c.SetEx(ctx, key, value, 0)
}

// SetEx stores value at key, expiring after ttl when ttl is positive.
func (c *Conn) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.wrap("SET", c.rdb.Set(ctx, key, value, ttl).Err())
}

// Del removes keys and returns how many existed.
func (c *Conn) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	return n, c.wrap("DEL", err)
}

// Exists reports whether key exists.
func (c *Conn) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, c.wrap("EXISTS", err)
	}
	return n > 0, nil
}

// SMembers returns the members of the set at key in lexical order.
func (c *Conn) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, c.wrap("SMEMBERS", err)
	}
	sort.Strings(members)
	return members, nil
}

// SAdd adds members to the set at key and returns how many were new.
func (c *Conn) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := c.rdb.SAdd(ctx, key, toArgs(members)...).Result()
	return n, c.wrap("SADD", err)
}

// SRem removes members from the set at key and returns how many were present.
func (c *Conn) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := c.rdb.SRem(ctx, key, toArgs(members)...).Result()
	return n, c.wrap("SREM", err)
}

// SIsMember reports whether member belongs to the set at key.
func (c *Conn) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, key, member).Result()
	return ok, c.wrap("SISMEMBER", err)
}

// HGetAll returns every field of the hash at key. A missing key yields an empty map.
func (c *Conn) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, c.wrap("HGETALL", err)
	}
	return fields, nil
}

// HGet returns one hash field; ok is false when the hash or the field does not exist.
func (c *Conn) HGet(ctx context.Context, key, field string) (value string, ok bool, err error) {
	value, err = c.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, c.wrap("HGET", err)
	}
	return value, true, nil
}

// HSet writes fields into the hash at key in one command and returns how many were new.
// An empty map is a no-op.
func (c *Conn) HSet(ctx context.Context, key string, fields map[string]string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := c.rdb.HSet(ctx, key, pairs(fields)...).Result()
	return n, c.wrap("HSET", err)
}

// HDel removes fields from the hash at key and returns how many existed.
func (c *Conn) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	n, err := c.rdb.HDel(ctx, key, fields...).Result()
	return n, c.wrap("HDEL", err)
}

// Publish sends message to channel and returns the number of receivers the store
// reported. Delivery is not acknowledged by the receivers.
func (c *Conn) Publish(ctx context.Context, channel, message string) (int64, error) {
	n, err := c.rdb.Publish(ctx, channel, message).Result()
	return n, c.wrap("PUBLISH", err)
}

// FlushAll removes every key of every database.
func (c *Conn) FlushAll(ctx context.Context) error {
	return c.wrap("FLUSHALL", c.rdb.FlushAll(ctx).Err())
}

// FlushDB removes every key of the selected database.
func (c *Conn) FlushDB(ctx context.Context) error {
	return c.wrap("FLUSHDB", c.rdb.FlushDB(ctx).Err())
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// pairs flattens fields into field/value arguments in field order.
func pairs(fields map[string]string) []interface{} {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	args := make([]interface{}, 0, 2*len(fields))
	for _, f := range names {
		args = append(args, f, fields[f])
	}
	return args
}
