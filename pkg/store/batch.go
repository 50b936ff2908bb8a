package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Batch collects write commands for RunBatch. It is not safe for concurrent use and
// must not be retained after the fill function returns.
type Batch struct {
	ops []func(ctx context.Context, p redis.Pipeliner) redis.Cmder
}

// Len returns the number of queued commands.
func (b *Batch) Len() int { return len(b.ops) }

func (b *Batch) add(op func(ctx context.Context, p redis.Pipeliner) redis.Cmder) {
	b.ops = append(b.ops, op)
}

// Set queues SET key value, with expiration when ttl is positive.
func (b *Batch) Set(key, value string, ttl time.Duration) {
	b.add(func(ctx context.Context, p redis.Pipeliner) redis.Cmder { return p.Set(ctx, key, value, ttl) })
}

// Del queues DEL for keys.
func (b *Batch) Del(keys ...string) {
	b.add(func(ctx context.Context, p redis.Pipeliner) redis.Cmder { return p.Del(ctx, keys...) })
}

// SAdd queues SADD key members...
func (b *Batch) SAdd(key string, members ...string) {
	args := toArgs(members)
	b.add(func(ctx context.Context, p redis.Pipeliner) redis.Cmder { return p.SAdd(ctx, key, args...) })
}

// SRem queues SREM key members...
func (b *Batch) SRem(key string, members ...string) {
	args := toArgs(members)
	b.add(func(ctx context.Context, p redis.Pipeliner) redis.Cmder { return p.SRem(ctx, key, args...) })
}

// HSet queues HSET key with every field of fields.
func (b *Batch) HSet(key string, fields map[string]string) {
	args := pairs(fields)
	b.add(func(ctx context.Context, p redis.Pipeliner) redis.Cmder { return p.HSet(ctx, key, args...) })
}

// HDel queues HDEL key fields...
func (b *Batch) HDel(key string, fields ...string) {
	b.add(func(ctx context.Context, p redis.Pipeliner) redis.Cmder { return p.HDel(ctx, key, fields...) })
}

// Publish queues PUBLISH channel message.
func (b *Batch) Publish(channel, message string) {
	b.add(func(ctx context.Context, p redis.Pipeliner) redis.Cmder { return p.Publish(ctx, channel, message) })
}

// RunBatch sends every command queued by fill in one pipelined round trip.
//
// The store applies the commands one by one, so a failure part way leaves the earlier
// commands applied. RunBatch reports every failed command; use multierr.Errors to list
// them. Transport failures still match ErrConnection. An empty batch sends nothing.
func (c *Conn) RunBatch(ctx context.Context, fill func(b *Batch)) error {
	var b Batch
	fill(&b)
	if len(b.ops) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]redis.Cmder, 0, len(b.ops))
	for _, op := range b.ops {
		cmds = append(cmds, op(ctx, pipe))
	}

	_, execErr := pipe.Exec(ctx)
	if execErr == nil {
		return nil
	}

	var err error
	for _, cmd := range cmds {
		if cerr := cmd.Err(); cerr != nil && !errors.Is(cerr, redis.Nil) {
			err = multierr.Append(err, c.wrap(strings.ToUpper(cmd.Name()), cerr))
		}
	}
	if err == nil {
		err = c.wrap("PIPELINE", execErr)
	}

	c.logger.Warn("batch failed",
		zap.Int("commands", len(cmds)),
		zap.Int("failed", len(multierr.Errors(err))),
		zap.Error(err))
	return err
}
