package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MessageHandler receives one pub/sub message.
type MessageHandler func(channel, payload string)

// Occupation is one subscribe-mode use of a dedicated transport.
type Occupation interface {
	// Run subscribes and delivers messages to handler until cancelled or the transport fails.
	Run(ctx context.Context, handler MessageHandler) error
	// Cancel makes a blocked Run return. It may be called any number of times from any goroutine.
	Cancel()
	// Ready is closed once the store has confirmed the subscription.
	Ready() <-chan struct{}
}

// Subscription occupies a dedicated transport in subscribe mode on one channel.
// A Subscription runs at most once; create a new one to subscribe again.
type Subscription struct {
	conn    *Conn
	channel string

	ready     chan struct{}
	readyOnce sync.Once

	cancelled  chan struct{}
	cancelOnce sync.Once

	mu   sync.Mutex
	ps   *redis.PubSub
	used bool
}

// NewSubscription prepares a subscription to channel. Nothing is sent until Run.
func (c *Conn) NewSubscription(channel string) *Subscription {
	return &Subscription{
		conn:      c,
		channel:   channel,
		ready:     make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

// Occupy is NewSubscription behind the Occupation interface.
func (c *Conn) Occupy(channel string) Occupation {
	return c.NewSubscription(channel)
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string { return s.channel }

// Ready is closed once the store has confirmed the subscription.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Run opens a dedicated transport, subscribes to the channel and calls handler for every
// message, in arrival order, on the calling goroutine. It blocks until Cancel is called,
// ctx is done, or the transport fails.
//
// Run returns nil after cancellation and a *ConnectionError when the transport fails.
// It never resubscribes on its own.
func (s *Subscription) Run(ctx context.Context, handler MessageHandler) error {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return ErrSubscriptionUsed
	}
	s.used = true
	if s.isCancelled() {
		s.mu.Unlock()
		return nil
	}
	ps := s.conn.rdb.Subscribe(ctx)
	s.ps = ps
	s.mu.Unlock()

	defer func() { _ = ps.Close() }()

	// go-redis does not interrupt a blocked read on context cancellation,
	// so the watcher closes the transport instead.
	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.cancelled:
		case <-exited:
		}
	}()

	if err := ps.Subscribe(ctx, s.channel); err != nil {
		return s.exit(ctx, "SUBSCRIBE", err)
	}
	reply, err := ps.Receive(ctx)
	if err != nil {
		return s.exit(ctx, "SUBSCRIBE", err)
	}
	if _, ok := reply.(*redis.Subscription); !ok {
		return s.exit(ctx, "SUBSCRIBE", fmt.Errorf("unexpected reply %T", reply))
	}

	s.readyOnce.Do(func() { close(s.ready) })
	s.conn.logger.Debug("subscribe mode entered", zap.String("channel", s.channel))

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return s.exit(ctx, "RECEIVE", err)
		}
		handler(msg.Channel, msg.Payload)
	}
}

// Cancel makes Run return nil. Calling it before Run keeps Run from subscribing at all.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)

		s.mu.Lock()
		ps := s.ps
		s.mu.Unlock()

		if ps != nil {
			_ = ps.Close()
		}
	})
}

func (s *Subscription) isCancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return false
	}
}

// exit turns the error that ended Run into its result: errors caused by our own
// cancellation are not failures.
func (s *Subscription) exit(ctx context.Context, op string, err error) error {
	if s.isCancelled() || ctx.Err() != nil {
		s.conn.logger.Debug("subscribe mode left", zap.String("channel", s.channel))
		return nil
	}
	return s.conn.wrap(op, err)
}
