// Package pubsub attaches application subscribers to store channels.
//
// A Session owns at most one subscribe-mode occupation of a store connection at a time.
// Start spawns a goroutine that subscribes and hands every message to the Subscriber in
// arrival order; Stop cancels it and waits, bounded, for the goroutine to exit. Both are
// idempotent: calling Start on an active session or Stop on an idle one does nothing.
//
// A lost transport is not retried. The session logs the failure, goes back to Idle and
// reports StatusFailed to the optional status hook; subscribing again is up to the
// application.
//
// Listener is the object applications usually hold: it binds a Registration and a
// Subscriber to a Session.
//
// Example usage:
//
//	reg, err := pubsub.NewRegistration("users", "users-changed")
//	if err != nil {
//		return err
//	}
//	l := pubsub.NewListener(conn, reg, pubsub.SubscriberFunc(func(channel, payload string) {
//		fmt.Println(channel, payload)
//	}), pubsub.WithLogger(logger))
//	l.Subscribe()
//	defer l.Close()
package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cachemir/redisbus/pkg/config"
	"github.com/cachemir/redisbus/pkg/logging"
	"github.com/cachemir/redisbus/pkg/store"
)

// State is the lifecycle state of a Session.
type State int

const (
	// Idle means no subscription is running.
	Idle State = iota
	// Active means a background goroutine occupies a transport in subscribe mode.
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Status is reported to a StatusFunc when a subscription changes course.
type Status int

const (
	// StatusSubscribed means the store confirmed the subscription.
	StatusSubscribed Status = iota + 1
	// StatusFailed means the transport failed; the session is Idle again.
	StatusFailed
	// StatusStopped means the subscription ended after Stop.
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusFailed:
		return "failed"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StatusFunc observes subscription status changes. err is set for StatusFailed only.
// It is called from the session's background goroutines and must not block.
type StatusFunc func(status Status, err error)

// SubscribeConn is the part of a store connection a Session needs. *store.Conn
// implements it.
type SubscribeConn interface {
	Occupy(channel string) store.Occupation
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logging.OrNop(logger).Named(logging.ComponentPubSub)
	}
}

// WithStopTimeout bounds how long Stop waits for the background goroutine to exit.
// Non-positive values keep the default.
func WithStopTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithStatusFunc sets the status hook.
func WithStatusFunc(fn StatusFunc) SessionOption {
	return func(s *Session) {
		s.onStatus = fn
	}
}

// task is the handle of one background subscription.
type task struct {
	channel string
	occ     store.Occupation
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

// Session runs at most one subscription at a time. It is safe for concurrent use.
type Session struct {
	conn        SubscribeConn
	logger      *zap.Logger
	stopTimeout time.Duration
	onStatus    StatusFunc

	mu       sync.Mutex
	current  *task // running subscription, nil when Idle
	stopping *task // last stopped subscription until its goroutine exits
}

// NewSession creates an idle Session on conn.
func NewSession(conn SubscribeConn, opts ...SessionOption) *Session {
	s := &Session{
		conn:        conn,
		logger:      zap.NewNop(),
		stopTimeout: config.DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Idle
	}
	return Active
}

// Channel returns the channel of the running subscription, or "" when Idle.
func (s *Session) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ""
	}
	return s.current.channel
}

// Start subscribes to channel in the background and delivers its messages to sub.
// It returns false without doing anything when the session is already Active or sub is
// nil. Start does not wait for the store to confirm the subscription; use a StatusFunc
// to learn when it does.
func (s *Session) Start(channel string, sub Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.logger.Info("already subscribed",
			zap.String("channel", s.current.channel),
			zap.String("requested", channel))
		return false
	}
	if isNil(sub) {
		s.logger.Info("subscriber is nil, not subscribing", zap.String("channel", channel))
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		channel: channel,
		occ:     s.conn.Occupy(channel),
		done:    make(chan struct{}),
	}
	t.cancel = func() {
		cancel()
		t.occ.Cancel()
	}
	s.current = t

	go s.run(ctx, t, sub)
	return true
}

// Stop cancels the running subscription and waits up to the stop timeout for its
// goroutine to exit. The session is Idle when Stop returns, and the subscriber receives
// nothing afterwards except a message whose delivery had already begun. Stop on an
// idle session does nothing, even after an earlier Stop timed out.
func (s *Session) Stop() {
	s.mu.Lock()
	t := s.current
	if t != nil {
		s.current = nil
		s.stopping = t
		t.stopped.Store(true)
	} else {
		t = s.stopping
	}
	s.mu.Unlock()

	if t == nil {
		s.logger.Debug("not subscribed, nothing to stop")
		return
	}

	t.cancel()

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case <-t.done:
	case <-timer.C:
		s.logger.Warn("subscription did not exit in time",
			zap.String("channel", t.channel),
			zap.Duration("timeout", s.stopTimeout))

		// Later calls on the idle session must not wait for it again.
		s.mu.Lock()
		if s.stopping == t {
			s.stopping = nil
		}
		s.mu.Unlock()
	}
}

// run is the body of the background goroutine of t.
func (s *Session) run(ctx context.Context, t *task, sub Subscriber) {
	defer close(t.done)

	runDone := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-t.occ.Ready():
			if !t.stopped.Load() {
				s.logger.Info("subscribed", zap.String("channel", t.channel))
				s.notify(StatusSubscribed, nil)
			}
		case <-runDone:
		}
	}()

	err := t.occ.Run(ctx, func(channel, payload string) {
		if t.stopped.Load() {
			return
		}
		sub.OnMessage(channel, payload)
	})
	close(runDone)
	<-watchDone

	s.mu.Lock()
	if s.current == t {
		s.current = nil
	}
	if s.stopping == t {
		s.stopping = nil
	}
	s.mu.Unlock()
	t.cancel()

	if err != nil && !t.stopped.Load() {
		s.logger.Error("subscription failed, session is idle",
			zap.String("channel", t.channel),
			zap.Error(err))
		s.notify(StatusFailed, err)
		return
	}

	s.logger.Info("unsubscribed", zap.String("channel", t.channel))
	s.notify(StatusStopped, nil)
}

func (s *Session) notify(status Status, err error) {
	if s.onStatus != nil {
		s.onStatus(status, err)
	}
}
