package pubsub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Listener binds a Registration and a Subscriber to its own Session.
//
// Example:
//
//	l := pubsub.NewListener(conn, reg, sub)
//	if !l.Subscribe() {
//		// already subscribed, or no subscriber bound
//	}
//	defer l.Close()
type Listener struct {
	id      string
	reg     Registration
	session *Session

	mu  sync.Mutex
	sub Subscriber
}

// NewListener creates an unsubscribed Listener. opts configure its Session.
func NewListener(conn SubscribeConn, reg Registration, sub Subscriber, opts ...SessionOption) *Listener {
	id := uuid.NewString()

	session := NewSession(conn, opts...)
	session.logger = session.logger.With(
		zap.String("listener", id),
		zap.String("dataset", reg.Dataset()))

	return &Listener{
		id:      id,
		reg:     reg,
		session: session,
		sub:     sub,
	}
}

// ID returns the unique listener ID used in log lines.
func (l *Listener) ID() string { return l.id }

// Registration returns the registration the listener was created with.
func (l *Listener) Registration() Registration { return l.reg }

// State returns the state of the listener's session.
func (l *Listener) State() State { return l.session.State() }

// Subscriber returns the bound subscriber.
func (l *Listener) Subscriber() Subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub
}

// SetSubscriber binds sub. A running subscription keeps delivering to the subscriber it
// was started with; sub receives messages after the next Unsubscribe and Subscribe.
func (l *Listener) SetSubscriber(sub Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sub = sub
}

// Subscribe starts delivering the registration's channel to the bound subscriber.
// It returns false when already subscribed or when no subscriber is bound.
func (l *Listener) Subscribe() bool {
	return l.session.Start(l.reg.Channel(), l.Subscriber())
}

// Unsubscribe stops delivery. It does nothing when not subscribed.
func (l *Listener) Unsubscribe() {
	l.session.Stop()
}

// Close unsubscribes. The listener may be subscribed again afterwards.
func (l *Listener) Close() error {
	l.session.Stop()
	return nil
}
