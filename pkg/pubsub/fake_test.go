package pubsub

import (
	"context"
	"sync"

	"github.com/cachemir/redisbus/pkg/store"
)

// fakeConn hands out fakeOccupations and remembers them in order.
type fakeConn struct {
	mu   sync.Mutex
	occs []*fakeOccupation

	// configure is applied to every new occupation.
	configure func(o *fakeOccupation)
}

func (c *fakeConn) Occupy(channel string) store.Occupation {
	o := &fakeOccupation{
		channel:   channel,
		ready:     make(chan struct{}),
		msgs:      make(chan [2]string),
		fail:      make(chan error, 1),
		cancelled: make(chan struct{}),
		exited:    make(chan struct{}),
	}
	if c.configure != nil {
		c.configure(o)
	}

	c.mu.Lock()
	c.occs = append(c.occs, o)
	c.mu.Unlock()
	return o
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.occs)
}

func (c *fakeConn) last() *fakeOccupation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.occs) == 0 {
		return nil
	}
	return c.occs[len(c.occs)-1]
}

// fakeOccupation is an in-memory subscribe-mode transport driven by the test.
type fakeOccupation struct {
	channel string

	ready      chan struct{}
	msgs       chan [2]string
	fail       chan error
	cancelled  chan struct{}
	cancelOnce sync.Once
	exited     chan struct{}

	// lateMessage is delivered after cancellation, just before Run returns.
	lateMessage string
	// ignoreCancel keeps Run from returning after cancellation until release is closed.
	ignoreCancel bool
	release      chan struct{}
}

func (o *fakeOccupation) Run(ctx context.Context, handler store.MessageHandler) error {
	defer close(o.exited)
	close(o.ready)

	for {
		select {
		case m := <-o.msgs:
			handler(m[0], m[1])
		case err := <-o.fail:
			return err
		case <-o.cancelled:
			return o.leave(handler)
		case <-ctx.Done():
			return o.leave(handler)
		}
	}
}

func (o *fakeOccupation) leave(handler store.MessageHandler) error {
	if o.ignoreCancel {
		<-o.release
	}
	if o.lateMessage != "" {
		handler(o.channel, o.lateMessage)
	}
	return nil
}

func (o *fakeOccupation) Cancel() {
	o.cancelOnce.Do(func() { close(o.cancelled) })
}

func (o *fakeOccupation) Ready() <-chan struct{} { return o.ready }

// deliver blocks until Run handed the message to the session.
func (o *fakeOccupation) deliver(payload string) {
	o.msgs <- [2]string{o.channel, payload}
}

// recorder is a Subscriber that keeps what it received.
type recorder struct {
	mu       sync.Mutex
	payloads []string
}

func (r *recorder) OnMessage(_, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
}

func (r *recorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

// statusLog is a StatusFunc that keeps every report.
type statusLog struct {
	mu       sync.Mutex
	statuses []Status
	errs     []error
}

func (l *statusLog) record(status Status, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, status)
	l.errs = append(l.errs, err)
}

func (l *statusLog) all() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.statuses...)
}

func (l *statusLog) has(status Status) bool {
	for _, s := range l.all() {
		if s == status {
			return true
		}
	}
	return false
}

func (l *statusLog) lastErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) == 0 {
		return nil
	}
	return l.errs[len(l.errs)-1]
}
