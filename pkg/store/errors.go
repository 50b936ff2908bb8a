package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrConnection matches every transport failure: errors.Is(err, store.ErrConnection).
var ErrConnection = errors.New("store: connection error")

// ErrSubscriptionUsed is returned when Run is called a second time on a Subscription.
var ErrSubscriptionUsed = errors.New("store: subscription already ran")

// ConnectionError reports that the store could not be reached or the transport was lost
// while executing Op.
type ConnectionError struct {
	Op   string // command or phase, e.g. "GET", "SUBSCRIBE", "CONNECT"
	Addr string // store address
	Err  error  // underlying transport error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: connection error: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is makes every ConnectionError match ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// isReplyError reports whether err is an error reply sent by the store (WRONGTYPE, ERR ...)
// rather than a transport failure.
func isReplyError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}

// wrap classifies err for op. Reply errors and context errors keep their identity behind
// the op name; everything else is a transport failure.
func (c *Conn) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isReplyError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &ConnectionError{Op: op, Addr: c.addr, Err: err}
}
