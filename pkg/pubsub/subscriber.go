package pubsub

// Subscriber receives the messages of a channel.
//
// OnMessage runs on the session's background goroutine, one message at a time and in
// arrival order. A slow subscriber delays every later message of its session.
type Subscriber interface {
	OnMessage(channel, payload string)
}

// SubscriberFunc adapts an ordinary function to the Subscriber interface.
type SubscriberFunc func(channel, payload string)

// OnMessage calls f(channel, payload).
func (f SubscriberFunc) OnMessage(channel, payload string) { f(channel, payload) }

// isNil reports whether sub can not receive anything, including a nil SubscriberFunc
// wrapped in the interface.
func isNil(sub Subscriber) bool {
	if sub == nil {
		return true
	}
	f, ok := sub.(SubscriberFunc)
	return ok && f == nil
}
