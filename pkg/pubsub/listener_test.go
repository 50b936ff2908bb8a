package pubsub

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegistration(t *testing.T, dataset, channel string) Registration {
	t.Helper()

	reg, err := NewRegistration(dataset, channel)
	require.NoError(t, err)
	return reg
}

func TestRegistration(t *testing.T) {
	reg := mustRegistration(t, "users", "users-changed")
	assert.Equal(t, "users", reg.Dataset())
	assert.Equal(t, "users-changed", reg.Channel())
	assert.Equal(t, "users/users-changed", reg.String())

	reg = mustRegistration(t, "", "events")
	assert.Equal(t, "events", reg.String())

	_, err := NewRegistration("users", "")
	assert.ErrorIs(t, err, ErrEmptyChannel)
}

func TestListener_SubscribeUnsubscribe(t *testing.T) {
	conn := &fakeConn{}
	reg := mustRegistration(t, "users", "users-changed")
	l := NewListener(conn, reg, &recorder{})

	assert.Equal(t, reg, l.Registration())
	assert.Equal(t, Idle, l.State())

	require.True(t, l.Subscribe())
	assert.False(t, l.Subscribe())
	assert.Equal(t, Active, l.State())
	assert.Equal(t, 1, conn.count())
	assert.Equal(t, "users-changed", conn.last().channel)

	l.Unsubscribe()
	assert.Equal(t, Idle, l.State())
	l.Unsubscribe()

	require.True(t, l.Subscribe())
	assert.NoError(t, l.Close())
	assert.Equal(t, Idle, l.State())
}

func TestListener_NoSubscriber(t *testing.T) {
	conn := &fakeConn{}
	l := NewListener(conn, mustRegistration(t, "users", "events"), nil)

	assert.Nil(t, l.Subscriber())
	assert.False(t, l.Subscribe())
	assert.Equal(t, Idle, l.State())
	assert.Zero(t, conn.count())

	rec := &recorder{}
	l.SetSubscriber(rec)
	assert.Same(t, rec, l.Subscriber())
	require.True(t, l.Subscribe())
	l.Unsubscribe()
}

func TestListener_SetSubscriberWhileActive(t *testing.T) {
	conn := &fakeConn{}
	first, second := &recorder{}, &recorder{}
	l := NewListener(conn, mustRegistration(t, "users", "events"), first)
	defer l.Close()

	require.True(t, l.Subscribe())
	o := conn.last()
	waitClosed(t, o.ready, "subscription")

	l.SetSubscriber(second)
	assert.Same(t, second, l.Subscriber())

	// The running subscription keeps its subscriber.
	o.deliver("m1")
	assert.Eventually(t, func() bool { return len(first.received()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, second.received())

	l.Unsubscribe()
	require.True(t, l.Subscribe())
	o = conn.last()
	waitClosed(t, o.ready, "subscription")

	o.deliver("m2")
	assert.Eventually(t, func() bool { return len(second.received()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"m1"}, first.received())
	assert.Equal(t, []string{"m2"}, second.received())
}

func TestListener_IDs(t *testing.T) {
	reg := mustRegistration(t, "users", "events")
	a := NewListener(&fakeConn{}, reg, &recorder{})
	b := NewListener(&fakeConn{}, reg, &recorder{})

	assert.NotEqual(t, a.ID(), b.ID())
	_, err := uuid.Parse(a.ID())
	assert.NoError(t, err)
}

func TestListener_StatusOption(t *testing.T) {
	conn := &fakeConn{}
	statuses := &statusLog{}
	l := NewListener(conn, mustRegistration(t, "users", "events"), &recorder{},
		WithStatusFunc(statuses.record), WithStopTimeout(time.Second))

	require.True(t, l.Subscribe())
	assert.Eventually(t, func() bool { return statuses.has(StatusSubscribed) }, waitFor, 5*time.Millisecond)

	require.NoError(t, l.Close())
	assert.Equal(t, []Status{StatusSubscribed, StatusStopped}, statuses.all())
}
