package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cachemir/redisbus/internal/testutil"
	"github.com/cachemir/redisbus/pkg/store"
)

type message struct {
	channel string
	payload string
}

// runSubscription starts sub in the background and waits until the store confirmed it.
func runSubscription(t *testing.T, ctx context.Context, sub *store.Subscription) (<-chan message, <-chan error) {
	t.Helper()

	msgs := make(chan message, 16)
	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, func(channel, payload string) {
			msgs <- message{channel, payload}
		})
	}()

	select {
	case <-sub.Ready():
	case err := <-done:
		t.Fatalf("subscription ended before it was ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}
	return msgs, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestSubscription_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	conn := openConn(t)

	sub := conn.NewSubscription("events")
	assert.Equal(t, "events", sub.Channel())
	msgs, done := runSubscription(t, ctx, sub)

	n, err := conn.Publish(ctx, "events", "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = conn.Publish(ctx, "events", "m2")
	require.NoError(t, err)

	assert.Equal(t, message{"events", "m1"}, <-msgs)
	assert.Equal(t, message{"events", "m2"}, <-msgs)

	sub.Cancel()
	sub.Cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestSubscription_OtherChannelsIgnored(t *testing.T) {
	ctx := context.Background()
	conn := openConn(t)

	sub := conn.NewSubscription("events")
	msgs, done := runSubscription(t, ctx, sub)

	_, err := conn.Publish(ctx, "other", "ignored")
	require.NoError(t, err)
	_, err = conn.Publish(ctx, "events", "seen")
	require.NoError(t, err)

	assert.Equal(t, message{"events", "seen"}, <-msgs)

	sub.Cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestSubscription_CancelBeforeRun(t *testing.T) {
	conn := openConn(t)

	sub := conn.NewSubscription("events")
	sub.Cancel()

	err := sub.Run(context.Background(), func(string, string) {
		t.Error("handler called after cancel")
	})
	assert.NoError(t, err)

	select {
	case <-sub.Ready():
		t.Error("cancelled subscription reported ready")
	default:
	}
}

func TestSubscription_RunsOnce(t *testing.T) {
	conn := openConn(t)

	sub := conn.NewSubscription("events")
	_, done := runSubscription(t, context.Background(), sub)
	sub.Cancel()
	require.NoError(t, waitDone(t, done))

	err := sub.Run(context.Background(), func(string, string) {})
	assert.ErrorIs(t, err, store.ErrSubscriptionUsed)
}

func TestSubscription_ContextCancel(t *testing.T) {
	conn := openConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	sub := conn.NewSubscription("events")
	_, done := runSubscription(t, ctx, sub)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestSubscription_TransportFailure(t *testing.T) {
	ctx := context.Background()
	srv, cfg := testutil.StartServer(t)

	conn, err := store.Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer conn.Close()

	sub := conn.NewSubscription("events")
	_, done := runSubscription(t, ctx, sub)

	require.NoError(t, srv.Stop())

	err = waitDone(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConnection)
}

func TestSubscription_Occupy(t *testing.T) {
	ctx := context.Background()
	conn := openConn(t)

	occ := conn.Occupy("events")
	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- occ.Run(ctx, func(_, payload string) { got <- payload })
	}()

	select {
	case <-occ.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}

	_, err := conn.Publish(ctx, "events", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", <-got)

	occ.Cancel()
	assert.NoError(t, waitDone(t, done))
}
