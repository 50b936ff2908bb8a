// Package redisbus is a client-side access layer over a Redis-protocol store that also
// exposes the store's publish/subscribe channels as a message bus.
//
// Application code reads and writes keyed data, named sets and hashes, publishes
// notifications and attaches listeners to channels without handling the wire protocol or
// the connection lifecycle.
//
// # Architecture Overview
//
//   - Connection handle (pkg/store): pooled go-redis client, pipelined batches and
//     dedicated subscribe-mode transports
//   - Subscription session (pkg/pubsub): at most one background subscription per session,
//     idempotent start and stop, status reporting
//   - Listener (pkg/pubsub): binds a channel registration and a subscriber to a session
//   - Client (pkg/client): the data access facade applications hold
//   - Configuration (pkg/config) and logging (pkg/logging)
//   - Development store (internal/server, pkg/cache, pkg/protocol): an in-memory
//     Redis-protocol server for local work and tests
//
// # Quick Start
//
// Development store:
//
//	./redisbus-server --port 6379 --log-level debug
//
// Client:
//
//	import "github.com/cachemir/redisbus/pkg/client"
//
//	c, err := client.New(ctx, config.DefaultClientConfig(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	// Sets
//	c.AddAll(ctx, "users", []string{"alice", "bob"})
//	users, err := c.Members(ctx, "users")
//
//	// Notifications
//	reg, _ := pubsub.NewRegistration("users", "users-changed")
//	l := c.NewListener(reg, pubsub.SubscriberFunc(func(channel, payload string) {
//		log.Printf("%s changed: %s", channel, payload)
//	}))
//	l.Subscribe()
//	defer l.Close()
//
//	c.Publish(ctx, "users-changed", "alice")
//
// # Delivery Semantics
//
// Publishing is fire-and-forget: a message reaches the subscribers present at that moment
// and nobody else. Messages of one channel arrive at a subscriber in publish order. A
// subscription whose transport fails is not resumed; the listener reports StatusFailed
// and goes idle until the application subscribes again.
//
// # Configuration
//
// Client configuration via YAML file or environment variables:
//
//	redis:
//	  host: cache.internal
//	  port: 6379
//	  stop_timeout: 5s
//	# or
//	REDISBUS_HOST=cache.internal REDISBUS_PORT=6379 ./app
//
// # Package Structure
//
//   - pkg/client: Data access facade
//   - pkg/pubsub: Registrations, subscribers, sessions and listeners
//   - pkg/store: Connection handle
//   - pkg/config: Configuration management
//   - pkg/logging: Logger construction
//   - pkg/cache: Development store engine
//   - pkg/protocol: Development store command table
//   - internal/server: Development store server
//   - cmd/server: Development store executable
//   - cmd/busctl: Command-line client
//
// For detailed documentation of individual packages, see their respective godoc pages.
package redisbus
