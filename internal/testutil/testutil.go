// Package testutil starts throwaway development stores for tests.
package testutil

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cachemir/redisbus/internal/server"
	"github.com/cachemir/redisbus/pkg/config"
)

// StartServer runs a development store on a free loopback port until the test ends and
// returns it with a client configuration pointing at it.
func StartServer(t testing.TB) (*server.Server, *config.ClientConfig) {
	t.Helper()

	srv := StartServerOn(t, 0)
	return srv, ClientConfig(t, srv.Addr().String())
}

// StartServerOn runs a development store on the given loopback port until the test ends.
// Port 0 picks a free one.
func StartServerOn(t testing.TB, port int) *server.Server {
	t.Helper()

	scfg := config.DefaultServerConfig()
	scfg.Port = port
	scfg.CleanupInterval = 0

	// Connection goroutines may still log after the test returns, so no zaptest here.
	srv := server.New(scfg, zap.NewNop())
	require.NoError(t, srv.Listen())

	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

// ClientConfig returns a client configuration for addr with timeouts short enough for tests.
func ClientConfig(t testing.TB, addr string) *config.ClientConfig {
	t.Helper()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := config.DefaultClientConfig()
	cfg.Host = host
	cfg.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	cfg.DialTimeout = time.Second
	cfg.ConnectTimeout = 2 * time.Second
	cfg.StopTimeout = 2 * time.Second
	return cfg
}

// ClosedAddr returns a loopback address nothing listens on.
func ClosedAddr(t testing.TB) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}
