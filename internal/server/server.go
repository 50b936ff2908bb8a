// Package server implements the redisbus development store: a small RESP server that
// speaks enough of the store protocol for the client library, its tests and local work.
//
// The server keeps all data in memory in a cache.Cache and brokers pub/sub messages
// between its own connections. It is not a replacement for a production store: there is
// no persistence, replication, authentication or database selection.
//
// Architecture:
//   - RESP framing and connection handling by redcon
//   - Command validation by the protocol package
//   - A handler table keyed by command type
//   - Channel and pattern subscriptions brokered by redcon.PubSub
//   - Connection limit and graceful shutdown that also drops subscribers
//
// Example usage:
//
//	srv := server.New(config.DefaultServerConfig(), logger)
//	go func() {
//		if err := srv.Start(); err != nil {
//			logger.Fatal("server failed", zap.Error(err))
//		}
//	}()
//	defer srv.Stop()
//
// Supported commands:
//   - Connection: PING, ECHO, HELLO (refused, clients fall back to RESP2), CLIENT, QUIT
//   - Keys and strings: GET, SET [EX|PX], DEL, EXISTS, TYPE, EXPIRE, TTL, PERSIST
//   - Sets: SADD, SREM, SMEMBERS, SISMEMBER, SCARD
//   - Hashes: HGET, HSET, HDEL, HGETALL
//   - Pub/sub: PUBLISH, SUBSCRIBE, PSUBSCRIBE
//   - Server: FLUSHALL, FLUSHDB
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/redcon"
	"go.uber.org/zap"

	"github.com/cachemir/redisbus/pkg/cache"
	"github.com/cachemir/redisbus/pkg/config"
	"github.com/cachemir/redisbus/pkg/logging"
	"github.com/cachemir/redisbus/pkg/protocol"
)

// ErrNotListening is returned by Serve when Listen has not been called.
var ErrNotListening = errors.New("server is not listening")

type handlerFunc func(conn redcon.Conn, cmd *protocol.Command)

// Server is a development store instance.
//
// Example:
//
//	srv := server.New(cfg, logger)
//	if err := srv.Listen(); err != nil {
//		return err
//	}
//	fmt.Println("listening on", srv.Addr())
//	go srv.Serve()
//
//	// Later, to stop the server
//	srv.Stop()
type Server struct {
	cfg      *config.ServerConfig
	cache    *cache.Cache  // keyspace
	ps       redcon.PubSub // channel and pattern subscribers
	logger   *zap.Logger
	handlers map[protocol.CommandType]handlerFunc

	mu       sync.Mutex
	ln       *trackingListener
	rs       *redcon.Server
	stopping bool
}

// New creates a Server for cfg. Nothing listens until Listen or Start is called.
// A nil logger disables logging.
func New(cfg *config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		cache:  cache.New(cfg.CleanupInterval),
		logger: logging.OrNop(logger).Named(logging.ComponentServer),
	}
	s.handlers = s.commandHandlers()
	return s
}

// Listen binds the configured address. With port 0 the system picks a free port, which
// Addr reports afterwards.
func (s *Server) Listen() error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}

	s.mu.Lock()
	s.ln = newTrackingListener(ln)
	s.mu.Unlock()

	s.logger.Info("development store listening", zap.Stringer("addr", ln.Addr()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts and serves connections until Stop is called. It returns nil after Stop.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	if ln == nil {
		s.mu.Unlock()
		return ErrNotListening
	}
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	rs := redcon.NewServer(ln.Addr().String(), s.handle, s.accept, s.closed)
	s.rs = rs
	s.mu.Unlock()

	err := rs.Serve(ln)
	if s.isStopping() {
		return nil
	}
	return err
}

// Start is Listen followed by Serve. It blocks until the server stops.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop closes the listener and every open connection, subscribers included, and stops
// the expiration sweep. Calling Stop more than once is harmless.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	ln, rs := s.ln, s.rs
	s.mu.Unlock()

	s.cache.Close()
	if ln == nil {
		return nil
	}

	var err error
	if rs == nil || rs.Close() != nil {
		// Serve has not handed the listener to redcon yet.
		err = ln.Close()
	}
	ln.closeAll()
	s.logger.Info("development store stopped")
	return err
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// accept enforces the connection limit. The tracking listener already counts conn.
func (s *Server) accept(conn redcon.Conn) bool {
	if n := s.ln.count(); n > s.cfg.MaxConns {
		s.logger.Warn("connection refused, limit reached",
			zap.String("remote", conn.RemoteAddr()),
			zap.Int("max_conns", s.cfg.MaxConns))
		return false
	}
	s.logger.Debug("connection accepted", zap.String("remote", conn.RemoteAddr()))
	return true
}

func (s *Server) closed(conn redcon.Conn, err error) {
	s.logger.Debug("connection closed", zap.String("remote", conn.RemoteAddr()), zap.Error(err))
}

// handle validates one request and routes it to its handler.
func (s *Server) handle(conn redcon.Conn, rc redcon.Command) {
	cmd, err := protocol.Parse(rc.Args)
	if err != nil {
		conn.WriteError(err.Error())
		return
	}

	handler, ok := s.handlers[cmd.Type]
	if !ok {
		conn.WriteError(fmt.Sprintf("ERR unknown command '%s'", cmd.Name))
		return
	}
	handler(conn, cmd)
}

func (s *Server) commandHandlers() map[protocol.CommandType]handlerFunc {
	return map[protocol.CommandType]handlerFunc{
		protocol.CmdPing:       s.handlePing,
		protocol.CmdEcho:       s.handleEcho,
		protocol.CmdHello:      s.handleHello,
		protocol.CmdClient:     s.handleClient,
		protocol.CmdQuit:       s.handleQuit,
		protocol.CmdGet:        s.handleGet,
		protocol.CmdSet:        s.handleSet,
		protocol.CmdDel:        s.handleDel,
		protocol.CmdExists:     s.handleExists,
		protocol.CmdType:       s.handleType,
		protocol.CmdExpire:     s.handleExpire,
		protocol.CmdTTL:        s.handleTTL,
		protocol.CmdPersist:    s.handlePersist,
		protocol.CmdSAdd:       s.handleSAdd,
		protocol.CmdSRem:       s.handleSRem,
		protocol.CmdSMembers:   s.handleSMembers,
		protocol.CmdSIsMember:  s.handleSIsMember,
		protocol.CmdSCard:      s.handleSCard,
		protocol.CmdHGet:       s.handleHGet,
		protocol.CmdHSet:       s.handleHSet,
		protocol.CmdHDel:       s.handleHDel,
		protocol.CmdHGetAll:    s.handleHGetAll,
		protocol.CmdPublish:    s.handlePublish,
		protocol.CmdSubscribe:  s.handleSubscribe,
		protocol.CmdPSubscribe: s.handlePSubscribe,
		protocol.CmdFlushAll:   s.handleFlush,
		protocol.CmdFlushDB:    s.handleFlush,
	}
}

func (s *Server) handlePing(conn redcon.Conn, cmd *protocol.Command) {
	if len(cmd.Args) > 0 {
		conn.WriteBulkString(cmd.Args[0])
		return
	}
	conn.WriteString("PONG")
}

func (s *Server) handleEcho(conn redcon.Conn, cmd *protocol.Command) {
	conn.WriteBulkString(cmd.Args[0])
}

// handleHello refuses protocol negotiation; clients then stay on RESP2.
func (s *Server) handleHello(conn redcon.Conn, _ *protocol.Command) {
	conn.WriteError("NOPROTO unsupported protocol version")
}

// handleClient acknowledges CLIENT SETNAME, SETINFO and friends without storing anything.
func (s *Server) handleClient(conn redcon.Conn, _ *protocol.Command) {
	conn.WriteString("OK")
}

func (s *Server) handleQuit(conn redcon.Conn, _ *protocol.Command) {
	conn.WriteString("OK")
	_ = conn.Close()
}

// handleGet returns the string at key, or a null reply when the key doesn't exist.
func (s *Server) handleGet(conn redcon.Conn, cmd *protocol.Command) {
	value, ok, err := s.cache.Get(cmd.Key)
	switch {
	case err != nil:
		conn.WriteError(err.Error())
	case !ok:
		conn.WriteNull()
	default:
		conn.WriteBulkString(value)
	}
}

// handleSet stores a string, replacing any previous value and type.
func (s *Server) handleSet(conn redcon.Conn, cmd *protocol.Command) {
	s.cache.Set(cmd.Key, cmd.Args[0], cmd.TTL)
	conn.WriteString("OK")
}

// handleDel returns how many of the given keys existed.
func (s *Server) handleDel(conn redcon.Conn, cmd *protocol.Command) {
	conn.WriteInt(s.cache.Del(cmd.Args...))
}

// handleExists counts existing keys; a key named twice counts twice.
func (s *Server) handleExists(conn redcon.Conn, cmd *protocol.Command) {
	conn.WriteInt(s.cache.Exists(cmd.Args...))
}

func (s *Server) handleType(conn redcon.Conn, cmd *protocol.Command) {
	kind, ok := s.cache.Type(cmd.Key)
	if !ok {
		conn.WriteString("none")
		return
	}
	conn.WriteString(kind.String())
}

func (s *Server) handleExpire(conn redcon.Conn, cmd *protocol.Command) {
	conn.WriteInt(boolInt(s.cache.Expire(cmd.Key, cmd.TTL)))
}

// handleTTL replies -2 for a missing key, -1 for a key without expiration and the
// remaining seconds otherwise.
func (s *Server) handleTTL(conn redcon.Conn, cmd *protocol.Command) {
	ttl := s.cache.TTL(cmd.Key)
	if ttl < 0 {
		conn.WriteInt(int(ttl / time.Second))
		return
	}
	conn.WriteInt(int((ttl + time.Second/2) / time.Second))
}

func (s *Server) handlePersist(conn redcon.Conn, cmd *protocol.Command) {
	conn.WriteInt(boolInt(s.cache.Persist(cmd.Key)))
}

func (s *Server) handleSAdd(conn redcon.Conn, cmd *protocol.Command) {
	writeCount(conn)(s.cache.SAdd(cmd.Key, cmd.Args...))
}

func (s *Server) handleSRem(conn redcon.Conn, cmd *protocol.Command) {
	writeCount(conn)(s.cache.SRem(cmd.Key, cmd.Args...))
}

func (s *Server) handleSMembers(conn redcon.Conn, cmd *protocol.Command) {
	members, err := s.cache.SMembers(cmd.Key)
	if err != nil {
		conn.WriteError(err.Error())
		return
	}
	conn.WriteArray(len(members))
	for _, m := range members {
		conn.WriteBulkString(m)
	}
}

func (s *Server) handleSIsMember(conn redcon.Conn, cmd *protocol.Command) {
	ok, err := s.cache.SIsMember(cmd.Key, cmd.Args[0])
	if err != nil {
		conn.WriteError(err.Error())
		return
	}
	conn.WriteInt(boolInt(ok))
}

func (s *Server) handleSCard(conn redcon.Conn, cmd *protocol.Command) {
	writeCount(conn)(s.cache.SCard(cmd.Key))
}

func (s *Server) handleHGet(conn redcon.Conn, cmd *protocol.Command) {
	value, ok, err := s.cache.HGet(cmd.Key, cmd.Args[0])
	switch {
	case err != nil:
		conn.WriteError(err.Error())
	case !ok:
		conn.WriteNull()
	default:
		conn.WriteBulkString(value)
	}
}

// handleHSet returns how many fields were added, not updated.
func (s *Server) handleHSet(conn redcon.Conn, cmd *protocol.Command) {
	writeCount(conn)(s.cache.HSet(cmd.Key, cmd.Pairs()))
}

func (s *Server) handleHDel(conn redcon.Conn, cmd *protocol.Command) {
	writeCount(conn)(s.cache.HDel(cmd.Key, cmd.Args...))
}

// handleHGetAll replies with field/value pairs in field order.
func (s *Server) handleHGetAll(conn redcon.Conn, cmd *protocol.Command) {
	fields, err := s.cache.HGetAll(cmd.Key)
	if err != nil {
		conn.WriteError(err.Error())
		return
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	conn.WriteArray(2 * len(names))
	for _, f := range names {
		conn.WriteBulkString(f)
		conn.WriteBulkString(fields[f])
	}
}

// handlePublish returns the number of subscribers the message was delivered to.
func (s *Server) handlePublish(conn redcon.Conn, cmd *protocol.Command) {
	conn.WriteInt(s.ps.Publish(cmd.Args[0], cmd.Args[1]))
}

// handleSubscribe hands the connection over to the pub/sub broker. From here on redcon
// owns the connection and answers SUBSCRIBE, UNSUBSCRIBE, PING and QUIT itself.
func (s *Server) handleSubscribe(conn redcon.Conn, cmd *protocol.Command) {
	for _, channel := range cmd.Args {
		s.ps.Subscribe(conn, channel)
	}
	s.logger.Debug("subscribed", zap.String("remote", conn.RemoteAddr()), zap.Strings("channels", cmd.Args))
}

func (s *Server) handlePSubscribe(conn redcon.Conn, cmd *protocol.Command) {
	for _, pattern := range cmd.Args {
		s.ps.Psubscribe(conn, pattern)
	}
	s.logger.Debug("subscribed", zap.String("remote", conn.RemoteAddr()), zap.Strings("patterns", cmd.Args))
}

// handleFlush serves FLUSHALL and FLUSHDB; the store has a single database.
func (s *Server) handleFlush(conn redcon.Conn, _ *protocol.Command) {
	s.cache.Flush()
	conn.WriteString("OK")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// writeCount returns a writer for (count, error) results of the cache.
func writeCount(conn redcon.Conn) func(n int, err error) {
	return func(n int, err error) {
		if err != nil {
			conn.WriteError(err.Error())
			return
		}
		conn.WriteInt(n)
	}
}
