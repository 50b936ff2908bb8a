// Package protocol defines the command table understood by the redisbus development store.
//
// Frames on the wire are plain RESP, decoded by the server's listener; this package turns
// a decoded argument vector into a validated Command: it resolves the command name, checks
// arity the way the store reports it, and parses the options that carry typed values
// (expiration on SET and EXPIRE).
//
// Example usage:
//
//	cmd, err := protocol.Parse([][]byte{[]byte("SET"), []byte("greeting"), []byte("hi"), []byte("EX"), []byte("60")})
//	if err != nil {
//		conn.WriteError(err.Error())
//		return
//	}
//	// cmd.Type == protocol.CmdSet, cmd.Key == "greeting", cmd.Args == []string{"hi"}, cmd.TTL == time.Minute
//
// Supported commands:
//   - Connection: PING, ECHO, HELLO, CLIENT, QUIT
//   - Keys and strings: GET, SET, DEL, EXISTS, TYPE, EXPIRE, TTL, PERSIST
//   - Sets: SADD, SREM, SMEMBERS, SISMEMBER, SCARD
//   - Hashes: HGET, HSET, HDEL, HGETALL
//   - Pub/sub: PUBLISH, SUBSCRIBE, PSUBSCRIBE
//   - Server: FLUSHALL, FLUSHDB
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CommandType identifies a supported command.
type CommandType uint8

const (
	CmdUnknown    CommandType = iota
	CmdPing                   // PING [message]
	CmdEcho                   // ECHO message
	CmdHello                  // HELLO [protover ...]
	CmdClient                 // CLIENT subcommand [args...]
	CmdQuit                   // QUIT
	CmdGet                    // GET key
	CmdSet                    // SET key value [EX seconds|PX milliseconds]
	CmdDel                    // DEL key [key ...]
	CmdExists                 // EXISTS key [key ...]
	CmdType                   // TYPE key
	CmdExpire                 // EXPIRE key seconds
	CmdTTL                    // TTL key
	CmdPersist                // PERSIST key
	CmdSAdd                   // SADD key member [member ...]
	CmdSRem                   // SREM key member [member ...]
	CmdSMembers               // SMEMBERS key
	CmdSIsMember              // SISMEMBER key member
	CmdSCard                  // SCARD key
	CmdHGet                   // HGET key field
	CmdHSet                   // HSET key field value [field value ...]
	CmdHDel                   // HDEL key field [field ...]
	CmdHGetAll                // HGETALL key
	CmdPublish                // PUBLISH channel message
	CmdSubscribe              // SUBSCRIBE channel [channel ...]
	CmdPSubscribe             // PSUBSCRIBE pattern [pattern ...]
	CmdFlushAll               // FLUSHALL [ASYNC|SYNC]
	CmdFlushDB                // FLUSHDB [ASYNC|SYNC]
)

// descriptor carries the static properties of a command. Arity counts the command name
// itself; a negative arity means "at least -arity arguments".
type descriptor struct {
	typ   CommandType
	arity int
	keyed bool
}

var table = map[string]descriptor{
	"ping":       {CmdPing, -1, false},
	"echo":       {CmdEcho, 2, false},
	"hello":      {CmdHello, -1, false},
	"client":     {CmdClient, -2, false},
	"quit":       {CmdQuit, 1, false},
	"get":        {CmdGet, 2, true},
	"set":        {CmdSet, -3, true},
	"del":        {CmdDel, -2, false},
	"exists":     {CmdExists, -2, false},
	"type":       {CmdType, 2, true},
	"expire":     {CmdExpire, 3, true},
	"ttl":        {CmdTTL, 2, true},
	"persist":    {CmdPersist, 2, true},
	"sadd":       {CmdSAdd, -3, true},
	"srem":       {CmdSRem, -3, true},
	"smembers":   {CmdSMembers, 2, true},
	"sismember":  {CmdSIsMember, 3, true},
	"scard":      {CmdSCard, 2, true},
	"hget":       {CmdHGet, 3, true},
	"hset":       {CmdHSet, -4, true},
	"hdel":       {CmdHDel, -3, true},
	"hgetall":    {CmdHGetAll, 2, true},
	"publish":    {CmdPublish, 3, false},
	"subscribe":  {CmdSubscribe, -2, false},
	"psubscribe": {CmdPSubscribe, -2, false},
	"flushall":   {CmdFlushAll, -1, false},
	"flushdb":    {CmdFlushDB, -1, false},
}

// Error is a reply-level error. Its text is sent to the client verbatim, so it already
// carries the store's error prefix (ERR, WRONGTYPE, ...).
type Error string

func (e Error) Error() string { return string(e) }

// ErrSyntax is returned for malformed command options.
const ErrSyntax = Error("ERR syntax error")

func errUnknownCommand(name string) error {
	return Error(fmt.Sprintf("ERR unknown command '%s'", name))
}

func errArity(name string) error {
	return Error(fmt.Sprintf("ERR wrong number of arguments for '%s' command", name))
}

func errNotInteger() error {
	return Error("ERR value is not an integer or out of range")
}

func errInvalidExpire(name string) error {
	return Error(fmt.Sprintf("ERR invalid expire time in '%s' command", name))
}

// Command is a validated client request.
type Command struct {
	Type CommandType
	Name string        // lower-case command name
	Key  string        // target key for keyed commands
	Args []string      // remaining arguments, options already consumed
	TTL  time.Duration // expiration parsed from SET options or EXPIRE
}

// Parse validates a decoded argument vector and returns the command it describes.
func Parse(argv [][]byte) (*Command, error) {
	if len(argv) == 0 {
		return nil, Error("ERR empty command")
	}

	name := strings.ToLower(string(argv[0]))
	d, ok := table[name]
	if !ok {
		return nil, errUnknownCommand(string(argv[0]))
	}
	if (d.arity > 0 && len(argv) != d.arity) || (d.arity < 0 && len(argv) < -d.arity) {
		return nil, errArity(name)
	}

	cmd := &Command{Type: d.typ, Name: name}
	rest := argv[1:]
	if d.keyed {
		cmd.Key = string(rest[0])
		rest = rest[1:]
	}
	cmd.Args = make([]string, len(rest))
	for i, a := range rest {
		cmd.Args[i] = string(a)
	}

	switch d.typ {
	case CmdSet:
		return parseSet(cmd)
	case CmdExpire:
		secs, err := strconv.ParseInt(cmd.Args[0], 10, 64)
		if err != nil {
			return nil, errNotInteger()
		}
		cmd.TTL, err = expireDuration(name, secs, time.Second)
		if err != nil {
			return nil, err
		}
		cmd.Args = nil
	case CmdHSet:
		if len(cmd.Args)%2 != 0 {
			return nil, errArity(name)
		}
	}
	return cmd, nil
}

// parseSet consumes the expiration options of SET, leaving only the value in Args.
func parseSet(cmd *Command) (*Command, error) {
	opts := cmd.Args[1:]
	cmd.Args = cmd.Args[:1]

	for i := 0; i < len(opts); i++ {
		opt := strings.ToUpper(opts[i])
		switch opt {
		case "EX", "PX":
			if cmd.TTL != 0 || i+1 >= len(opts) {
				return nil, ErrSyntax
			}
			n, err := strconv.ParseInt(opts[i+1], 10, 64)
			if err != nil {
				return nil, errNotInteger()
			}
			if n <= 0 {
				return nil, errInvalidExpire(cmd.Name)
			}
			unit := time.Second
			if opt == "PX" {
				unit = time.Millisecond
			}
			cmd.TTL, err = expireDuration(cmd.Name, n, unit)
			if err != nil {
				return nil, err
			}
			i++
		default:
			return nil, ErrSyntax
		}
	}
	return cmd, nil
}

// expireDuration converts n units to a duration, refusing values that overflow it.
func expireDuration(name string, n int64, unit time.Duration) (time.Duration, error) {
	if n > math.MaxInt64/int64(unit) || n < math.MinInt64/int64(unit) {
		return 0, errInvalidExpire(name)
	}
	return time.Duration(n) * unit, nil
}

// Pairs turns HSET's field/value arguments into a map. Later duplicates win.
func (c *Command) Pairs() map[string]string {
	out := make(map[string]string, len(c.Args)/2)
	for i := 0; i+1 < len(c.Args); i += 2 {
		out[c.Args[i]] = c.Args[i+1]
	}
	return out
}
