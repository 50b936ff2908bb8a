// Package cache provides the in-memory storage engine behind the redisbus development store.
//
// The engine keeps three kinds of values under string keys, with optional expiration:
//
//   - Strings: plain key-value pairs
//   - Sets: unordered collections of unique members
//   - Hashes: field-value mappings
//
// Collections follow the store's semantics: a set or hash that loses its last member
// disappears, and reading a key through the wrong kind of operation fails with
// ErrWrongType instead of silently returning nothing.
//
// Example usage:
//
//	c := cache.New(time.Minute)
//	defer c.Close()
//
//	c.Set("greeting", "hello", 0)
//	value, ok, err := c.Get("greeting")
//
//	c.SAdd("users", "alice", "bob")
//	members, err := c.SMembers("users")
//
//	c.HSet("user:alice", map[string]string{"email": "alice@example.com"})
//	profile, err := c.HGetAll("user:alice")
//
// All operations are safe for concurrent use. Expired keys are removed lazily on access
// and periodically by a background janitor.
package cache

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrWrongType is returned when an operation targets a key holding a different kind of value.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Kind identifies what an entry stores.
type Kind uint8

const (
	KindString Kind = iota
	KindSet
	KindHash
)

// String returns the name the store reports for the kind (as TYPE does).
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	default:
		return "none"
	}
}

// entry is a single stored value. Exactly one of str, set or hash is meaningful,
// selected by kind.
type entry struct {
	kind      Kind
	str       string
	set       map[string]struct{}
	hash      map[string]string
	expiresAt time.Time // zero means no expiration
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache is a thread-safe in-memory keyspace.
type Cache struct {
	data map[string]*entry
	mu   sync.RWMutex

	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a Cache and starts the janitor that removes expired keys every interval.
// A non-positive interval disables the janitor; expired keys are then only dropped on access.
func New(interval time.Duration) *Cache {
	c := &Cache{
		data: make(map[string]*entry),
		stop: make(chan struct{}),
	}
	if interval > 0 {
		go c.janitor(interval)
	}
	return c
}

// Close stops the janitor. The cache stays usable afterwards.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.DeleteExpired()
		}
	}
}

// DeleteExpired removes every key whose expiration has passed and returns how many were removed.
func (c *Cache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.data {
		if e.expired(now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// lookup returns the live entry for key. Callers must hold c.mu (read or write).
func (c *Cache) lookup(key string) (*entry, bool) {
	e, ok := c.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e, true
}

// lookupKind is lookup plus a kind check.
func (c *Cache) lookupKind(key string, kind Kind) (*entry, bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	if e.kind != kind {
		return nil, false, ErrWrongType
	}
	return e, true, nil
}

// Get returns the string stored at key. ok is false when the key does not exist.
func (c *Cache) Get(key string) (value string, ok bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok, err := c.lookupKind(key, KindString)
	if !ok || err != nil {
		return "", false, err
	}
	return e.str, true, nil
}

// Set stores a string at key, replacing whatever was there. A positive ttl makes the key
// expire after that duration; zero keeps it until deleted.
func (c *Cache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{kind: KindString, str: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.data[key] = e
}

// Del removes the given keys and returns how many existed.
func (c *Cache) Del(keys ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if _, ok := c.lookup(key); ok {
			removed++
		}
		delete(c.data, key)
	}
	return removed
}

// Exists counts how many of the given keys exist. A key named twice counts twice.
func (c *Cache) Exists(keys ...string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, key := range keys {
		if _, ok := c.lookup(key); ok {
			n++
		}
	}
	return n
}

// Type reports the kind stored at key.
func (c *Cache) Type(key string) (Kind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.lookup(key)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Expire sets a timeout on key. It reports false when the key does not exist.
// A non-positive ttl deletes the key immediately.
func (c *Cache) Expire(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return false
	}
	if ttl <= 0 {
		delete(c.data, key)
		return true
	}
	e.expiresAt = time.Now().Add(ttl)
	return true
}

// TTL returns the remaining time to live of key, -1s when the key has no expiration
// and -2s when it does not exist.
func (c *Cache) TTL(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.lookup(key)
	if !ok {
		return -2 * time.Second
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second
	}
	return time.Until(e.expiresAt)
}

// Persist removes the expiration of key. It reports whether a timeout was removed.
func (c *Cache) Persist(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok || e.expiresAt.IsZero() {
		return false
	}
	e.expiresAt = time.Time{}
	return true
}

// SAdd adds members to the set at key, creating it if needed, and returns how many
// members were not already present.
func (c *Cache) SAdd(key string, members ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.lookupKind(key, KindSet)
	if err != nil {
		return 0, err
	}
	if !ok {
		e = &entry{kind: KindSet, set: make(map[string]struct{}, len(members))}
		c.data[key] = e
	}

	added := 0
	for _, m := range members {
		if _, present := e.set[m]; !present {
			e.set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

// SRem removes members from the set at key and returns how many were present.
// The key is deleted once the set is empty.
func (c *Cache) SRem(key string, members ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.lookupKind(key, KindSet)
	if !ok || err != nil {
		return 0, err
	}

	removed := 0
	for _, m := range members {
		if _, present := e.set[m]; present {
			delete(e.set, m)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(c.data, key)
	}
	return removed, nil
}

// SMembers returns the members of the set at key in lexical order.
// A missing key yields an empty slice.
func (c *Cache) SMembers(key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok, err := c.lookupKind(key, KindSet)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}

	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

// SIsMember reports whether member belongs to the set at key.
func (c *Cache) SIsMember(key, member string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok, err := c.lookupKind(key, KindSet)
	if !ok || err != nil {
		return false, err
	}
	_, present := e.set[member]
	return present, nil
}

// SCard returns the number of members in the set at key.
func (c *Cache) SCard(key string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok, err := c.lookupKind(key, KindSet)
	if !ok || err != nil {
		return 0, err
	}
	return len(e.set), nil
}

// HGet returns a single hash field.
func (c *Cache) HGet(key, field string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok, err := c.lookupKind(key, KindHash)
	if !ok || err != nil {
		return "", false, err
	}
	v, present := e.hash[field]
	return v, present, nil
}

// HSet writes the given fields into the hash at key, creating it if needed, and returns
// how many fields were newly created.
func (c *Cache) HSet(key string, fields map[string]string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.lookupKind(key, KindHash)
	if err != nil {
		return 0, err
	}
	if !ok {
		e = &entry{kind: KindHash, hash: make(map[string]string, len(fields))}
		c.data[key] = e
	}

	created := 0
	for f, v := range fields {
		if _, present := e.hash[f]; !present {
			created++
		}
		e.hash[f] = v
	}
	return created, nil
}

// HDel removes fields from the hash at key and returns how many existed.
// The key is deleted once the hash is empty.
func (c *Cache) HDel(key string, fields ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.lookupKind(key, KindHash)
	if !ok || err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range fields {
		if _, present := e.hash[f]; present {
			delete(e.hash, f)
			removed++
		}
	}
	if len(e.hash) == 0 {
		delete(c.data, key)
	}
	return removed, nil
}

// HGetAll returns a copy of the hash at key. A missing key yields an empty map.
func (c *Cache) HGetAll(key string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok, err := c.lookupKind(key, KindHash)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if !ok {
		return out, nil
	}
	for f, v := range e.hash {
		out[f] = v
	}
	return out, nil
}

// Flush removes every key.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*entry)
}

// Len returns the number of stored keys, expired-but-not-collected ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}
