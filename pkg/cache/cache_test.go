package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheBasicOperations(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Set("key1", "value1", 0)

	value, ok, err := c.Get("key1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value1", value)

	assert.Equal(t, 1, c.Exists("key1"))
	assert.Equal(t, 2, c.Exists("key1", "key1", "missing"))

	assert.Equal(t, 1, c.Del("key1", "missing"))
	assert.Equal(t, 0, c.Exists("key1"))

	_, ok, err = c.Get("key1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheExpiration(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Set("temp_key", "temp_value", 100*time.Millisecond)

	value, ok, err := c.Get("temp_key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "temp_value", value)
	assert.Greater(t, c.TTL("temp_key"), time.Duration(0))

	time.Sleep(150 * time.Millisecond)

	_, ok, err = c.Get("temp_key")
	require.NoError(t, err)
	assert.False(t, ok, "key should have expired")
	assert.Equal(t, -2*time.Second, c.TTL("temp_key"))
	assert.Equal(t, 1, c.DeleteExpired())
	assert.Equal(t, 0, c.Len())
}

func TestCacheExpireAndPersist(t *testing.T) {
	c := New(0)
	defer c.Close()

	assert.False(t, c.Expire("missing", time.Minute))

	c.Set("k", "v", 0)
	assert.Equal(t, -1*time.Second, c.TTL("k"))
	assert.False(t, c.Persist("k"), "no timeout to remove")

	assert.True(t, c.Expire("k", time.Minute))
	assert.Greater(t, c.TTL("k"), 50*time.Second)

	assert.True(t, c.Persist("k"))
	assert.Equal(t, -1*time.Second, c.TTL("k"))

	assert.True(t, c.Expire("k", 0))
	assert.Equal(t, 0, c.Exists("k"))
}

func TestCacheJanitor(t *testing.T) {
	c := New(20 * time.Millisecond)
	defer c.Close()

	c.Set("short", "v", 10*time.Millisecond)
	c.Set("long", "v", 0)

	assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestCacheSetOperations(t *testing.T) {
	c := New(0)
	defer c.Close()

	added, err := c.SAdd("set1", "member1", "member2", "member3")
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = c.SAdd("set1", "member2", "member4")
	require.NoError(t, err)
	assert.Equal(t, 1, added, "only member4 is new")

	isMember, err := c.SIsMember("set1", "member1")
	require.NoError(t, err)
	assert.True(t, isMember)

	isMember, err = c.SIsMember("set1", "nonexistent")
	require.NoError(t, err)
	assert.False(t, isMember)

	members, err := c.SMembers("set1")
	require.NoError(t, err)
	assert.Equal(t, []string{"member1", "member2", "member3", "member4"}, members)

	removed, err := c.SRem("set1", "member1", "member2", "nope")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := c.SCard("set1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCacheEmptySetIsDeleted(t *testing.T) {
	c := New(0)
	defer c.Close()

	_, err := c.SAdd("users", "a")
	require.NoError(t, err)
	_, err = c.SRem("users", "a")
	require.NoError(t, err)

	assert.Equal(t, 0, c.Exists("users"))
	members, err := c.SMembers("users")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCacheHashOperations(t *testing.T) {
	c := New(0)
	defer c.Close()

	created, err := c.HSet("hash1", map[string]string{"field1": "value1", "field2": "value2"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = c.HSet("hash1", map[string]string{"field2": "changed", "field3": "value3"})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	value, ok, err := c.HGet("hash1", "field1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value1", value)

	hash, err := c.HGetAll("hash1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"field1": "value1", "field2": "changed", "field3": "value3"}, hash)

	removed, err := c.HDel("hash1", "field1", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err = c.HGet("hash1", "field1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.HDel("hash1", "field2", "field3")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Exists("hash1"), "empty hash should be removed")
}

func TestCacheWrongType(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Set("str", "v", 0)
	_, err := c.SAdd("str", "m")
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = c.HGetAll("str")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = c.SAdd("set", "m")
	require.NoError(t, err)
	_, _, err = c.Get("set")
	assert.ErrorIs(t, err, ErrWrongType)

	kind, ok := c.Type("set")
	assert.True(t, ok)
	assert.Equal(t, "set", kind.String())
}

func TestCacheFlush(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Set("a", "1", 0)
	_, err := c.SAdd("b", "x")
	require.NoError(t, err)

	c.Flush()
	assert.Equal(t, 0, c.Len())
}
