package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript enforces invariant E server-side: an error envelope only
// overwrites an existing value if that value is missing or is itself an
// error envelope. Expiry is left to Redis: every value is written with a PX
// ttl, so an expired value reads as missing. This mirrors the intent of
// the teacher's deleteUnsafe-guarded writes but needs an atomic primitive
// once the cache is shared across processes, since a read-then-write from
// Go would race with another writer instance.
//
// KEYS[1] = cache key
// ARGV[1] = new envelope JSON
// ARGV[2] = new envelope isError ("1" or "0")
// ARGV[3] = ttl milliseconds
var casScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if existing and ARGV[2] == "1" then
  local ok, decoded = pcall(cjson.decode, existing)
  if ok and decoded["isError"] == false then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// L2 is a Redis-backed remote cache tier, wrapping *redis.Client. It is the
// "remote variant" referenced by spec §4.2: multiple adapter instances
// share one L2, so invariant E must be enforced with a Lua script rather
// than a Go-side check-then-set.
type L2 struct {
	client *redis.Client
	prefix string
}

// NewL2 wraps an existing redis client. prefix namespaces every key
// (CACHE_PREFIX, §6).
func NewL2(client *redis.Client, prefix string) *L2 {
	return &L2{client: client, prefix: prefix}
}

func (c *L2) fullKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get fetches and JSON-decodes the envelope at key.
func (c *L2) Get(key string) (*Envelope, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: l2 get %q: %w", key, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("cache: l2 decode %q: %w", key, err)
	}
	if env.Expired(time.Now()) {
		return nil, false, nil
	}
	return &env, true, nil
}

// Set writes env at key with ttl, enforcing invariant E via casScript.
func (c *L2) Set(key string, env *Envelope, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env.ExpiresAt = time.Now().Add(ttl)
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: l2 encode %q: %w", key, err)
	}

	isError := "0"
	if env.IsError {
		isError = "1"
	}

	_, err = casScript.Run(ctx, c.client, []string{c.fullKey(key)}, string(payload), isError, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("cache: l2 set %q: %w", key, err)
	}
	return nil
}

// SetMany writes every item at ttl, one casScript invocation per key
// (Redis has no multi-key Lua CAS without a cross-slot EVAL, which would
// break on a clustered deployment, so this is not atomic across keys).
func (c *L2) SetMany(items []Item, ttl time.Duration) error {
	for _, item := range items {
		if err := c.Set(item.Key, item.Env, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key, reporting whether it existed.
func (c *L2) Delete(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := c.client.Del(ctx, c.fullKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: l2 delete %q: %w", key, err)
	}
	return n > 0, nil
}

// DeletePattern scans for keys matching a trailing-wildcard pattern and
// deletes them in batches, returning the count removed. Uses SCAN rather
// than KEYS to avoid blocking a shared Redis instance.
func (c *L2) DeletePattern(pattern string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var cursor uint64
	count := 0
	scanPattern := c.fullKey(pattern)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, scanPattern, 200).Result()
		if err != nil {
			return count, fmt.Errorf("cache: l2 scan %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return count, fmt.Errorf("cache: l2 delete-pattern %q: %w", pattern, err)
			}
			count += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
