// Package testutil provides shared test fixtures used across package test
// files — primarily a miniredis-backed *redis.Client, so cache, lock, and
// future packages that talk to Redis don't each hand-roll the same setup.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// RedisClient starts an in-memory miniredis instance bound to t's lifecycle
// and returns a client connected to it.
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}
