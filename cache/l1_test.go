package cache

import (
	"testing"
	"time"
)

func success(data string) *Envelope {
	return &Envelope{Data: []byte(data), StatusCode: 200, IsError: false}
}

func failure() *Envelope {
	return &Envelope{StatusCode: 502, IsError: true}
}

func TestL1GetMiss(t *testing.T) {
	c := NewL1(10)
	_, ok, err := c.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss")
	}
}

func TestL1SetAndGet(t *testing.T) {
	c := NewL1(10)
	if err := c.Set("k", success("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	env, ok, err := c.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(env.Data) != "v" {
		t.Fatalf("got %q", env.Data)
	}
}

func TestL1ExpiresLazily(t *testing.T) {
	c := NewL1(10)
	if err := c.Set("k", success("v"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry should be swept on read, size=%d", c.Size())
	}
}

func TestL1EvictsEarliestExpiry(t *testing.T) {
	c := NewL1(2)
	c.Set("soon", success("1"), time.Second)       // earliest to expire
	c.Set("later", success("2"), time.Hour)        // long-lived, unread
	c.Get("soon")                                  // reading "soon" must not save it from eviction
	c.Set("latest", success("3"), 2*time.Hour)

	if _, ok, _ := c.Get("soon"); ok {
		t.Fatalf("expected 'soon' evicted as earliest-to-expire, regardless of recent read")
	}
	if _, ok, _ := c.Get("later"); !ok {
		t.Fatalf("expected 'later' to survive (longer TTL), even though unread")
	}
	if _, ok, _ := c.Get("latest"); !ok {
		t.Fatalf("expected 'latest' present")
	}
}

func TestL1InvariantEErrorDoesNotOverwriteSuccess(t *testing.T) {
	c := NewL1(10)
	c.Set("k", success("good"), time.Minute)
	if err := c.Set("k", failure(), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	env, ok, err := c.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if env.IsError || string(env.Data) != "good" {
		t.Fatalf("error write overwrote success entry: %+v", env)
	}
}

func TestL1InvariantEErrorOverwritesExpiredSuccess(t *testing.T) {
	c := NewL1(10)
	c.Set("k", success("stale"), -time.Second)
	if err := c.Set("k", failure(), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	env, ok, err := c.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !env.IsError {
		t.Fatalf("expected error envelope to replace expired success entry")
	}
}

func TestL1InvariantESuccessOverwritesError(t *testing.T) {
	c := NewL1(10)
	c.Set("k", failure(), time.Minute)
	if err := c.Set("k", success("recovered"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	env, ok, err := c.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if env.IsError {
		t.Fatalf("success write should replace a prior error entry")
	}
}

func TestL1SetMany(t *testing.T) {
	c := NewL1(10)
	err := c.SetMany([]Item{
		{Key: "a", Env: success("1")},
		{Key: "b", Env: success("2")},
	}, time.Minute)
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	if _, ok, _ := c.Get("a"); !ok {
		t.Fatalf("expected 'a' present after SetMany")
	}
	if _, ok, _ := c.Get("b"); !ok {
		t.Fatalf("expected 'b' present after SetMany")
	}
}

func TestL1SetManyHonorsInvariantEPerKey(t *testing.T) {
	c := NewL1(10)
	c.Set("a", success("good"), time.Minute)

	err := c.SetMany([]Item{
		{Key: "a", Env: failure()},
		{Key: "b", Env: success("new")},
	}, time.Minute)
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	env, _, _ := c.Get("a")
	if env.IsError {
		t.Fatalf("expected invariant E to protect 'a' even within a batch write")
	}
	env, _, _ = c.Get("b")
	if env.IsError {
		t.Fatalf("expected 'b' to be written")
	}
}

func TestL1DeletePattern(t *testing.T) {
	c := NewL1(10)
	c.Set("price-eth", success("1"), time.Minute)
	c.Set("price-btc", success("2"), time.Minute)
	c.Set("volume-eth", success("3"), time.Minute)

	n, err := c.DeletePattern("price-*")
	if err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if c.Size() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", c.Size())
	}
}
