package cache

import (
	"testing"
	"time"

	"github.com/extadapter/eacore/internal/testutil"
)

func newTestL2(t *testing.T) *L2 {
	t.Helper()
	return NewL2(testutil.RedisClient(t), "test")
}

func TestL2SetAndGet(t *testing.T) {
	c := newTestL2(t)
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

func TestL2InvariantEErrorDoesNotOverwriteSuccess(t *testing.T) {
	c := newTestL2(t)
	if err := c.Set("k", success("good"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("k", failure(), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	env, ok, err := c.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if env.IsError {
		t.Fatalf("error write overwrote success entry in L2: %+v", env)
	}
}

func TestL2SetMany(t *testing.T) {
	c := newTestL2(t)
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

func TestL2DeletePattern(t *testing.T) {
	c := newTestL2(t)
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

	if _, ok, _ := c.Get("volume-eth"); !ok {
		t.Fatalf("expected volume-eth to survive")
	}
}

func TestL2DeleteReportsExistence(t *testing.T) {
	c := newTestL2(t)
	c.Set("k", success("v"), time.Minute)

	existed, err := c.Delete("k")
	if err != nil || !existed {
		t.Fatalf("Delete: existed=%v err=%v", existed, err)
	}

	existed, err = c.Delete("k")
	if err != nil || existed {
		t.Fatalf("expected second delete to report absence, got existed=%v err=%v", existed, err)
	}
}
