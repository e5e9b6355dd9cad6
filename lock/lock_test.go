package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/extadapter/eacore/internal/testutil"
)

func TestAcquireAndRelease(t *testing.T) {
	client := testutil.RedisClient(t)
	d := New(client, time.Second, 3, 10*time.Millisecond)

	l, err := d.Acquire(context.Background(), "price")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}

	exists, err := client.Exists(context.Background(), "lock:price").Result()
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists != 0 {
		t.Fatalf("expected lock key removed after release")
	}
}

func TestAcquireFailsFatallyWhenHeld(t *testing.T) {
	client := testutil.RedisClient(t)
	d := New(client, time.Second, 2, 5*time.Millisecond)

	holder, err := d.Acquire(context.Background(), "price")
	if err != nil {
		t.Fatalf("Acquire (holder): %v", err)
	}
	defer holder.Release(context.Background())

	_, err = d.Acquire(context.Background(), "price")
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalError once retries exhausted, got %v", err)
	}
}

func TestAcquireSucceedsAfterHolderReleases(t *testing.T) {
	client := testutil.RedisClient(t)
	d := New(client, 50*time.Millisecond, 5, 20*time.Millisecond)

	holder, err := d.Acquire(context.Background(), "price")
	if err != nil {
		t.Fatalf("Acquire (holder): %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		holder.Release(context.Background())
	}()

	l2, err := d.Acquire(context.Background(), "price")
	if err != nil {
		t.Fatalf("expected second acquire to succeed after release, got %v", err)
	}
	l2.Release(context.Background())
}
