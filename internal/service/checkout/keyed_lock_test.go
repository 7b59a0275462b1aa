package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "b1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				prev := atomic.LoadInt32(&maxActive)
				if n <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most one holder, got %d", maxActive)
	}
	if locks.size() != 0 {
		t.Fatalf("expected lock table to be empty, got %d entries", locks.size())
	}
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	locks := newKeyedMutex()

	unlockA, err := locks.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock on other key blocked: %v", err)
	}
	unlockB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	locks := newKeyedMutex()

	unlock, err := locks.Lock(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(ctx, "b1"); err == nil {
		t.Fatal("expected context error while key is held")
	}

	unlock()
	if locks.size() != 0 {
		t.Fatalf("expected lock table to be empty, got %d entries", locks.size())
	}
}
