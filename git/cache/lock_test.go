package cache

import (
	"context"
	"testing"
	"time"
)

func TestKeyLocks_TryLock(t *testing.T) {
	locks := newKeyLocks()

	if !locks.tryLock("a") {
		t.Fatal("tryLock() on free key failed")
	}
	if locks.tryLock("a") {
		t.Fatal("tryLock() on held key succeeded")
	}
	if !locks.held("a") {
		t.Error("held() = false for locked key")
	}

	locks.downgrade("a")
	if locks.tryLock("a") {
		t.Fatal("tryLock() on shared key succeeded")
	}

	locks.runlock("a")
	if locks.held("a") {
		t.Error("held() = true after release")
	}
	if len(locks.locks) != 0 {
		t.Errorf("lock table has %d keys, want 0", len(locks.locks))
	}
}

func TestKeyLocks_TryLockRespectsWaiters(t *testing.T) {
	locks := newKeyLocks()
	if err := locks.lock(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- locks.lock(context.Background(), "a")
	}()

	// Wait for the second caller to register.
	deadline := time.Now().Add(time.Second)
	for {
		locks.mu.Lock()
		waiting := locks.locks["a"].waiting
		locks.mu.Unlock()
		if waiting == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("waiter never registered")
		}
		time.Sleep(time.Millisecond)
	}

	locks.unlock("a")
	if err := <-done; err != nil {
		t.Fatalf("lock() error = %v", err)
	}
	if locks.tryLock("a") {
		t.Fatal("tryLock() succeeded while the waiter holds the key")
	}
	locks.unlock("a")
}

func TestKeyLocks_CancelledWaiterCleansUp(t *testing.T) {
	locks := newKeyLocks()
	if err := locks.lock(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := locks.lock(ctx, "a"); err == nil {
		t.Fatal("lock() should fail when the context expires")
	}

	locks.unlock("a")
	if len(locks.locks) != 0 {
		t.Errorf("lock table has %d keys, want 0", len(locks.locks))
	}
}

func TestKeyLocks_UnlockPanicsWhenNotHeld(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("unlock() of a free key should panic")
		}
	}()
	newKeyLocks().unlock("a")
}
