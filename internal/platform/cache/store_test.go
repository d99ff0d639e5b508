package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_GetOrLoad_UsesSingleFlight(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute, 0)
	var calls atomic.Int32

	loader := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "Alice", nil
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := store.GetOrLoad(context.Background(), "player:p1", loader)
			if err != nil {
				errCh <- err
				return
			}
			if v != "Alice" {
				errCh <- errUnexpectedValue
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrLoad_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute, 0)
	var calls atomic.Int32
	boom := errors.New("upstream down")

	loader := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", boom
		}
		return "Home FC", nil
	}

	if _, err := store.GetOrLoad(context.Background(), "club:c1", loader); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	got, err := store.GetOrLoad(context.Background(), "club:c1", loader)
	if err != nil {
		t.Fatalf("second GetOrLoad error: %v", err)
	}
	if got != "Home FC" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("loader called %d times, want 2", got)
	}
}

func TestStore_GetOrLoad_LeaderCancelDoesNotFailFollowers(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute, 0)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	loader := func(ctx context.Context) (string, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "Alice", nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := store.GetOrLoad(leaderCtx, "player:p1", loader)
		leaderErr <- err
	}()
	<-started

	type result struct {
		value string
		err   error
	}
	followerRes := make(chan result, 1)
	go func() {
		v, err := store.GetOrLoad(context.Background(), "player:p1", loader)
		followerRes <- result{value: v, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected leader to see context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("leader did not return after cancel")
	}

	close(release)
	select {
	case res := <-followerRes:
		if res.err != nil {
			t.Fatalf("follower error: %v", res.err)
		}
		if res.value != "Alice" {
			t.Fatalf("unexpected follower value: %q", res.value)
		}
	case <-time.After(time.Second):
		t.Fatal("follower did not return")
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
	if v, ok := store.Get(context.Background(), "player:p1"); !ok || v != "Alice" {
		t.Fatalf("expected loaded value to be cached, got %q ok=%v", v, ok)
	}
}

func TestStore_GetExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	store := NewStore[int](time.Minute, 0)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set(context.Background(), "k", 7)
	if v, ok := store.Get(context.Background(), "k"); !ok || v != 7 {
		t.Fatalf("expected cached value 7, got %d ok=%v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := store.Get(context.Background(), "k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestStore_SetRespectsMaxEntries(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute, 2)
	store.Set(context.Background(), "a", "1")
	store.Set(context.Background(), "b", "2")
	store.Set(context.Background(), "c", "3")

	store.mu.RLock()
	got := len(store.entries)
	store.mu.RUnlock()
	if got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
	if v, ok := store.Get(context.Background(), "c"); !ok || v != "3" {
		t.Fatalf("expected newest entry to be kept, got %q ok=%v", v, ok)
	}
}

var errUnexpectedValue = errors.New("unexpected loaded value")
