package fetchcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint("sel-2", "sel-1", "sel-3")
	b := Fingerprint("sel-1", "sel-3", "sel-2")
	if a != b {
		t.Errorf("fingerprints differ for same inputs: %q vs %q", a, b)
	}
	if a == Fingerprint("sel-1", "sel-2") {
		t.Error("fingerprints collide for different inputs")
	}
}

func TestCache_HitWithinTTL(t *testing.T) {
	c := New[int](time.Minute)
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := c.Do(ctx, "fp-1", nil, fetch)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New[int](time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }

	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}
	ctx := context.Background()
	if v, _ := c.Do(ctx, "fp", nil, fetch); v != 1 {
		t.Fatalf("first fetch = %d", v)
	}
	current = current.Add(2 * time.Minute)
	if v, _ := c.Do(ctx, "fp", nil, fetch); v != 2 {
		t.Errorf("expired entry served: got %d, want refetch", v)
	}
}

func TestCache_ErrorNotCached(t *testing.T) {
	c := New[int](time.Minute)
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("source unavailable")
		}
		return 7, nil
	}
	ctx := context.Background()
	if _, err := c.Do(ctx, "fp", nil, fetch); err == nil {
		t.Fatal("expected error from first fetch")
	}
	v, err := c.Do(ctx, "fp", nil, fetch)
	if err != nil || v != 7 {
		t.Errorf("retry after error: %d, %v", v, err)
	}
}

func TestCache_SingleFlight(t *testing.T) {
	c := New[int](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 99, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Do(context.Background(), "fp", nil, fetch)
			if err != nil {
				t.Errorf("Do: %v", err)
			}
			results[i] = v
		}(i)
	}
	// Give the goroutines time to pile onto the same fingerprint.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch called %d times, want 1", got)
	}
	for _, v := range results {
		if v != 99 {
			t.Fatalf("results diverged: %v", results)
		}
	}
}

func TestCache_InvalidateLeg(t *testing.T) {
	c := New[string](time.Hour)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "combo-price", nil
	}

	fp := Fingerprint("sel-1", "sel-2")
	if _, err := c.Do(ctx, fp, []string{"sel-1", "sel-2"}, fetch); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(ctx, fp, []string{"sel-1", "sel-2"}, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit, fetch called %d times", calls)
	}

	// One leg of the combined price changed: the cached result must go.
	c.InvalidateLeg("sel-2")
	if _, err := c.Do(ctx, fp, []string{"sel-1", "sel-2"}, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("leg invalidation ignored: fetch called %d times, want 2", calls)
	}
}

func TestCache_SweepEvictsExpired(t *testing.T) {
	c := New[int](time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }
	ctx := context.Background()

	fetch := func(context.Context) (int, error) { return 1, nil }
	if _, err := c.Do(ctx, "old", nil, fetch); err != nil {
		t.Fatal(err)
	}
	current = current.Add(5 * time.Minute)
	if _, err := c.Do(ctx, "new", nil, fetch); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("expired entry not swept: len = %d", c.Len())
	}
}
