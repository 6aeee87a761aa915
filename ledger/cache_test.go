package ledger

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"
)

func TestRingCacheConcurrent(t *testing.T) {
	t.Parallel()

	var (
		ctx      = context.Background()
		capacity = 5
		c        = newRingCache[int, uint64](capacity)
		misses   uint64
		errc     = make(chan error, 1000)
	)

	for i := 0; i < cap(errc); i++ {
		k := rand.Intn(capacity)
		go func(k int) {
			_, err := c.Get(ctx, k, func(_ context.Context, k int) (uint64, error) {
				n := atomic.AddUint64(&misses, 1)
				if n%3 == 0 {
					return n, errors.New("boom")
				}
				return n, nil
			})
			errc <- err
		}(k)
	}

	var failures int
	for i := 0; i < cap(errc); i++ {
		if err := <-errc; err != nil {
			failures++
		}
	}

	if n := c.Len(); n > capacity {
		t.Errorf("Len: want at most %d, have %d", capacity, n)
	}

	t.Logf("misses %d, failures %d", atomic.LoadUint64(&misses), failures)
}

func TestRingCacheEviction(t *testing.T) {
	t.Parallel()

	var (
		ctx   = context.Background()
		c     = newRingCache[string, int](2)
		fills int
		fill  = func(_ context.Context, k string) (int, error) { fills++; return len(k), nil }
	)

	for _, k := range []string{"a", "bb", "a", "ccc", "a"} {
		if _, err := c.Get(ctx, k, fill); err != nil {
			t.Fatal(err)
		}
	}

	// "a" and "bb" fill, "a" hits, "ccc" evicts "a", "a" fills again.
	if want, have := 4, fills; want != have {
		t.Errorf("fills: want %d, have %d", want, have)
	}
}

type countingLedger struct {
	PlainLedger
	calls int64
}

func (l *countingLedger) ValidateAddress(ctx context.Context, addr string) error {
	atomic.AddInt64(&l.calls, 1)
	return l.PlainLedger.ValidateAddress(ctx, addr)
}

func TestCachedLedger(t *testing.T) {
	t.Parallel()

	var (
		ctx   = context.Background()
		inner = &countingLedger{}
		l     = WithAddressCache(inner, 16)
	)

	for i := 0; i < 3; i++ {
		if err := l.ValidateAddress(ctx, "alice"); err != nil {
			t.Fatalf("alice: %v", err)
		}
		if err := l.ValidateAddress(ctx, "bad addr"); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("bad addr: want %v, have %v", ErrInvalidAddress, err)
		}
	}

	// alice once, the invalid address every time.
	if want, have := int64(4), atomic.LoadInt64(&inner.calls); want != have {
		t.Errorf("inner calls: want %d, have %d", want, have)
	}

	if want, have := 1, l.Len(); want != have {
		t.Errorf("Len: want %d, have %d", want, have)
	}

	if now := l.Now(ctx); time.Since(now) > time.Minute {
		t.Errorf("Now delegates to inner ledger, have %s", now)
	}
}
