// Package ledger abstracts the host environment the escrow runs against:
// which account addresses are valid, and what time it is.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
)

var ErrInvalidAddress = errors.New("invalid address")

type Ledger interface {
	// Network names the address namespace, e.g. the bech32 prefix.
	Network() string
	ValidateAddress(ctx context.Context, addr string) error
	Now(ctx context.Context) time.Time
}

// PlainLedger accepts any non-empty address without whitespace.
type PlainLedger struct{}

var _ Ledger = PlainLedger{}

func (PlainLedger) Network() string { return "" }

func (PlainLedger) ValidateAddress(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.IndexFunc(addr, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidAddress, addr)
	}
	return nil
}

func (PlainLedger) Now(ctx context.Context) time.Time { return time.Now().UTC() }

// TestLedger wraps another ledger with a clock that only moves when told to.
type TestLedger struct {
	Ledger

	mu  sync.Mutex
	now time.Time
}

func NewTestLedger(l Ledger, now time.Time) *TestLedger {
	return &TestLedger{Ledger: l, now: now}
}

func (l *TestLedger) Now(ctx context.Context) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

func (l *TestLedger) SetNow(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *TestLedger) Advance(d time.Duration) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = l.now.Add(d)
	return l.now
}
