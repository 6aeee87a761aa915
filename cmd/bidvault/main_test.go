package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"bidvault/build"
	"bidvault/escrow"
	"bidvault/ledger"
	"bidvault/store/memstore"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
)

func TestVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := exe(context.Background(), &stdout, &stderr, []string{"-version"}); err != nil {
		t.Fatal(err)
	}

	if want, have := "bidvault version "+build.Version, stdout.String(); !strings.HasPrefix(have, want) {
		t.Errorf("want prefix %q, have %q", want, have)
	}
}

func TestBadFlags(t *testing.T) {
	t.Parallel()

	for name, args := range map[string][]string{
		"unknown flag":   {"-no-such-flag"},
		"unknown policy": {"-minimum-bid-policy", "highest"},
	} {
		var stdout, stderr bytes.Buffer
		if err := exe(context.Background(), &stdout, &stderr, args); err == nil {
			t.Errorf("%s: want error, have none", name)
		}
	}
}

func TestBootstrapAdmins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service := escrow.NewCoreService(ledger.PlainLedger{}, memstore.NewStore())

	if err := bootstrapAdmins(ctx, service, nil, log.NewNopLogger()); err != nil {
		t.Fatalf("no admins: %v", err)
	}

	if _, err := service.Info(ctx); !errors.Is(err, escrow.ErrConfigurationMissing) {
		t.Fatalf("Info without admins: want %v, have %v", escrow.ErrConfigurationMissing, err)
	}

	if err := bootstrapAdmins(ctx, service, []string{"admin", "admin2"}, log.NewNopLogger()); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}

	if err := bootstrapAdmins(ctx, service, []string{"someone-else"}, log.NewNopLogger()); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	info, err := service.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"admin", "admin2"}, info.Admins); diff != "" {
		t.Errorf("admins: %s", diff)
	}

	if err := bootstrapAdmins(ctx, escrow.NewCoreService(ledger.PlainLedger{}, memstore.NewStore()), []string{"has space"}, log.NewNopLogger()); !errors.Is(err, escrow.ErrInvalidAdmins) {
		t.Errorf("invalid admin: want %v, have %v", escrow.ErrInvalidAdmins, err)
	}
}

func TestStringSet(t *testing.T) {
	t.Parallel()

	var ss stringSet
	for _, v := range []string{"a", "b", "a", "c"} {
		if err := ss.Set(v); err != nil {
			t.Fatal(err)
		}
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, ss.Get()); diff != "" {
		t.Error(diff)
	}

	if want, have := "a, b, c", ss.String(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
}
