package escrow

import (
	"context"
	"errors"
	"fmt"

	"bidvault/ledger"
	"bidvault/store"

	"golang.org/x/exp/slices"
)

func authorize(ctx context.Context, tx store.Store, sender string) error {
	admins, err := tx.SelectAdminSet(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrConfigurationMissing
	case err != nil:
		return fmt.Errorf("select admin set: %w", err)
	}

	if !admins.IsAdmin(sender) {
		return ErrUnauthorized
	}

	return nil
}

// uniqueAdmins validates every identity and drops repeats, keeping the
// first occurrence.
func uniqueAdmins(ctx context.Context, l ledger.Ledger, admins []string) ([]string, error) {
	unique := make([]string, 0, len(admins))
	for _, addr := range admins {
		if slices.Contains(unique, addr) {
			continue
		}
		if err := l.ValidateAddress(ctx, addr); err != nil {
			return nil, fmt.Errorf("%w: admin %q: %w", ErrInvalidAdmins, addr, err)
		}
		unique = append(unique, addr)
	}

	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: at least one admin is required", ErrInvalidAdmins)
	}

	return unique, nil
}
