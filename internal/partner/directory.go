// Package partner is the thin directory collaborator: which partners an
// account is associated with. The association index is maintained at visit
// registration time and read by the balance reconciler and the voucher
// eligibility check.
package partner

import (
	"context"
	"fmt"

	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/store"
)

// Directory resolves account-to-partner associations.
type Directory struct {
	store store.Store
}

// NewDirectory creates a store-backed partner directory.
func NewDirectory(s store.Store) *Directory {
	return &Directory{store: s}
}

func associationKey(accountID string) string {
	return "partners:" + domain.NormalizeAccountID(accountID)
}

// Associate records that the account has a booking at the partner. Idempotent.
func (d *Directory) Associate(ctx context.Context, accountID, partnerID string) error {
	if err := d.store.AddMember(ctx, associationKey(accountID), partnerID); err != nil {
		return fmt.Errorf("associate partner: %w", err)
	}
	return nil
}

// PartnerIDsForAccount returns every partner the account has a booking at.
func (d *Directory) PartnerIDsForAccount(ctx context.Context, accountID string) ([]string, error) {
	ids, err := d.store.Members(ctx, associationKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("partner ids for account: %w", err)
	}
	return ids, nil
}
