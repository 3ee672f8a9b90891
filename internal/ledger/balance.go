package ledger

import (
	"context"
	"fmt"

	"github.com/venuepass/loyalty/internal/domain"
)

// VisitSource supplies an account's visited records. Implemented by the
// visit registry; an interface here keeps the dependency one-directional.
type VisitSource interface {
	VisitedRecords(ctx context.Context, accountID string) ([]domain.VisitRecord, error)
}

// Reconciler computes authoritative balances by replaying visit records and
// the redeemed side of the ledger. It is read-only and side-effect-free, safe
// to call at any frequency concurrently with every other operation.
type Reconciler struct {
	ledger *Ledger
	visits VisitSource
}

// NewReconciler creates a balance reconciler.
func NewReconciler(l *Ledger, visits VisitSource) *Reconciler {
	return &Reconciler{ledger: l, visits: visits}
}

// GetBalance returns earned, redeemed and available points for the account.
// Earned points are counted exactly once per distinct visit identity, which
// closes the duplicate-storage-key hazard: however a visited record was
// reached, it contributes a single credit. Available never goes negative.
func (r *Reconciler) GetBalance(ctx context.Context, accountID string) (domain.Balance, error) {
	records, err := r.visits.VisitedRecords(ctx, accountID)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("gather visit records: %w", err)
	}

	earned := 0
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		rec := &records[i]
		if !rec.Visited || rec.PointsAwarded == nil {
			continue
		}
		identity := rec.Identity()
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}
		earned += *rec.PointsAwarded
	}

	entries, err := r.ledger.Entries(ctx, accountID)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("replay ledger: %w", err)
	}
	redeemed := 0
	for _, e := range entries {
		if e.Kind == domain.EntryRedeemed {
			redeemed += e.Points
		}
	}

	available := earned - redeemed
	if available < 0 {
		available = 0
	}
	return domain.Balance{Earned: earned, Redeemed: redeemed, Available: available}, nil
}
