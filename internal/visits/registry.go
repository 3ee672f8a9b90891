// Package visits tracks one canonical visit record per (account, partner)
// pair and owns the visited transition that credits points exactly once.
package visits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/venuepass/loyalty/internal/accrual"
	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/infra"
	"github.com/venuepass/loyalty/internal/ledger"
	"github.com/venuepass/loyalty/internal/notify"
	"github.com/venuepass/loyalty/internal/partner"
	"github.com/venuepass/loyalty/internal/store"
)

// Registry manages visit records.
type Registry struct {
	store     store.Store
	ledger    *ledger.Ledger
	directory *partner.Directory
	outbox    *notify.Outbox
	logger    *slog.Logger
}

// NewRegistry creates a visit registry.
func NewRegistry(s store.Store, l *ledger.Ledger, d *partner.Directory, outbox *notify.Outbox, logger *slog.Logger) *Registry {
	return &Registry{store: s, ledger: l, directory: d, outbox: outbox, logger: logger}
}

func recordKey(accountID, partnerID string) string {
	return "visit:" + domain.VisitIdentity(accountID, partnerID)
}

// RegisterVisit creates the visit record for a booking. The (account,
// partner) key is canonical: re-registering an existing pair returns the
// stored record unchanged, so duplicate intake calls cannot fork state.
func (r *Registry) RegisterVisit(ctx context.Context, accountID, partnerID string, booking domain.BookingPayload) (*domain.VisitRecord, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	if err := domain.ValidatePartnerID(partnerID); err != nil {
		return nil, err
	}
	accountID = domain.NormalizeAccountID(accountID)

	rec := &domain.VisitRecord{
		AccountID: accountID,
		PartnerID: partnerID,
		Booking:   booking,
		CreatedAt: time.Now().UTC(),
	}

	// The association precedes the record create and is idempotent, so a
	// retried registration always repairs a half-finished one: a record
	// without its association would be invisible to reconciliation.
	if err := r.directory.Associate(ctx, accountID, partnerID); err != nil {
		return nil, err
	}

	if _, err := store.SwapJSON(ctx, r.store, recordKey(accountID, partnerID), 0, rec); err != nil {
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("create visit record: %w", err)
		}
		existing, _, err := r.load(ctx, accountID, partnerID)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}

	r.logger.Info("visit registered", "account_id", accountID, "partner_id", partnerID)
	return rec, nil
}

// ConfirmVisit marks the visit as completed and credits points exactly once.
// The record update is the crediting gate: it is a compare-and-swap on the
// record's version, and the ledger append happens only after the gate is
// through. A retry that finds visited=true repairs a missing ledger entry
// but never re-runs the update or appends a second Earned entry.
func (r *Registry) ConfirmVisit(ctx context.Context, accountID, partnerID string, confirmedAt time.Time) (*domain.VisitRecord, error) {
	accountID = domain.NormalizeAccountID(accountID)

	rec, version, err := r.load(ctx, accountID, partnerID)
	if err != nil {
		return nil, err
	}
	if rec.PartnerID != partnerID {
		return nil, domain.ErrPartnerMismatch(rec.PartnerID, partnerID)
	}

	if rec.Visited {
		return rec, r.repairLedger(ctx, rec)
	}

	points := accrual.ComputePoints(rec.Booking)
	visitedAt := confirmedAt.UTC()
	rec.Visited = true
	rec.VisitedAt = &visitedAt
	rec.PointsAwarded = &points

	if _, err := store.SwapJSON(ctx, r.store, recordKey(accountID, partnerID), version, rec); err != nil {
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("update visit record: %w", err)
		}
		// Lost the gate. If the winner was a concurrent confirmation the
		// call is idempotent; anything else is a genuine conflict.
		current, _, err := r.load(ctx, accountID, partnerID)
		if err != nil {
			return nil, err
		}
		if current.Visited {
			return current, r.repairLedger(ctx, current)
		}
		return nil, domain.ErrConcurrentModification("visit record")
	}

	if points > 0 {
		if err := r.ledger.AppendEarned(ctx, accountID, points, rec.Identity(), visitedAt); err != nil {
			// The gate is committed; the next confirmation retry will
			// repair the missing entry.
			r.logger.Error("earned append failed after visit update",
				"account_id", accountID, "partner_id", partnerID, "error", err)
			return nil, err
		}
	}

	infra.PointsCredited.Add(float64(points))
	r.outbox.Enqueue(ctx, domain.NewVisitConfirmedEvent(rec))
	r.logger.Info("visit confirmed",
		"account_id", accountID, "partner_id", partnerID, "points", points)
	return rec, nil
}

// repairLedger appends the Earned entry for an already-visited record if a
// previous attempt crashed between the gate and the append. AppendEarned
// dedups by visit identity, so repeated repairs are harmless.
func (r *Registry) repairLedger(ctx context.Context, rec *domain.VisitRecord) error {
	if rec.PointsAwarded == nil || *rec.PointsAwarded <= 0 {
		return nil
	}
	occurredAt := rec.CreatedAt
	if rec.VisitedAt != nil {
		occurredAt = *rec.VisitedAt
	}
	return r.ledger.AppendEarned(ctx, rec.AccountID, *rec.PointsAwarded, rec.Identity(), occurredAt)
}

// Record returns the visit record for (account, partner), or NotFound.
func (r *Registry) Record(ctx context.Context, accountID, partnerID string) (*domain.VisitRecord, error) {
	rec, _, err := r.load(ctx, domain.NormalizeAccountID(accountID), partnerID)
	return rec, err
}

// VisitedRecords gathers the account's visited records across every partner
// it is associated with. Satisfies ledger.VisitSource.
func (r *Registry) VisitedRecords(ctx context.Context, accountID string) ([]domain.VisitRecord, error) {
	accountID = domain.NormalizeAccountID(accountID)
	partnerIDs, err := r.directory.PartnerIDsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var out []domain.VisitRecord
	for _, partnerID := range partnerIDs {
		rec, _, err := r.load(ctx, accountID, partnerID)
		if err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				continue
			}
			return nil, err
		}
		if rec.Visited {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *Registry) load(ctx context.Context, accountID, partnerID string) (*domain.VisitRecord, int64, error) {
	var rec domain.VisitRecord
	version, err := store.GetJSON(ctx, r.store, recordKey(accountID, partnerID), &rec)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, domain.ErrNotFound("visit record", domain.VisitIdentity(accountID, partnerID))
		}
		return nil, 0, fmt.Errorf("load visit record: %w", err)
	}
	return &rec, version, nil
}
