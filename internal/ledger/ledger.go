// Package ledger owns the authoritative points position of an account: an
// append-only per-account entry log, the balance reconciler that replays it,
// and the per-account sequence token that serializes spends.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/store"
)

// Ledger appends and reads an account's immutable entry log.
type Ledger struct {
	store store.Store
}

// NewLedger creates a ledger over the record store.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

func entriesKey(accountID string) string {
	return "ledger:" + domain.NormalizeAccountID(accountID)
}

func seqKey(accountID string) string {
	return "account:" + domain.NormalizeAccountID(accountID) + ":seq"
}

// Entries returns the account's full entry log in append order.
func (l *Ledger) Entries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	raw, err := l.store.List(ctx, entriesKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	entries := make([]domain.LedgerEntry, 0, len(raw))
	for _, data := range raw {
		var e domain.LedgerEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AppendEarned records a points credit referencing a visit identity. If an
// Earned entry for the same reference already exists the append is skipped,
// so a retried confirmation can repair a missing entry without ever writing
// a second one.
func (l *Ledger) AppendEarned(ctx context.Context, accountID string, points int, visitIdentity string, occurredAt time.Time) error {
	if points <= 0 {
		return domain.ErrValidation("earned points must be positive")
	}
	dup, err := l.HasEarnedFor(ctx, accountID, visitIdentity)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	return l.append(ctx, domain.LedgerEntry{
		AccountID:  domain.NormalizeAccountID(accountID),
		Kind:       domain.EntryEarned,
		Points:     points,
		Reference:  visitIdentity,
		OccurredAt: occurredAt,
	})
}

// AppendRedeemed records a points spend referencing a voucher code. If a
// Redeemed entry for the same code already exists the append is skipped, so
// a repaired issuance records the spend at most once.
func (l *Ledger) AppendRedeemed(ctx context.Context, accountID string, points int, voucherCode string, occurredAt time.Time) error {
	if points <= 0 {
		return domain.ErrValidation("redeemed points must be positive")
	}
	dup, err := l.HasRedeemedFor(ctx, accountID, voucherCode)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	return l.append(ctx, domain.LedgerEntry{
		AccountID:  domain.NormalizeAccountID(accountID),
		Kind:       domain.EntryRedeemed,
		Points:     points,
		Reference:  voucherCode,
		OccurredAt: occurredAt,
	})
}

func (l *Ledger) append(ctx context.Context, entry domain.LedgerEntry) error {
	if err := store.AppendJSON(ctx, l.store, entriesKey(entry.AccountID), entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// HasEarnedFor reports whether an Earned entry referencing the visit
// identity already exists.
func (l *Ledger) HasEarnedFor(ctx context.Context, accountID, visitIdentity string) (bool, error) {
	entries, err := l.Entries(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Kind == domain.EntryEarned && e.Reference == visitIdentity {
			return true, nil
		}
	}
	return false, nil
}

// HasRedeemedFor reports whether a Redeemed entry referencing the voucher
// code already exists.
func (l *Ledger) HasRedeemedFor(ctx context.Context, accountID, voucherCode string) (bool, error) {
	entries, err := l.Entries(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Kind == domain.EntryRedeemed && e.Reference == voucherCode {
			return true, nil
		}
	}
	return false, nil
}

// seqToken is the per-account monotonic token a spend is anchored on. The
// value itself only aids debugging; the store version is what the
// compare-and-swap checks.
type seqToken struct {
	LastVoucher string    `json:"last_voucher"`
	BumpedAt    time.Time `json:"bumped_at"`
}

// SeqVersion returns the current version of the account's sequence token.
// Version 0 means the token does not exist yet.
func (l *Ledger) SeqVersion(ctx context.Context, accountID string) (int64, error) {
	rec, err := l.store.Get(ctx, seqKey(accountID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get account seq: %w", err)
	}
	return rec.Version, nil
}

// BumpSeq advances the account's sequence token, conditional on the version
// observed when the balance was read. A conflict means another spend
// interleaved; the caller reports it rather than retrying blindly.
func (l *Ledger) BumpSeq(ctx context.Context, accountID string, observedVersion int64, voucherCode string, now time.Time) error {
	token, err := json.Marshal(seqToken{LastVoucher: voucherCode, BumpedAt: now})
	if err != nil {
		return fmt.Errorf("marshal seq token: %w", err)
	}
	if _, err := l.store.CompareAndSwap(ctx, seqKey(accountID), observedVersion, token); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return domain.ErrConcurrentModification("account balance")
		}
		return fmt.Errorf("bump account seq: %w", err)
	}
	return nil
}
