// Package voucher manages the redemption lifecycle: issue → apply →
// use/reject, with lazy expiry. Every transition is a compare-and-swap keyed
// on the voucher's expected current state; a lost race surfaces as
// ConcurrentModification for the caller to re-fetch and decide.
package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/venuepass/loyalty/internal/catalog"
	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/infra"
	"github.com/venuepass/loyalty/internal/ledger"
	"github.com/venuepass/loyalty/internal/notify"
	"github.com/venuepass/loyalty/internal/store"
)

// Machine drives voucher transitions.
type Machine struct {
	store    store.Store
	ledger   *ledger.Ledger
	balances *ledger.Reconciler
	visits   ledger.VisitSource
	rewards  catalog.Catalog
	outbox   *notify.Outbox
	logger   *slog.Logger
}

// NewMachine creates a voucher state machine.
func NewMachine(
	s store.Store,
	l *ledger.Ledger,
	balances *ledger.Reconciler,
	visits ledger.VisitSource,
	rewards catalog.Catalog,
	outbox *notify.Outbox,
	logger *slog.Logger,
) *Machine {
	return &Machine{
		store:    s,
		ledger:   l,
		balances: balances,
		visits:   visits,
		rewards:  rewards,
		outbox:   outbox,
		logger:   logger,
	}
}

func voucherKey(code string) string { return "voucher:" + code }

func accountVouchersKey(accountID string) string {
	return "vouchers:" + domain.NormalizeAccountID(accountID)
}

// Issue redeems a reward into a new Pending voucher.
//
// The funds check and the Redeemed append are anchored on the account's
// sequence token: the token version is read before the balance, and bumped
// by compare-and-swap before any spend is recorded. Two concurrent issues
// against the same near-zero balance therefore cannot both pass; the loser
// gets ConcurrentModification.
//
// Write order after the bump: voucher record first, then the Redeemed
// ledger entry deduped by voucher code, then stock decrement and
// notification. The voucher record is the gate; a crash before the ledger
// append is repaired the next time anything loads the voucher, and a crash
// before the gate leaves only a consumed token version, which no balance
// reads.
func (m *Machine) Issue(ctx context.Context, accountID, rewardID string, now time.Time) (*domain.Voucher, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	accountID = domain.NormalizeAccountID(accountID)

	reward, err := m.rewards.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if reward.Status != domain.RewardActive {
		return nil, domain.ErrNotFound("reward", rewardID)
	}
	if reward.Stock != nil && *reward.Stock <= 0 {
		return nil, domain.ErrOutOfStock(rewardID)
	}

	visited, err := m.visits.VisitedRecords(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !reward.EligibleFor(visitedPartnerIDs(visited)) {
		return nil, domain.ErrNotEligible(reward.EligiblePartners)
	}

	seqVersion, err := m.ledger.SeqVersion(ctx, accountID)
	if err != nil {
		return nil, err
	}
	balance, err := m.balances.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance.Available < reward.PointsCost {
		return nil, domain.ErrInsufficientPoints(reward.PointsCost, balance.Available)
	}

	code := uuid.NewString()
	if err := m.ledger.BumpSeq(ctx, accountID, seqVersion, code, now); err != nil {
		if domain.IsCode(err, domain.CodeConcurrentModification) {
			infra.CASConflicts.WithLabelValues("issue").Inc()
		}
		return nil, err
	}

	v := &domain.Voucher{
		Code:       code,
		AccountID:  accountID,
		RewardID:   reward.ID,
		PointsCost: reward.PointsCost,
		Status:     domain.VoucherPending,
		IssuedAt:   now.UTC(),
		ExpiresAt:  now.UTC().Add(domain.VoucherValidity),
	}
	if _, err := store.SwapJSON(ctx, m.store, voucherKey(code), 0, v); err != nil {
		return nil, fmt.Errorf("create voucher: %w", err)
	}

	if err := m.ledger.AppendRedeemed(ctx, accountID, reward.PointsCost, code, now); err != nil {
		return nil, err
	}
	if err := m.store.AddMember(ctx, accountVouchersKey(accountID), code); err != nil {
		return nil, fmt.Errorf("index voucher: %w", err)
	}

	// Advisory inventory: a race that oversells slightly is logged, never
	// allowed to void the voucher.
	if err := m.rewards.DecrementStock(ctx, rewardID); err != nil {
		m.logger.Warn("stock decrement failed after issuance",
			"reward_id", rewardID, "voucher", code, "error", err)
	}

	infra.VouchersIssued.Inc()
	m.outbox.Enqueue(ctx, domain.NewVoucherIssuedEvent(v))
	m.logger.Info("voucher issued",
		"account_id", accountID, "reward_id", rewardID, "code", code, "cost", reward.PointsCost)
	return v, nil
}

// Apply attaches a Pending voucher to a booking. Re-applying with the same
// booking reference is idempotent; a different reference fails AlreadyApplied.
// A voucher past expiry transitions to Expired as a side effect and the call
// fails Expired.
func (m *Machine) Apply(ctx context.Context, code, bookingReference string, now time.Time) (*domain.Voucher, error) {
	if bookingReference == "" {
		return nil, domain.ErrValidation("booking reference is required")
	}

	v, version, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}

	switch v.Status {
	case domain.VoucherApplied:
		if v.AppliedTo != nil && *v.AppliedTo == bookingReference {
			return v, nil
		}
		applied := ""
		if v.AppliedTo != nil {
			applied = *v.AppliedTo
		}
		return nil, domain.ErrAlreadyApplied(applied)
	case domain.VoucherUsed, domain.VoucherRejected:
		return nil, domain.ErrAlreadyUsed(v.Status)
	case domain.VoucherExpired:
		return nil, domain.ErrExpired()
	}

	if v.ExpiredBy(now) {
		if _, err := m.expire(ctx, v, version); err != nil {
			return nil, err
		}
		return nil, domain.ErrExpired()
	}

	appliedAt := now.UTC()
	v.Status = domain.VoucherApplied
	v.AppliedTo = &bookingReference
	v.AppliedAt = &appliedAt
	if err := m.swap(ctx, v, version, "apply"); err != nil {
		return nil, err
	}

	m.outbox.Enqueue(ctx, domain.NewVoucherAppliedEvent(v))
	m.logger.Info("voucher applied", "code", code, "booking", bookingReference)
	return v, nil
}

// Process records a partner's terminal decision. Use is valid only from
// Applied; Reject additionally from Pending, so an unused voucher can be
// cancelled at the desk.
func (m *Machine) Process(ctx context.Context, code, partnerID string, decision domain.Decision, now time.Time) (*domain.Voucher, error) {
	if err := domain.ValidatePartnerID(partnerID); err != nil {
		return nil, err
	}

	v, version, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}

	if v.Status.Terminal() {
		return nil, domain.ErrInvalidState(v.Status, string(decision))
	}
	if v.ExpiredBy(now) {
		if _, err := m.expire(ctx, v, version); err != nil {
			return nil, err
		}
		return nil, domain.ErrExpired()
	}

	switch decision {
	case domain.DecisionUse:
		if v.Status != domain.VoucherApplied {
			return nil, domain.ErrInvalidState(v.Status, "use")
		}
		v.Status = domain.VoucherUsed
	case domain.DecisionReject:
		if v.Status != domain.VoucherApplied && v.Status != domain.VoucherPending {
			return nil, domain.ErrInvalidState(v.Status, "reject")
		}
		v.Status = domain.VoucherRejected
	default:
		return nil, domain.ErrValidation(fmt.Sprintf("unknown decision %q", decision))
	}

	processedAt := now.UTC()
	v.ProcessedBy = &partnerID
	v.ProcessedAt = &processedAt
	if err := m.swap(ctx, v, version, "process"); err != nil {
		return nil, err
	}

	infra.VouchersProcessed.WithLabelValues(string(v.Status)).Inc()
	m.outbox.Enqueue(ctx, domain.NewVoucherProcessedEvent(v))
	m.logger.Info("voucher processed",
		"code", code, "partner_id", partnerID, "status", v.Status)
	return v, nil
}

// Get returns a voucher by code, transitioning it to Expired first if its
// validity window has lapsed.
func (m *Machine) Get(ctx context.Context, code string, now time.Time) (*domain.Voucher, error) {
	v, version, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if !v.Status.Terminal() && v.ExpiredBy(now) {
		return m.expire(ctx, v, version)
	}
	return v, nil
}

func (m *Machine) expire(ctx context.Context, v *domain.Voucher, version int64) (*domain.Voucher, error) {
	v.Status = domain.VoucherExpired
	if err := m.swap(ctx, v, version, "expire"); err != nil {
		// A concurrent operation already moved the voucher on; surface the
		// conflict rather than guessing the winner.
		return nil, err
	}
	return v, nil
}

func (m *Machine) swap(ctx context.Context, v *domain.Voucher, version int64, op string) error {
	if _, err := store.SwapJSON(ctx, m.store, voucherKey(v.Code), version, v); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			infra.CASConflicts.WithLabelValues(op).Inc()
			return domain.ErrConcurrentModification("voucher")
		}
		return fmt.Errorf("%s voucher: %w", op, err)
	}
	return nil
}

func (m *Machine) load(ctx context.Context, code string) (*domain.Voucher, int64, error) {
	var v domain.Voucher
	version, err := store.GetJSON(ctx, m.store, voucherKey(code), &v)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, domain.ErrNotFound("voucher", code)
		}
		return nil, 0, fmt.Errorf("load voucher: %w", err)
	}
	if err := m.repairSpend(ctx, &v); err != nil {
		return nil, 0, err
	}
	return &v, version, nil
}

// repairSpend re-records the spend and account index for a voucher whose
// issuance crashed between the voucher create and the ledger append. Both
// writes dedup, so an intact voucher passes through untouched.
func (m *Machine) repairSpend(ctx context.Context, v *domain.Voucher) error {
	if err := m.ledger.AppendRedeemed(ctx, v.AccountID, v.PointsCost, v.Code, v.IssuedAt); err != nil {
		return err
	}
	return m.store.AddMember(ctx, accountVouchersKey(v.AccountID), v.Code)
}

func visitedPartnerIDs(records []domain.VisitRecord) []string {
	out := make([]string, 0, len(records))
	for i := range records {
		out = append(out, records[i].PartnerID)
	}
	return out
}
