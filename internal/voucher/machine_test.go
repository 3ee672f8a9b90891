package voucher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuepass/loyalty/internal/catalog"
	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/infra"
	"github.com/venuepass/loyalty/internal/ledger"
	"github.com/venuepass/loyalty/internal/notify"
	"github.com/venuepass/loyalty/internal/partner"
	"github.com/venuepass/loyalty/internal/store"
	"github.com/venuepass/loyalty/internal/visits"
)

type fixture struct {
	store    *store.MemoryStore
	ledger   *ledger.Ledger
	registry *visits.Registry
	balances *ledger.Reconciler
	rewards  *catalog.StoreCatalog
	machine  *Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memory := store.NewMemoryStore()
	return newFixtureOn(t, memory, memory)
}

func newFixtureOn(t *testing.T, s store.Store, memory *store.MemoryStore) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.NewLedger(s)
	directory := partner.NewDirectory(s)
	outbox := notify.NewOutbox(s, logger)
	registry := visits.NewRegistry(s, l, directory, outbox, logger)
	balances := ledger.NewReconciler(l, registry)
	rewards := catalog.NewStoreCatalog(s)
	machine := NewMachine(s, l, balances, registry, rewards, outbox, logger)
	return &fixture{
		store:    memory,
		ledger:   l,
		registry: registry,
		balances: balances,
		rewards:  rewards,
		machine:  machine,
	}
}

// confirmVisit registers and confirms a visit worth the given booking.
func (f *fixture) confirmVisit(t *testing.T, accountID, partnerID string, booking domain.BookingPayload) {
	t.Helper()
	ctx := context.Background()
	_, err := f.registry.RegisterVisit(ctx, accountID, partnerID, booking)
	require.NoError(t, err)
	_, err = f.registry.ConfirmVisit(ctx, accountID, partnerID, time.Now().UTC())
	require.NoError(t, err)
}

func (f *fixture) saveReward(t *testing.T, reward *domain.Reward) {
	t.Helper()
	if reward.Status == "" {
		reward.Status = domain.RewardActive
	}
	require.NoError(t, f.rewards.SaveReward(context.Background(), reward))
}

func intPtr(n int) *int { return &n }

func TestIssue(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("success decrements balance and stock", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", Name: "Free coffee", PointsCost: 15, EligiblePartners: []string{"p1"}, Stock: intPtr(10)})

		v, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherPending, v.Status)
		assert.Equal(t, 15, v.PointsCost)
		assert.Equal(t, "a@x.com", v.AccountID)
		assert.Equal(t, now.Add(domain.VoucherValidity), v.ExpiresAt)

		balance, err := f.balances.GetBalance(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, domain.Balance{Earned: 20, Redeemed: 15, Available: 5}, balance)

		reward, err := f.rewards.GetReward(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, reward.Stock)
		assert.Equal(t, 9, *reward.Stock)
	})

	t.Run("snapshot cost survives catalog price change", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 10000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})

		v, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.NoError(t, err)

		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 99})
		got, err := f.machine.Get(ctx, v.Code, now)
		require.NoError(t, err)
		assert.Equal(t, 15, got.PointsCost)
	})

	t.Run("insufficient points reports figures", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 1000.0}) // 10 points
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})

		_, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.Error(t, err)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domain.CodeInsufficientPoints, appErr.Code)
		assert.Equal(t, 15, appErr.Details["required"])
		assert.Equal(t, 10, appErr.Details["available"])
	})

	t.Run("ineligible partner reports required set", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p9", domain.BookingPayload{"totalPrice": 10000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15, EligiblePartners: []string{"p1", "p2"}})

		_, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.Error(t, err)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domain.CodeNotEligible, appErr.Code)
		assert.Equal(t, []string{"p1", "p2"}, appErr.Details["eligible_partners"])
	})

	t.Run("unknown reward fails NotFound", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 10000.0})

		_, err := f.machine.Issue(ctx, "a@x.com", "nope", now)
		assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	})

	t.Run("inactive reward fails NotFound", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 10000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15, Status: domain.RewardInactive})

		_, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	})

	t.Run("exhausted stock fails OutOfStock", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 10000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15, Stock: intPtr(0)})

		_, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		assert.True(t, domain.IsCode(err, domain.CodeOutOfStock))
	})

	t.Run("concurrent issues against funds for one succeed exactly once", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0}) // 20 points
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})

		const attempts = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.machine.Issue(ctx, "a@x.com", "r1", now); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)

		balance, err := f.balances.GetBalance(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, 5, balance.Available)
	})

	t.Run("voucher without its spend entry is repaired on read", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})

		// Simulate a crash between the voucher create and the ledger
		// append: write the Pending voucher directly, no Redeemed entry.
		v := &domain.Voucher{
			Code:       "orphan-1",
			AccountID:  "a@x.com",
			RewardID:   "r1",
			PointsCost: 15,
			Status:     domain.VoucherPending,
			IssuedAt:   now,
			ExpiresAt:  now.Add(domain.VoucherValidity),
		}
		_, err := store.SwapJSON(ctx, f.store, voucherKey("orphan-1"), 0, v)
		require.NoError(t, err)

		balance, err := f.balances.GetBalance(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, 0, balance.Redeemed)

		// Any read of the voucher records the missing spend, exactly once.
		for i := 0; i < 3; i++ {
			_, err = f.machine.Get(ctx, "orphan-1", now)
			require.NoError(t, err)
		}
		balance, err = f.balances.GetBalance(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, domain.Balance{Earned: 20, Redeemed: 15, Available: 5}, balance)

		entries, err := f.ledger.Entries(ctx, "a@x.com")
		require.NoError(t, err)
		redeemed := 0
		for _, e := range entries {
			if e.Kind == domain.EntryRedeemed {
				redeemed++
				assert.Equal(t, "orphan-1", e.Reference)
			}
		}
		assert.Equal(t, 1, redeemed)
	})

	t.Run("conflict metric counts only lost races", func(t *testing.T) {
		memory := store.NewMemoryStore()
		faulty := &seqFaultStore{
			MemoryStore: memory,
			seqKey:      "account:a@x.com:seq",
			err:         errors.New("connection reset"),
		}
		f := newFixtureOn(t, faulty, memory)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})

		counter := infra.CASConflicts.WithLabelValues("issue")
		before := testutil.ToFloat64(counter)

		_, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.Error(t, err)
		assert.False(t, domain.IsCode(err, domain.CodeConcurrentModification))
		assert.Equal(t, before, testutil.ToFloat64(counter))

		faulty.err = store.ErrVersionConflict
		_, err = f.machine.Issue(ctx, "a@x.com", "r1", now)
		assert.True(t, domain.IsCode(err, domain.CodeConcurrentModification))
		assert.Equal(t, before+1, testutil.ToFloat64(counter))
	})
}

// seqFaultStore fails compare-and-swaps on one key with a configurable error.
type seqFaultStore struct {
	*store.MemoryStore
	seqKey string
	err    error
}

func (s *seqFaultStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (*store.Record, error) {
	if key == s.seqKey {
		return nil, s.err
	}
	return s.MemoryStore.CompareAndSwap(ctx, key, expectedVersion, value)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	issue := func(t *testing.T, f *fixture) *domain.Voucher {
		t.Helper()
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})
		v, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.NoError(t, err)
		return v
	}

	t.Run("pending to applied", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)

		applied, err := f.machine.Apply(ctx, v.Code, "booking-42", now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherApplied, applied.Status)
		require.NotNil(t, applied.AppliedTo)
		assert.Equal(t, "booking-42", *applied.AppliedTo)
	})

	t.Run("same booking reference is idempotent", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)

		first, err := f.machine.Apply(ctx, v.Code, "booking-42", now.Add(time.Hour))
		require.NoError(t, err)
		second, err := f.machine.Apply(ctx, v.Code, "booking-42", now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, first.AppliedAt, second.AppliedAt)
	})

	t.Run("different booking reference fails AlreadyApplied", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)

		_, err := f.machine.Apply(ctx, v.Code, "booking-42", now.Add(time.Hour))
		require.NoError(t, err)
		_, err = f.machine.Apply(ctx, v.Code, "booking-43", now.Add(time.Hour))
		assert.True(t, domain.IsCode(err, domain.CodeAlreadyApplied))
	})

	t.Run("expired voucher fails and stored status becomes expired", func(t *testing.T) {
		f := newFixture(t)
		// Issue anchored in the past so the validity window has lapsed.
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})
		issuedAt := now.Add(-domain.VoucherValidity - 24*time.Hour)
		v, err := f.machine.Issue(ctx, "a@x.com", "r1", issuedAt)
		require.NoError(t, err)

		_, err = f.machine.Apply(ctx, v.Code, "booking-42", now)
		assert.True(t, domain.IsCode(err, domain.CodeExpired))

		// Read back at a time inside the original window: the stored status
		// was transitioned, not lazily recomputed.
		stored, err := f.machine.Get(ctx, v.Code, issuedAt)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherExpired, stored.Status)
	})

	t.Run("used voucher fails AlreadyUsed", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Apply(ctx, v.Code, "booking-42", now)
		require.NoError(t, err)
		_, err = f.machine.Process(ctx, v.Code, "p1", domain.DecisionUse, now)
		require.NoError(t, err)

		_, err = f.machine.Apply(ctx, v.Code, "booking-43", now)
		assert.True(t, domain.IsCode(err, domain.CodeAlreadyUsed))
	})

	t.Run("unknown code fails NotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.machine.Apply(ctx, "nope", "booking-42", now)
		assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	})

	t.Run("missing booking reference rejected", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Apply(ctx, v.Code, "", now)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))
	})
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	issue := func(t *testing.T, f *fixture) *domain.Voucher {
		t.Helper()
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})
		v, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.NoError(t, err)
		return v
	}

	t.Run("use on pending fails InvalidState", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Process(ctx, v.Code, "p1", domain.DecisionUse, now)
		assert.True(t, domain.IsCode(err, domain.CodeInvalidState))
	})

	t.Run("use on applied reaches used", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Apply(ctx, v.Code, "booking-42", now)
		require.NoError(t, err)

		processed, err := f.machine.Process(ctx, v.Code, "p1", domain.DecisionUse, now)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherUsed, processed.Status)
		require.NotNil(t, processed.ProcessedBy)
		assert.Equal(t, "p1", *processed.ProcessedBy)
	})

	t.Run("reject cancels a pending voucher", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		processed, err := f.machine.Process(ctx, v.Code, "p1", domain.DecisionReject, now)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherRejected, processed.Status)
	})

	t.Run("reject on applied", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Apply(ctx, v.Code, "booking-42", now)
		require.NoError(t, err)
		processed, err := f.machine.Process(ctx, v.Code, "p1", domain.DecisionReject, now)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherRejected, processed.Status)
	})

	t.Run("terminal states fail InvalidState", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Process(ctx, v.Code, "p1", domain.DecisionReject, now)
		require.NoError(t, err)
		_, err = f.machine.Process(ctx, v.Code, "p1", domain.DecisionUse, now)
		assert.True(t, domain.IsCode(err, domain.CodeInvalidState))
	})

	t.Run("expired voucher cannot be used", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Apply(ctx, v.Code, "booking-42", now)
		require.NoError(t, err)

		late := now.Add(domain.VoucherValidity + 24*time.Hour)
		_, err = f.machine.Process(ctx, v.Code, "p1", domain.DecisionUse, late)
		assert.True(t, domain.IsCode(err, domain.CodeExpired))

		stored, err := f.machine.Get(ctx, v.Code, now)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherExpired, stored.Status)
	})

	t.Run("unknown decision rejected", func(t *testing.T) {
		f := newFixture(t)
		v := issue(t, f)
		_, err := f.machine.Process(ctx, v.Code, "p1", domain.Decision("maybe"), now)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("lazy expiry on read", func(t *testing.T) {
		f := newFixture(t)
		f.confirmVisit(t, "a@x.com", "p1", domain.BookingPayload{"totalPrice": 2000.0})
		f.saveReward(t, &domain.Reward{ID: "r1", PointsCost: 15})
		v, err := f.machine.Issue(ctx, "a@x.com", "r1", now)
		require.NoError(t, err)

		late := now.Add(domain.VoucherValidity + time.Hour)
		got, err := f.machine.Get(ctx, v.Code, late)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherExpired, got.Status)
	})
}
