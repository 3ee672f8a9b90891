// Package catalog is the reward catalog collaborator. The ledger core reads
// rewards and decrements stock; it never creates or edits catalog entries.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/store"
)

// Catalog is the contract the voucher state machine consumes.
type Catalog interface {
	// GetReward returns a reward by id, or NotFound.
	GetReward(ctx context.Context, id string) (*domain.Reward, error)

	// DecrementStock performs a best-effort conditional decrement-if-positive.
	// Unbounded stock is a no-op. Returns OutOfStock when the counter is
	// already zero; a bounded number of CAS retries absorbs benign races.
	DecrementStock(ctx context.Context, id string) error
}

// StoreCatalog is the record-store-backed Catalog.
type StoreCatalog struct {
	store store.Store
}

// NewStoreCatalog creates a catalog over the record store.
func NewStoreCatalog(s store.Store) *StoreCatalog {
	return &StoreCatalog{store: s}
}

func rewardKey(id string) string { return "reward:" + id }

const decrementAttempts = 3

func (c *StoreCatalog) GetReward(ctx context.Context, id string) (*domain.Reward, error) {
	var reward domain.Reward
	if _, err := store.GetJSON(ctx, c.store, rewardKey(id), &reward); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrNotFound("reward", id)
		}
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return &reward, nil
}

func (c *StoreCatalog) DecrementStock(ctx context.Context, id string) error {
	for attempt := 0; attempt < decrementAttempts; attempt++ {
		var reward domain.Reward
		version, err := store.GetJSON(ctx, c.store, rewardKey(id), &reward)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrNotFound("reward", id)
			}
			return fmt.Errorf("get reward for decrement: %w", err)
		}
		if reward.Stock == nil {
			return nil
		}
		if *reward.Stock <= 0 {
			return domain.ErrOutOfStock(id)
		}

		next := *reward.Stock - 1
		reward.Stock = &next
		if _, err := store.SwapJSON(ctx, c.store, rewardKey(id), version, &reward); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return fmt.Errorf("decrement stock: %w", err)
		}
		return nil
	}
	return domain.ErrConcurrentModification("reward stock")
}

// SaveReward upserts a catalog entry. Used by seeding and admin tooling, not
// by the ledger core.
func (c *StoreCatalog) SaveReward(ctx context.Context, reward *domain.Reward) error {
	if err := reward.Validate(); err != nil {
		return err
	}
	data, err := jsonMarshal(reward)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, rewardKey(reward.ID), data, time.Duration(0)); err != nil {
		return fmt.Errorf("save reward: %w", err)
	}
	if err := c.store.AddMember(ctx, "rewards", reward.ID); err != nil {
		return fmt.Errorf("index reward: %w", err)
	}
	return nil
}

// ListRewards returns every catalog entry.
func (c *StoreCatalog) ListRewards(ctx context.Context) ([]domain.Reward, error) {
	ids, err := c.store.Members(ctx, "rewards")
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	out := make([]domain.Reward, 0, len(ids))
	for _, id := range ids {
		reward, err := c.GetReward(ctx, id)
		if err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *reward)
	}
	return out, nil
}
