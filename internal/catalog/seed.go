package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/venuepass/loyalty/internal/domain"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape of a catalog seed file:
//
//	rewards:
//	  - id: free-coffee
//	    name: Free coffee
//	    points_cost: 15
//	    eligible_partners: [p1, p2]
//	    stock: 100
//	    status: active
type seedFile struct {
	Rewards []domain.Reward `yaml:"rewards"`
}

// LoadSeed parses a YAML catalog seed file.
func LoadSeed(path string) ([]domain.Reward, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i := range f.Rewards {
		if f.Rewards[i].Status == "" {
			f.Rewards[i].Status = domain.RewardActive
		}
		if err := f.Rewards[i].Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return f.Rewards, nil
}

// ApplySeed upserts seed entries into the catalog. Existing stock counters
// are preserved so a restart does not replenish inventory.
func ApplySeed(ctx context.Context, c *StoreCatalog, rewards []domain.Reward, logger *slog.Logger) error {
	for i := range rewards {
		reward := rewards[i]
		if existing, err := c.GetReward(ctx, reward.ID); err == nil {
			reward.Stock = existing.Stock
		}
		if err := c.SaveReward(ctx, &reward); err != nil {
			return fmt.Errorf("apply seed %s: %w", reward.ID, err)
		}
		logger.Info("reward seeded", "reward_id", reward.ID, "points_cost", reward.PointsCost)
	}
	return nil
}

func jsonMarshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal reward: %w", err)
	}
	return data, nil
}
