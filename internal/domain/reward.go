package domain

// RewardStatus marks whether a reward can currently be redeemed.
type RewardStatus string

const (
	RewardActive   RewardStatus = "active"
	RewardInactive RewardStatus = "inactive"
)

// Reward is a catalog entry redeemable for points. Stock is advisory
// inventory: nil means unbounded. An empty EligiblePartners set means the
// reward is open to every partner.
type Reward struct {
	ID               string       `json:"id" yaml:"id"`
	Name             string       `json:"name" yaml:"name"`
	PointsCost       int          `json:"points_cost" yaml:"points_cost"`
	EligiblePartners []string     `json:"eligible_partners,omitempty" yaml:"eligible_partners"`
	Stock            *int         `json:"stock,omitempty" yaml:"stock"`
	Status           RewardStatus `json:"status" yaml:"status"`
}

// EligibleFor reports whether an account that has visited the given partners
// qualifies for this reward.
func (r *Reward) EligibleFor(visitedPartnerIDs []string) bool {
	if len(r.EligiblePartners) == 0 {
		return true
	}
	eligible := make(map[string]struct{}, len(r.EligiblePartners))
	for _, p := range r.EligiblePartners {
		eligible[p] = struct{}{}
	}
	for _, p := range visitedPartnerIDs {
		if _, ok := eligible[p]; ok {
			return true
		}
	}
	return false
}

// Validate checks catalog entry invariants.
func (r *Reward) Validate() error {
	if r.ID == "" {
		return ErrValidation("reward id is required")
	}
	if r.PointsCost < 1 {
		return ErrValidation("reward points cost must be at least 1")
	}
	if r.Stock != nil && *r.Stock < 0 {
		return ErrValidation("reward stock cannot be negative")
	}
	return nil
}
