package domain

import "time"

// VoucherStatus is the lifecycle state of a redemption voucher.
type VoucherStatus string

const (
	VoucherPending  VoucherStatus = "pending"
	VoucherApplied  VoucherStatus = "applied"
	VoucherUsed     VoucherStatus = "used"
	VoucherRejected VoucherStatus = "rejected"
	VoucherExpired  VoucherStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s VoucherStatus) Terminal() bool {
	return s == VoucherUsed || s == VoucherRejected || s == VoucherExpired
}

// Decision is a partner's verdict on an applied voucher.
type Decision string

const (
	DecisionUse    Decision = "use"
	DecisionReject Decision = "reject"
)

// VoucherValidity is how long an issued voucher stays redeemable.
const VoucherValidity = 30 * 24 * time.Hour

// Voucher is a single-use redemption of a reward. PointsCost is snapshotted
// at issuance so later catalog price changes never affect an outstanding
// voucher. Vouchers are never deleted; terminal state is appended in place.
type Voucher struct {
	Code        string        `json:"code"`
	AccountID   string        `json:"account_id"`
	RewardID    string        `json:"reward_id"`
	PointsCost  int           `json:"points_cost"`
	Status      VoucherStatus `json:"status"`
	IssuedAt    time.Time     `json:"issued_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	AppliedTo   *string       `json:"applied_to,omitempty"`
	AppliedAt   *time.Time    `json:"applied_at,omitempty"`
	ProcessedBy *string       `json:"processed_by,omitempty"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}

// ExpiredBy reports whether the voucher's validity window has passed. Expiry
// is a passive, time-derived property: it is evaluated lazily by whichever
// operation touches the voucher next, never by a background sweep.
func (v *Voucher) ExpiredBy(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
