package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted to the notification outbox.
const (
	EventVisitConfirmed   = "visit.confirmed"
	EventVoucherIssued    = "voucher.issued"
	EventVoucherApplied   = "voucher.applied"
	EventVoucherProcessed = "voucher.processed"
)

// OutboxDraft is a notification event queued for fire-and-forget delivery.
// Delivery failure never affects the state transition that produced it.
type OutboxDraft struct {
	EventID    uuid.UUID       `json:"event_id"`
	EventType  string          `json:"event_type"`
	AccountID  string          `json:"account_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func newDraft(eventType, accountID string, payload any) OutboxDraft {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return OutboxDraft{
		EventID:    uuid.New(),
		EventType:  eventType,
		AccountID:  accountID,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}
}

// NewVisitConfirmedEvent announces a visit credit.
func NewVisitConfirmedEvent(rec *VisitRecord) OutboxDraft {
	return newDraft(EventVisitConfirmed, rec.AccountID, map[string]any{
		"partner_id":     rec.PartnerID,
		"visited_at":     rec.VisitedAt,
		"points_awarded": rec.PointsAwarded,
	})
}

// NewVoucherIssuedEvent announces a new redemption voucher.
func NewVoucherIssuedEvent(v *Voucher) OutboxDraft {
	return newDraft(EventVoucherIssued, v.AccountID, map[string]any{
		"code":        v.Code,
		"reward_id":   v.RewardID,
		"points_cost": v.PointsCost,
		"expires_at":  v.ExpiresAt,
	})
}

// NewVoucherAppliedEvent announces a voucher attached to a booking.
func NewVoucherAppliedEvent(v *Voucher) OutboxDraft {
	return newDraft(EventVoucherApplied, v.AccountID, map[string]any{
		"code":       v.Code,
		"applied_to": v.AppliedTo,
		"applied_at": v.AppliedAt,
	})
}

// NewVoucherProcessedEvent announces a partner's terminal decision.
func NewVoucherProcessedEvent(v *Voucher) OutboxDraft {
	return newDraft(EventVoucherProcessed, v.AccountID, map[string]any{
		"code":         v.Code,
		"status":       v.Status,
		"processed_by": v.ProcessedBy,
		"processed_at": v.ProcessedAt,
	})
}
