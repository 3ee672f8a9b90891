package domain

import (
	"fmt"
	"time"
)

// BookingPayload is the opaque booking detail map attached to a visit record
// (ticket type, party size, total price, transport add-on, timestamps).
// Intake systems send it as-is; the accrual engine reads a known subset of
// keys with lenient coercion.
type BookingPayload map[string]any

// Int reads an integer field, tolerating JSON's float64 decoding and string
// representations. Returns false if the field is absent or not numeric.
func (p BookingPayload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Float reads a numeric field as float64. Returns false if absent or not numeric.
func (p BookingPayload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Bool reads a flag field, treating "true"/"1"/1 as set.
func (p BookingPayload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// String reads a string field, empty if absent.
func (p BookingPayload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// VisitRecord is the single canonical record of one account's visit to one
// partner, keyed by (AccountID, PartnerID). PointsAwarded is set exactly when
// Visited flips to true and is immutable afterwards; the one-time transition
// is the crediting gate.
type VisitRecord struct {
	AccountID     string         `json:"account_id"`
	PartnerID     string         `json:"partner_id"`
	Booking       BookingPayload `json:"booking"`
	Visited       bool           `json:"visited"`
	VisitedAt     *time.Time     `json:"visited_at,omitempty"`
	PointsAwarded *int           `json:"points_awarded,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Identity returns the canonical identity of the record, used as the natural
// dedup key for earned-points reconciliation and ledger references.
func (r *VisitRecord) Identity() string {
	return VisitIdentity(r.AccountID, r.PartnerID)
}

// VisitIdentity builds the canonical visit identity for an (account, partner)
// pair. Account IDs are normalized so legacy key spellings collapse to one.
func VisitIdentity(accountID, partnerID string) string {
	return NormalizeAccountID(accountID) + "/" + partnerID
}
