package domain

import "time"

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryEarned   EntryKind = "earned"
	EntryRedeemed EntryKind = "redeemed"
)

// LedgerEntry is one immutable event in an account's append-only points log.
// Earned entries reference a visit identity; Redeemed entries reference a
// voucher code. Entries are never mutated or deleted.
type LedgerEntry struct {
	AccountID  string    `json:"account_id"`
	Kind       EntryKind `json:"kind"`
	Points     int       `json:"points"`
	Reference  string    `json:"reference"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Balance is the reconciled point position of an account.
type Balance struct {
	Earned    int `json:"earned"`
	Redeemed  int `json:"redeemed"`
	Available int `json:"available"`
}
