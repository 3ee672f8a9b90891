package domain

import (
	"fmt"
	"strings"
)

// NormalizeAccountID canonicalizes a user identifier (email or equivalent).
// All storage keys and aggregation use the normalized form, so the same
// logical account can never appear under two spellings.
func NormalizeAccountID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateAccountID checks that an account identifier is usable after
// normalization.
func ValidateAccountID(raw string) error {
	id := NormalizeAccountID(raw)
	if id == "" {
		return ErrValidation("account id is required")
	}
	if strings.ContainsAny(id, " \t\n") {
		return ErrValidation(fmt.Sprintf("account id %q contains whitespace", id))
	}
	return nil
}

// ValidatePartnerID checks that a partner identifier is non-empty.
func ValidatePartnerID(partnerID string) error {
	if strings.TrimSpace(partnerID) == "" {
		return ErrValidation("partner id is required")
	}
	return nil
}
