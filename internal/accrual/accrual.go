// Package accrual derives the point value of a booking. ComputePoints is a
// pure function of the payload; crediting (the one-time visited transition)
// lives in the visits package.
package accrual

import "github.com/venuepass/loyalty/internal/domain"

// Per-ticket-type point rates, multiplied by party size.
const (
	rateVIP     = 50
	rateFamily  = 30
	rateGroup   = 20
	rateDefault = 10

	transportBonus = 5
	priceDivisor   = 100
)

// ComputePoints returns the points a booking is worth:
//
//  1. an explicit precomputed "points" field wins verbatim;
//  2. else a positive "totalPrice" yields floor(price / 100);
//  3. else the per-ticket-type table applies, scaled by party size.
//
// A transport add-on adds a flat bonus on top of whichever branch fired.
// Absent or invalid numeric fields coerce to zero/one as appropriate; the
// result is never negative and the function never fails.
func ComputePoints(payload domain.BookingPayload) int {
	points := basePoints(payload)
	if payload.Bool("transport") || payload.Bool("busTransfer") {
		points += transportBonus
	}
	if points < 0 {
		return 0
	}
	return points
}

func basePoints(payload domain.BookingPayload) int {
	if explicit, ok := payload.Int("points"); ok {
		if explicit < 0 {
			return 0
		}
		return explicit
	}

	if price, ok := payload.Float("totalPrice"); ok && price > 0 {
		return int(price / priceDivisor)
	}

	partySize := 1
	if n, ok := payload.Int("partySize"); ok && n > 0 {
		partySize = n
	}

	switch payload.String("ticketType") {
	case "vip":
		return rateVIP * partySize
	case "family":
		return rateFamily * partySize
	case "group":
		return rateGroup * partySize
	default:
		return rateDefault * partySize
	}
}
