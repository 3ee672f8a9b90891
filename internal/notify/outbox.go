// Package notify implements fire-and-forget notifications: state transitions
// enqueue an event draft into an outbox list in the record store, and a
// separate notifier process drains the list to Kafka and partner webhooks.
// Enqueue and delivery failures are logged and never affect the transition
// that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/store"
)

const (
	outboxKey       = "outbox:events"
	outboxCursorKey = "outbox:cursor"
)

// Outbox is the write side of the notification queue.
type Outbox struct {
	store  store.Store
	logger *slog.Logger
}

// NewOutbox creates an outbox over the record store.
func NewOutbox(s store.Store, logger *slog.Logger) *Outbox {
	return &Outbox{store: s, logger: logger}
}

// Enqueue appends an event draft. Deliberately returns nothing: the caller's
// state transition has already committed and must not be rolled back or
// blocked on notification plumbing.
func (o *Outbox) Enqueue(ctx context.Context, draft domain.OutboxDraft) {
	if err := store.AppendJSON(ctx, o.store, outboxKey, draft); err != nil {
		o.logger.Error("outbox enqueue failed",
			"event_type", draft.EventType,
			"event_id", draft.EventID,
			"error", err,
		)
	}
}

type cursor struct {
	Next int `json:"next"`
}

// Pending returns undelivered events along with the cursor state needed to
// advance past them.
func (o *Outbox) Pending(ctx context.Context) ([]domain.OutboxDraft, int, int64, error) {
	var cur cursor
	version, err := store.GetJSON(ctx, o.store, outboxCursorKey, &cur)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, 0, 0, err
	}

	raw, err := o.store.List(ctx, outboxKey)
	if err != nil {
		return nil, 0, 0, err
	}
	if cur.Next >= len(raw) {
		return nil, cur.Next, version, nil
	}

	events := make([]domain.OutboxDraft, 0, len(raw)-cur.Next)
	for _, data := range raw[cur.Next:] {
		var draft domain.OutboxDraft
		if err := json.Unmarshal(data, &draft); err != nil {
			return nil, 0, 0, err
		}
		events = append(events, draft)
	}
	return events, cur.Next, version, nil
}

// trimThreshold is the delivered-prefix length that triggers compaction, so
// the event list stays bounded instead of growing for the life of the
// deployment.
const trimThreshold = 256

// Advance moves the cursor to next, conditional on the version read by
// Pending. A conflict means another notifier instance advanced first.
//
// Once the delivered prefix reaches trimThreshold the list is compacted:
// the cursor resets to zero, then the prefix is trimmed. The reset lands
// first so a crash between the two re-delivers at most one batch; it never
// skips one.
func (o *Outbox) Advance(ctx context.Context, next int, observedVersion int64) error {
	version, err := store.SwapJSON(ctx, o.store, outboxCursorKey, observedVersion, cursor{Next: next})
	if err != nil {
		return err
	}
	if next < trimThreshold {
		return nil
	}
	if _, err := store.SwapJSON(ctx, o.store, outboxCursorKey, version, cursor{Next: 0}); err != nil {
		return err
	}
	return o.store.Trim(ctx, outboxKey, next)
}
