package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/store"
)

// Sink delivers one event to an external destination.
type Sink interface {
	Deliver(ctx context.Context, event domain.OutboxDraft) error
}

// Notifier drains the outbox to its sinks on a fixed interval. Sink errors
// are logged and the event is still considered delivered: notifications are
// best-effort by contract, and a poisoned event must not wedge the queue.
type Notifier struct {
	outbox   *Outbox
	sinks    []Sink
	logger   *slog.Logger
	interval time.Duration
}

// NewNotifier creates a notifier over the given sinks.
func NewNotifier(outbox *Outbox, sinks []Sink, logger *slog.Logger) *Notifier {
	return &Notifier{
		outbox:   outbox,
		sinks:    sinks,
		logger:   logger,
		interval: 500 * time.Millisecond,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	n.logger.Info("notifier started", "interval", n.interval, "sinks", len(n.sinks))

	go func() {
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				n.logger.Info("notifier stopped")
				return
			case <-ticker.C:
				if err := n.poll(ctx); err != nil {
					n.logger.Error("notifier poll error", "error", err)
				}
			}
		}
	}()
}

func (n *Notifier) poll(ctx context.Context) error {
	events, from, cursorVersion, err := n.outbox.Pending(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		for _, sink := range n.sinks {
			if err := sink.Deliver(ctx, event); err != nil {
				n.logger.Error("notification delivery failed",
					"event_id", event.EventID,
					"event_type", event.EventType,
					"error", err,
				)
			}
		}
	}

	if err := n.outbox.Advance(ctx, from+len(events), cursorVersion); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Another notifier instance advanced the cursor first.
			n.logger.Debug("outbox cursor advanced elsewhere")
			return nil
		}
		return err
	}

	n.logger.Debug("notifier poll complete", "delivered", len(events))
	return nil
}
