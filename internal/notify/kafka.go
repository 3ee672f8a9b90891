package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/infra"
)

// KafkaSink publishes events to per-type Kafka topics
// (venuepass.loyalty.<event_type>), keyed by account so per-account ordering
// is preserved within a partition.
type KafkaSink struct {
	producer *infra.KafkaProducer
}

// NewKafkaSink creates a Kafka sink over the given producer.
func NewKafkaSink(producer *infra.KafkaProducer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Deliver(ctx context.Context, event domain.OutboxDraft) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal kafka message: %w", err)
	}
	topic := "venuepass.loyalty." + event.EventType
	return s.producer.Publish(ctx, topic, []byte(event.AccountID), msg)
}
