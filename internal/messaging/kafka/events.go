package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

const (
	// TopicNotifications - уведомления о заказах и платежах.
	TopicNotifications = "teashop.notifications"
	// TopicDeadLetterQueue - уведомления, которые не удалось опубликовать после всех попыток.
	TopicDeadLetterQueue = "teashop.dlq"
)

// Заголовки позволяют потребителям фильтровать сообщения, не разбирая тело.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope - тело сообщения outbox в топике.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func newEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   publishedAt,
	}
}

func recordHeaders(msg domain.OutboxMessage) []sarama.RecordHeader {
	pairs := [][2]string{
		{HeaderEventType, msg.EventType},
		{HeaderAggregateType, msg.AggregateType},
		{HeaderOutboxID, msg.ID},
	}
	headers := make([]sarama.RecordHeader, 0, len(pairs))
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		headers = append(headers, sarama.RecordHeader{Key: []byte(kv[0]), Value: []byte(kv[1])})
	}
	return headers
}

// partitionKey держит уведомления одного заказа в одной партиции.
func partitionKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID
}
