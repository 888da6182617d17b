package kafka

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

var errPublisherNotReady = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher отправляет outbox-сообщения в один Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт паблишер. Пустой topic означает TopicNotifications.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicNotifications
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotReady
	}

	envelope := newEnvelope(msg, p.producer.now())
	if err := p.producer.SendJSON(p.topic, partitionKey(msg), envelope, recordHeaders(msg)...); err != nil {
		return fmt.Errorf("%w: outbox %s: %v", domain.ErrOutboxPublish, msg.ID, err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
