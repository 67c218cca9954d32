package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/metrics"
)

// Publisher publishes domain events through a watermill publisher with
// circuit breaker protection. It implements domain.EventPublisher.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[interface{}]
}

// NewPublisher wraps pub. breaker may be nil.
func NewPublisher(pub message.Publisher, breaker *gobreaker.CircuitBreaker[interface{}]) *Publisher {
	return &Publisher{
		publisher: pub,
		breaker:   breaker,
	}
}

// PublishConnectionRequested publishes event keyed by its request id, so
// JetStream drops republished copies inside the duplicate window
func (p *Publisher) PublishConnectionRequested(ctx context.Context, event domain.ConnectionRequestedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.RequestID.String(), payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set("to_user_id", event.ToUserID)

	err = p.publish(domain.TopicConnectionRequested, msg)
	metrics.RecordEventPublish(domain.TopicConnectionRequested, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", domain.TopicConnectionRequested, err)
	}
	return nil
}

func (p *Publisher) publish(topic string, msg *message.Message) error {
	if p.breaker == nil {
		return p.publisher.Publish(topic, msg)
	}
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	return err
}
