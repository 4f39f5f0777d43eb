package events

import (
	"context"
	"time"

	"pairwatch/internal/adapters/kafka"
	"pairwatch/internal/services/correlation"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

const publishTimeout = 10 * time.Second

// Publisher publishes engine events to Kafka
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// Attach subscribes the publisher to the engine's status transitions and
// monitor lifecycle. The engine fires listeners synchronously from the
// monitor loop, so publishing happens on a separate goroutine with its own
// deadline.
func (p *Publisher) Attach(svc *correlation.Service) {
	svc.OnStatusChange(func(t correlation.StatusTransition) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()

			if err := p.PublishStatusChange(ctx, t); err != nil {
				p.log.Errorf("Failed to publish status change for %s: %v", t.Pair, err)
			}
			if t.To.Divergent() {
				if err := p.PublishDivergence(ctx, t); err != nil {
					p.log.Errorf("Failed to publish divergence for %s: %v", t.Pair, err)
				}
			}
		}()
	})

	svc.OnMonitorStateChange(func(running bool, settings correlation.MonitorSettings) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()

			if err := p.PublishMonitorState(ctx, running, settings.Interval, len(settings.Windows)); err != nil {
				p.log.Errorf("Failed to publish monitor state: %v", err)
			}
		}()
	})
}

// PublishStatusChange publishes a status changed event keyed by pair
func (p *Publisher) PublishStatusChange(ctx context.Context, t correlation.StatusTransition) error {
	event := StatusChangedEvent{
		BaseEvent:   NewBaseEvent(TypeStatusChanged, "monitor"),
		Symbol1:     t.Pair.Symbol1,
		Symbol2:     t.Pair.Symbol2,
		From:        t.From.String(),
		To:          t.To.String(),
		Coefficient: t.Coefficient,
	}

	if err := p.producer.Publish(ctx, kafka.TopicCorrelationEvents, t.Pair.Key(), event); err != nil {
		return errors.Wrap(err, "publishing status change")
	}
	return nil
}

// PublishDivergence publishes a divergence event keyed by pair
func (p *Publisher) PublishDivergence(ctx context.Context, t correlation.StatusTransition) error {
	event := DivergenceEvent{
		BaseEvent:   NewBaseEvent(TypeDivergence, "monitor"),
		Symbol1:     t.Pair.Symbol1,
		Symbol2:     t.Pair.Symbol2,
		Status:      t.To.String(),
		Coefficient: t.Coefficient,
	}

	if err := p.producer.Publish(ctx, kafka.TopicCorrelationEvents, t.Pair.Key(), event); err != nil {
		return errors.Wrap(err, "publishing divergence")
	}
	return nil
}

// PublishMonitorState publishes a monitor lifecycle event
func (p *Publisher) PublishMonitorState(ctx context.Context, running bool, interval time.Duration, windows int) error {
	event := MonitorStateEvent{
		BaseEvent: NewBaseEvent(TypeMonitorState, "monitor"),
		Running:   running,
	}
	if running {
		event.Interval = interval.String()
		event.Windows = windows
	}

	if err := p.producer.Publish(ctx, kafka.TopicSystemEvents, "monitor", event); err != nil {
		return errors.Wrap(err, "publishing monitor state")
	}
	return nil
}
