package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Producer publishes engine events to Kafka. Writers are created lazily
// per topic and shared, so Publish is safe from the monitor goroutine and
// API handlers at the same time.
type Producer struct {
	mu      sync.RWMutex
	writers map[string]*kafka.Writer
	brokers []string
	async   bool
	log     *logger.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers []string
	Async   bool
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		brokers: cfg.Brokers,
		async:   cfg.Async,
		log:     logger.Get().With("component", "kafka_producer"),
	}
}

// getWriter returns or creates a writer for a topic
func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.RLock()
	w, ok := p.writers[topic]
	p.mu.RUnlock()
	if ok {
		return w
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}

	w = &kafka.Writer{
		Addr:     kafka.TCP(p.brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    p.async,
	}
	p.writers[topic] = w
	return w
}

// Publish JSON-encodes an event and sends it to a topic. The key selects
// the partition, so events sharing a key keep their order.
func (p *Producer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	err = p.getWriter(topic).WriteMessages(ctx, msg)
	metrics.RecordKafkaMessage(topic, err)
	if err != nil {
		p.log.Errorf("Failed to publish to %s: %v", topic, err)
		return err
	}

	p.log.Debugf("Published to %s: %s", topic, key)
	return nil
}

// Close closes every writer, collecting errors so one failure does not
// leave the rest open.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	multi := &errors.MultiError{}
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Errorf("Failed to close writer for %s: %v", topic, err)
			multi.Add(errors.Wrapf(err, "close writer %s", topic))
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return multi.ToError()
}
