package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
	"github.com/wms-platform/pick-floor/pkg/tracing"
)

// EventHandler handles one consumed CloudEvent
type EventHandler func(ctx context.Context, event *cloudevents.WMSCloudEvent) error

// MessageReader is the subset of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer routes messages from subscribed topics to handlers by event type
type Consumer struct {
	config    *Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
	newReader func(topic string) MessageReader

	mu       sync.Mutex
	readers  map[string]MessageReader
	handlers map[string]map[string]EventHandler // topic -> eventType -> handler
}

// NewConsumer creates a new Kafka consumer. m may be nil.
func NewConsumer(config *Config, logger *logging.Logger, m *metrics.Metrics) *Consumer {
	c := &Consumer{
		config:   config,
		logger:   logger.WithComponent("kafka-consumer"),
		metrics:  m,
		readers:  make(map[string]MessageReader),
		handlers: make(map[string]map[string]EventHandler),
	}
	c.newReader = c.kafkaReader
	return c
}

func (c *Consumer) kafkaReader(topic string) MessageReader {
	startOffset := kafka.FirstOffset
	if c.config.StartFromLatest {
		startOffset = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: c.config.CommitInterval,
		StartOffset:    startOffset,
	})
}

// Subscribe registers handler for eventType on topic. "*" matches any type.
func (c *Consumer) Subscribe(topic, eventType string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[topic]; !ok {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

// SubscribeAll subscribes to all event types on a topic with a single handler
func (c *Consumer) SubscribeAll(topic string, handler EventHandler) {
	c.Subscribe(topic, "*", handler)
}

// Start consumes every subscribed topic until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
		c.readers[topic] = c.newReader(topic)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			c.consumeTopic(ctx, topic)
		}(topic)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	c.mu.Lock()
	reader := c.readers[topic]
	c.mu.Unlock()

	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.WithError(err).Error("Error fetching message", "topic", topic)
			continue
		}

		event, err := DecodeEvent(msg)
		if err != nil {
			c.logger.WithError(err).Error("Dropping unparseable message", "topic", topic, "offset", msg.Offset)
			c.commit(ctx, reader, topic, msg)
			continue
		}

		c.logger.KafkaConsume(ctx, topic, event.Type, msg.Partition, msg.Offset)
		if err := c.dispatch(ctx, topic, event); err != nil {
			c.logger.WithError(err).Error("Error handling event", "topic", topic, "eventType", event.Type, "eventId", event.ID)
			c.record(topic, event.Type, false)
			// left uncommitted so the group redelivers it
			continue
		}
		c.record(topic, event.Type, true)
		c.commit(ctx, reader, topic, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, reader MessageReader, topic string, msg kafka.Message) {
	if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.WithError(err).Error("Error committing message", "topic", topic)
	}
}

func (c *Consumer) record(topic, eventType string, success bool) {
	if c.metrics != nil {
		c.metrics.RecordKafkaConsume(topic, eventType, success)
	}
}

func (c *Consumer) dispatch(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	c.mu.Lock()
	handlers, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handlers registered for topic %s", topic)
	}

	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	}
	if event.TraceParent != "" {
		ctx = tracing.ExtractTraceContext(ctx, tracing.MapCarrier{"traceparent": event.TraceParent})
	}

	if handler, ok := handlers[event.Type]; ok {
		return handler(ctx, event)
	}
	if handler, ok := handlers["*"]; ok {
		return handler(ctx, event)
	}
	return nil
}

// Close closes all readers
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close reader for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
