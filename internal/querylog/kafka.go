package querylog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultKafkaTopic receives query events when KAFKA_TOPIC is unset.
const DefaultKafkaTopic = "supportrag.queries"

// kafkaBatchTimeout bounds how long an event waits in the producer buffer.
const kafkaBatchTimeout = 100 * time.Millisecond

// ErrKafkaClosed is returned by Record after Close.
var ErrKafkaClosed = errors.New("querylog: kafka sink closed")

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each entry as a JSON message keyed by query ID. Writes are
// asynchronous: Record returns once the message is buffered, and delivery
// failures are logged by the producer.
type Kafka struct {
	writer messageWriter
	mu     sync.Mutex
	closed bool
}

// NewKafka returns a sink producing to topic on brokers. log receives
// delivery failures; nil uses slog.Default.
func NewKafka(brokers []string, topic string, log *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("querylog: kafka: no brokers configured")
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	if log == nil {
		log = slog.Default()
	}
	return &Kafka{writer: newKafkaWriter(brokers, topic, log)}, nil
}

func newKafkaWriter(brokers []string, topic string, log *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Gzip,
		BatchTimeout: kafkaBatchTimeout,
		Async:        true,
		Completion:   completionLogger(topic, log),
	}
}

// completionLogger reports batches the producer failed to deliver.
func completionLogger(topic string, log *slog.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		log.Warn("querylog: kafka delivery failed",
			slog.String("topic", topic),
			slog.Int("messages", len(msgs)),
			slog.Any("error", err),
		)
	}
}

// Record implements Sink.
func (k *Kafka) Record(ctx context.Context, e Entry) error {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return ErrKafkaClosed
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("querylog: kafka: encode: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.ID), Value: value}); err != nil {
		return fmt.Errorf("querylog: kafka: write: %w", err)
	}
	return nil
}

// Close flushes buffered messages and closes the producer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.writer.Close()
}
