package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/adevinta/product-ingestor/stream"
)

// A Producer publishes messages to kafka topics and waits for their delivery
// reports.
type Producer struct {
	p *kafka.Producer
}

// NewProducer returns a [Producer] with the provided kafka configuration
// properties.
func NewProducer(config map[string]any) (Producer, error) {
	kconfig, err := configMap(config)
	if err != nil {
		return Producer{}, err
	}

	p, err := kafka.NewProducer(&kconfig)
	if err != nil {
		return Producer{}, fmt.Errorf("failed to create a producer: %w", err)
	}

	return Producer{p}, nil
}

// Produce publishes msg into topic and blocks until the message is delivered
// or ctx is done. It returns the message with its partition and offset
// filled in.
func (prod Producer) Produce(ctx context.Context, topic string, msg stream.Message) (stream.Message, error) {
	events := make(chan kafka.Event, 1)

	kmsg := &kafka.Message{
		Key:            msg.Key,
		Value:          msg.Value,
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
	}

	for _, e := range msg.Metadata {
		hdr := kafka.Header{
			Key:   string(e.Key),
			Value: e.Value,
		}
		kmsg.Headers = append(kmsg.Headers, hdr)
	}

	if err := prod.p.Produce(kmsg, events); err != nil {
		return stream.Message{}, fmt.Errorf("failed to produce message: %w", err)
	}

	var e kafka.Event
	select {
	case e = <-events:
	case <-ctx.Done():
		return stream.Message{}, ctx.Err()
	}

	kmsg, ok := e.(*kafka.Message)
	if !ok {
		return stream.Message{}, errors.New("event type is not *kafka.Message")
	}
	if kmsg.TopicPartition.Error != nil {
		return stream.Message{}, fmt.Errorf("could not deliver message: %w", kmsg.TopicPartition.Error)
	}

	return toMessage(kmsg), nil
}

// Close flushes the outstanding messages, waiting at most timeoutMs, and
// closes the underlaying kafka producer. It returns the number of messages
// that could not be flushed.
func (prod Producer) Close(timeoutMs int) int {
	n := prod.p.Flush(timeoutMs)
	prod.p.Close()
	return n
}
