// Package kafka allows to process messages from a kafka topic acknowledging
// them as soon as they are received.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/adevinta/product-ingestor/stream"
)

// readTimeout is the maximum time a single read blocks before checking the
// context again.
const readTimeout = 100 * time.Millisecond

// An AutoAckProcessor processes messages from a kafka topic. The offset of a
// message is stored as soon as the message is read and before the handler
// is called, so a failing handler never causes re-delivery.
type AutoAckProcessor struct {
	c *kafka.Consumer
}

// NewAutoAckProcessor returns an [AutoAckProcessor] with the provided kafka
// configuration properties.
func NewAutoAckProcessor(config map[string]any) (AutoAckProcessor, error) {
	kconfig, err := configMap(config)
	if err != nil {
		return AutoAckProcessor{}, err
	}

	// confluent-kafka-go uses librdkafka under the hood. Offsets are
	// committed in a background thread (enable.auto.commit=true) from the
	// in-memory offset store. We disable the automatic offset store and
	// store every message explicitly right after it is read, which makes
	// the acknowledge-on-receive contract independent of librdkafka
	// defaults.
	kconfig["enable.auto.commit"] = true
	kconfig["enable.auto.offset.store"] = false

	c, err := kafka.NewConsumer(&kconfig)
	if err != nil {
		return AutoAckProcessor{}, fmt.Errorf("failed to create a consumer: %w", err)
	}

	return AutoAckProcessor{c}, nil
}

// Process processes the messages received in the provided topic by calling
// h. This method blocks the calling goroutine until the specified context is
// cancelled or an error occurs. It replaces the current kafka subscription,
// so it should not be called concurrently.
func (proc AutoAckProcessor) Process(ctx context.Context, topic string, h stream.MsgHandler) error {
	if err := proc.c.Subscribe(topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		kmsg, err := proc.c.ReadMessage(readTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			return fmt.Errorf("error reading message: %w", err)
		}

		if _, err := proc.c.StoreMessage(kmsg); err != nil {
			return fmt.Errorf("error storing offset: %w", err)
		}

		if err := h(toMessage(kmsg)); err != nil {
			return fmt.Errorf("error processing message: %w", err)
		}
	}
}

// Close closes the underlaying kafka consumer.
func (proc AutoAckProcessor) Close() error {
	return proc.c.Close()
}

func toMessage(kmsg *kafka.Message) stream.Message {
	msg := stream.Message{
		Key:       kmsg.Key,
		Value:     kmsg.Value,
		Partition: kmsg.TopicPartition.Partition,
		Offset:    int64(kmsg.TopicPartition.Offset),
		Timestamp: kmsg.Timestamp,
	}
	if kmsg.TopicPartition.Topic != nil {
		msg.Topic = *kmsg.TopicPartition.Topic
	}

	for _, hdr := range kmsg.Headers {
		entry := stream.MetadataEntry{
			Key:   []byte(hdr.Key),
			Value: hdr.Value,
		}
		msg.Metadata = append(msg.Metadata, entry)
	}

	return msg
}

func configMap(config map[string]any) (kafka.ConfigMap, error) {
	kconfig := make(kafka.ConfigMap)
	for k, v := range config {
		if err := kconfig.SetKey(k, v); err != nil {
			return nil, fmt.Errorf("could not set config key: %w", err)
		}
	}
	return kconfig, nil
}
