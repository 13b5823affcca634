package product

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adevinta/product-ingestor/log"
	"github.com/adevinta/product-ingestor/stream"
)

// TypeIDHeader is the metadata key that carries the type tag of a message.
// It is compatible with the type headers written by Spring Kafka JSON
// serializers.
const TypeIDHeader = "__TypeId__"

// DefaultTypeTag is the type tag accepted by a [Client] created without
// explicit tags.
const DefaultTypeTag = "product"

// Record is a product payload received from the stream together with the
// coordinates of the message that carried it.
type Record struct {
	Key       string
	Payload   Payload
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// RecordHandler processes a product record.
type RecordHandler func(rec Record) error

// Client receives products from a stream.
type Client struct {
	proc stream.Processor
	tags map[string]bool
}

// NewClient returns a client that reads products using the provided stream
// processor. Only messages tagged with one of tags, or without a type tag,
// are decoded. If no tags are provided, [DefaultTypeTag] is used.
func NewClient(proc stream.Processor, tags ...string) Client {
	if len(tags) == 0 {
		tags = []string{DefaultTypeTag}
	}

	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return Client{proc: proc, tags: m}
}

// ProcessRecords receives products from the provided topic and processes
// them using h. This method blocks the calling goroutine until the specified
// context is cancelled or the underlying processor fails. Messages that
// cannot be decoded make it return an error.
//
// The offset of an undecodable message is already acknowledged when the
// error is returned, so it is not received again. Callers that retry
// ProcessRecords after a fixed delay, like the ingestion pipeline, pause
// intake for one retry interval per undecodable message. The message is
// logged at debug level.
func (c Client) ProcessRecords(ctx context.Context, topic string, h RecordHandler) error {
	return c.proc.Process(ctx, topic, func(msg stream.Message) error {
		if tag, ok := msg.Header(TypeIDHeader); ok && !c.tags[string(tag)] {
			// Do not process messages of other types.
			log.Debug.Printf("product: skipping message with type %q at offset %v", tag, msg.Offset)
			return nil
		}

		var payload Payload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			log.Debug.Printf("product: undecodable message at offset %v: %q", msg.Offset, msg.Value)
			return fmt.Errorf("could not unmarshal product with key %s: %w", msg.Key, err)
		}

		rec := Record{
			Key:       string(msg.Key),
			Payload:   payload,
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Timestamp: msg.Timestamp,
		}
		return h(rec)
	})
}

// Encode returns a stream message carrying p tagged with tag. The message
// key is the product UUID.
func Encode(p Payload, tag string) (stream.Message, error) {
	value, err := json.Marshal(p)
	if err != nil {
		return stream.Message{}, fmt.Errorf("could not marshal product: %w", err)
	}

	msg := stream.Message{
		Key:   []byte(p.UUID),
		Value: value,
		Metadata: []stream.MetadataEntry{
			{
				Key:   []byte(TypeIDHeader),
				Value: []byte(tag),
			},
		},
	}
	return msg, nil
}
