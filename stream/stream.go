// Package stream allows to interact with different stream-processing
// platforms.
package stream

import (
	"context"
	"time"
)

// A Processor represents a stream message processor.
type Processor interface {
	Process(ctx context.Context, topic string, h MsgHandler) error
}

// A MsgHandler processes a message.
type MsgHandler func(msg Message) error

// Message represents a stream message together with the coordinates it was
// read from.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Metadata  []MetadataEntry
}

// MetadataEntry represents a metadata entry (a header in kafka terms).
type MetadataEntry struct {
	Key   []byte
	Value []byte
}

// Header returns the value of the last metadata entry with the provided key.
func (msg Message) Header(key string) (value []byte, ok bool) {
	for i := len(msg.Metadata) - 1; i >= 0; i-- {
		if string(msg.Metadata[i].Key) == key {
			return msg.Metadata[i].Value, true
		}
	}
	return nil, false
}
