// Package franz allows to process messages from a kafka topic using the
// franz-go client. Records are acknowledged as soon as they are polled.
package franz

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/adevinta/product-ingestor/stream"
)

// Config contains the configuration of an [AutoAckProcessor].
type Config struct {
	Brokers  []string
	GroupID  string
	Username string
	Password string

	// ResetToStart makes a group without committed offsets start
	// consuming from the beginning of the topic.
	ResetToStart bool
}

// poller is the subset of [kgo.Client] used by [AutoAckProcessor].
type poller interface {
	AddConsumeTopics(topics ...string)
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// An AutoAckProcessor processes messages from a kafka topic. It relies on
// the franz-go group autocommit, which commits the offsets of every polled
// record independently of the result of the handler.
//
// Polled records that were not handed to the handler because Process
// returned early are kept and delivered first by the next call to
// Process, so every committed record reaches a handler.
type AutoAckProcessor struct {
	cl poller

	// remaining holds the polled records not delivered yet.
	remaining []*kgo.Record
}

// NewAutoAckProcessor returns an [AutoAckProcessor].
func NewAutoAckProcessor(cfg Config, opts ...kgo.Opt) (*AutoAckProcessor, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("missing brokers")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("missing group ID")
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
	}
	if cfg.ResetToStart {
		kopts = append(kopts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}
	if cfg.Username != "" && cfg.Password != "" {
		kopts = append(kopts, saslOpts(cfg.Username, cfg.Password)...)
	}
	kopts = append(kopts, opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create a client: %w", err)
	}

	return &AutoAckProcessor{cl: cl}, nil
}

// Process processes the messages received in the provided topic by calling
// h. This method blocks the calling goroutine until the specified context is
// cancelled or an error occurs. It must not be called concurrently.
//
// If h fails, the failing record is considered processed and Process
// returns. The records of the same fetch that follow it are delivered by
// the next call. Fetch errors are returned after delivering the records of
// the fetch.
func (proc *AutoAckProcessor) Process(ctx context.Context, topic string, h stream.MsgHandler) error {
	proc.cl.AddConsumeTopics(topic)

	for {
		if err := proc.deliver(h); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		fetches := proc.cl.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}

		// Records polled before ctx was done are already committed.
		proc.remaining = append(proc.remaining, fetches.Records()...)
		if ctx.Err() != nil {
			return nil
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			if err := proc.deliver(h); err != nil {
				return err
			}
			fe := errs[0]
			return fmt.Errorf("error fetching topic %v partition %v: %w", fe.Topic, fe.Partition, fe.Err)
		}
	}
}

// deliver hands the remaining records to h in order. It stops at the first
// error.
func (proc *AutoAckProcessor) deliver(h stream.MsgHandler) error {
	for len(proc.remaining) > 0 {
		r := proc.remaining[0]
		proc.remaining = proc.remaining[1:]

		if err := h(toMessage(r)); err != nil {
			return fmt.Errorf("error processing message: %w", err)
		}
	}
	proc.remaining = nil
	return nil
}

// Close commits the polled offsets and closes the underlaying client.
func (proc *AutoAckProcessor) Close() error {
	proc.cl.Close()
	return nil
}

func toMessage(r *kgo.Record) stream.Message {
	msg := stream.Message{
		Key:       r.Key,
		Value:     r.Value,
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp,
	}

	for _, hdr := range r.Headers {
		entry := stream.MetadataEntry{
			Key:   []byte(hdr.Key),
			Value: hdr.Value,
		}
		msg.Metadata = append(msg.Metadata, entry)
	}

	return msg
}
