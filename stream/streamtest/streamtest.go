// Package streamtest provides utilities for stream testing.
package streamtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/adevinta/product-ingestor/stream"
)

// Parse parses a json file with messages and returns them. Messages are
// assigned consecutive offsets starting at zero.
func Parse(filename string) ([]stream.Message, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	var testdata []struct {
		Key      *string `json:"key,omitempty"`
		Value    *string `json:"value,omitempty"`
		Metadata []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"metadata,omitempty"`
	}

	if err := json.NewDecoder(f).Decode(&testdata); err != nil {
		return nil, fmt.Errorf("could not decode file: %w", err)
	}

	var msgs []stream.Message
	for i, td := range testdata {
		msg := stream.Message{Offset: int64(i)}
		if td.Key != nil {
			msg.Key = []byte(*td.Key)
		}
		if td.Value != nil {
			msg.Value = []byte(*td.Value)
		}
		for _, e := range td.Metadata {
			if e.Key == "" {
				return nil, errors.New("empty metadata key")
			}
			if e.Value == "" {
				return nil, errors.New("empty metadata value")
			}
			entry := stream.MetadataEntry{
				Key:   []byte(e.Key),
				Value: []byte(e.Value),
			}
			msg.Metadata = append(msg.Metadata, entry)
		}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}

// MustParse is like [Parse] but panics if the file cannot be parsed.
func MustParse(filename string) []stream.Message {
	msgs, err := Parse(filename)
	if err != nil {
		panic(err)
	}
	return msgs
}

// MockProcessor mocks a stream processor with a predefined set of messages.
// It implements the interface [stream.Processor].
type MockProcessor struct {
	msgs []stream.Message
}

// NewMockProcessor returns a [MockProcessor]. It initializes its internal
// list of messages with msgs.
func NewMockProcessor(msgs []stream.Message) *MockProcessor {
	return &MockProcessor{msgs}
}

// Process processes the messages passed to [NewMockProcessor]. The topic of
// every message is set to the provided one.
func (mp *MockProcessor) Process(ctx context.Context, topic string, h stream.MsgHandler) error {
	for _, msg := range mp.msgs {
		if ctx.Err() != nil {
			return nil
		}
		msg.Topic = topic
		if err := h(msg); err != nil {
			return err
		}
	}
	return nil
}

// FlakyProcessor is a [stream.Processor] whose calls to Process fail a
// predefined number of times before delivering its messages. Every failing
// call delivers the messages of its step first, which allows to simulate
// connection losses in the middle of a stream.
type FlakyProcessor struct {
	mu    sync.Mutex
	steps [][]stream.Message
	err   error
	calls int
}

// NewFlakyProcessor returns a [FlakyProcessor]. The i-th call to Process
// delivers steps[i] and, if it is not the last step, returns err.
func NewFlakyProcessor(err error, steps ...[]stream.Message) *FlakyProcessor {
	return &FlakyProcessor{steps: steps, err: err}
}

// Process implements [stream.Processor].
func (fp *FlakyProcessor) Process(ctx context.Context, topic string, h stream.MsgHandler) error {
	fp.mu.Lock()
	call := fp.calls
	fp.calls++
	fp.mu.Unlock()

	if call >= len(fp.steps) {
		return nil
	}

	if err := NewMockProcessor(fp.steps[call]).Process(ctx, topic, h); err != nil {
		return err
	}

	if call < len(fp.steps)-1 {
		return fp.err
	}
	return nil
}

// Calls returns the number of times Process has been called.
func (fp *FlakyProcessor) Calls() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.calls
}
