package product

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/adevinta/product-ingestor/log"
	"github.com/adevinta/product-ingestor/stream"
	"github.com/adevinta/product-ingestor/stream/streamtest"
)

const testTopic = "test_topic"

func TestClientProcessRecords(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		tags       []string
		want       []Record
		wantNilErr bool
	}{
		{
			name:     "default tag",
			filename: "testdata/messages.json",
			tags:     nil,
			want: []Record{
				{
					Key: "key0",
					Payload: Payload{
						UUID:        "1",
						Name:        "TestProduct",
						Description: "Test Description",
						Price:       1.0,
					},
					Topic:  testTopic,
					Offset: 0,
				},
				{
					Key: "key2",
					Payload: Payload{
						UUID:        "3",
						Name:        "Untagged",
						Description: "No type tag",
						Price:       3.5,
					},
					Topic:  testTopic,
					Offset: 2,
				},
			},
			wantNilErr: true,
		},
		{
			name:     "custom tags",
			filename: "testdata/messages.json",
			tags:     []string{"order"},
			want: []Record{
				{
					Key: "key1",
					Payload: Payload{
						UUID:        "2",
						Name:        "Other",
						Description: "Other type",
						Price:       2.0,
					},
					Topic:  testTopic,
					Offset: 1,
				},
				{
					Key: "key2",
					Payload: Payload{
						UUID:        "3",
						Name:        "Untagged",
						Description: "No type tag",
						Price:       3.5,
					},
					Topic:  testTopic,
					Offset: 2,
				},
			},
			wantNilErr: true,
		},
		{
			name:     "malformed payload",
			filename: "testdata/malformed.json",
			tags:     nil,
			want: []Record{
				{
					Key: "key0",
					Payload: Payload{
						UUID:        "1",
						Name:        "TestProduct",
						Description: "Test Description",
						Price:       1.0,
					},
					Topic:  testTopic,
					Offset: 0,
				},
			},
			wantNilErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := streamtest.MustParse(tt.filename)
			cli := NewClient(streamtest.NewMockProcessor(msgs), tt.tags...)

			var got []Record
			err := cli.ProcessRecords(context.Background(), testTopic, func(rec Record) error {
				got = append(got, rec)
				return nil
			})
			if (err == nil) != tt.wantNilErr {
				t.Errorf("unexpected error: wantNilErr=%v, got=%v", tt.wantNilErr, err)
			}

			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%v", diff)
			}
		})
	}
}

func TestClientProcessRecordsHandlerError(t *testing.T) {
	msgs := streamtest.MustParse("testdata/messages.json")
	cli := NewClient(streamtest.NewMockProcessor(msgs))

	errHandler := errors.New("handler error")
	err := cli.ProcessRecords(context.Background(), testTopic, func(rec Record) error {
		return errHandler
	})
	if !errors.Is(err, errHandler) {
		t.Errorf("unexpected error: want=%v, got=%v", errHandler, err)
	}
}

func TestClientProcessRecordsUndecodable(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	if err := log.SetLevel("debug"); err != nil {
		t.Fatalf("could not set log level: %v", err)
	}
	defer func() {
		log.SetOutput(os.Stderr)
		_ = log.SetLevel("info")
	}()

	msgs := streamtest.MustParse("testdata/malformed.json")
	cli := NewClient(streamtest.NewMockProcessor(msgs))

	var got []string
	err := cli.ProcessRecords(context.Background(), testTopic, func(rec Record) error {
		got = append(got, rec.Key)
		return nil
	})
	if err == nil {
		t.Fatal("expected error for undecodable message")
	}

	// The message that follows the undecodable one is not processed
	// by this call.
	if diff := cmp.Diff([]string{"key0"}, got); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%v", diff)
	}

	want := `product: undecodable message at offset 1: "{\"uuid\":\"2\",\"price\":\"not a number\"}"`
	if !strings.Contains(buf.String(), want) {
		t.Errorf("missing debug log %q in:\n%v", want, buf.String())
	}
}

func TestEncode(t *testing.T) {
	p := Payload{
		UUID:        "1",
		Name:        "TestProduct",
		Description: "Test Description",
		Price:       1.0,
	}

	msg, err := Encode(p, DefaultTypeTag)
	if err != nil {
		t.Fatalf("could not encode payload: %v", err)
	}

	cli := NewClient(streamtest.NewMockProcessor([]stream.Message{msg}))

	var got []Payload
	err = cli.ProcessRecords(context.Background(), testTopic, func(rec Record) error {
		if rec.Key != p.UUID {
			t.Errorf("unexpected key: want=%v, got=%v", p.UUID, rec.Key)
		}
		got = append(got, rec.Payload)
		return nil
	})
	if err != nil {
		t.Fatalf("error processing records: %v", err)
	}

	if diff := cmp.Diff([]Payload{p}, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%v", diff)
	}
}
