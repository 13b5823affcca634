package main

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/adevinta/product-ingestor/product"
)

func TestRandomPayload(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		p := randomPayload(rnd)

		if _, err := uuid.Parse(p.UUID); err != nil {
			t.Fatalf("invalid uuid %q: %v", p.UUID, err)
		}
		if seen[p.UUID] {
			t.Fatalf("duplicated uuid %q", p.UUID)
		}
		seen[p.UUID] = true

		want := namePrefix + p.UUID
		if p.Name != want || p.Description != want {
			t.Errorf("unexpected name or description: want=%v, got=(%v, %v)", want, p.Name, p.Description)
		}

		if p.Price < 0 || p.Price > 101 || p.Price != float64(int(p.Price)) {
			t.Errorf("invalid price: %v", p.Price)
		}

		if _, err := product.Map(p); err != nil {
			t.Errorf("payload cannot be mapped: %v", err)
		}
	}
}

func TestReadConfig(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantConfig config
		wantNilErr bool
	}{
		{
			name: "set required config",
			env: map[string]string{
				"KAFKA_BOOTSTRAP_SERVERS": "127.0.0.1:9092",
			},
			wantConfig: config{
				LogLevel:              defaultLogLevel,
				KafkaBootstrapServers: "127.0.0.1:9092",
				ProductTopic:          defaultProductTopic,
				Count:                 defaultCount,
			},
			wantNilErr: true,
		},
		{
			name: "set optional config",
			env: map[string]string{
				"LOG_LEVEL":               "error",
				"KAFKA_BOOTSTRAP_SERVERS": "127.0.0.1:9092",
				"KAFKA_USERNAME":          "username",
				"KAFKA_PASSWORD":          "password",
				"PRODUCT_TOPIC":           "topic",
				"COUNT":                   "5",
			},
			wantConfig: config{
				LogLevel:              "error",
				KafkaBootstrapServers: "127.0.0.1:9092",
				KafkaUsername:         "username",
				KafkaPassword:         "password",
				ProductTopic:          "topic",
				Count:                 5,
			},
			wantNilErr: true,
		},
		{
			name:       "missing KAFKA_BOOTSTRAP_SERVERS",
			env:        map[string]string{"KAFKA_BOOTSTRAP_SERVERS": ""},
			wantConfig: config{},
			wantNilErr: false,
		},
		{
			name: "invalid COUNT",
			env: map[string]string{
				"KAFKA_BOOTSTRAP_SERVERS": "127.0.0.1:9092",
				"COUNT":                   "-1",
			},
			wantConfig: config{},
			wantNilErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			config, err := readConfig()
			if (err == nil) != tt.wantNilErr {
				t.Errorf("unexpected error: wantNilErr=%v, got=%v", tt.wantNilErr, err)
			}

			if diff := cmp.Diff(tt.wantConfig, config); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%v", diff)
			}
		})
	}
}
