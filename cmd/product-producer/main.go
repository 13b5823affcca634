// product-producer publishes random products into a kafka topic. It is
// meant to feed product-ingestor in development environments.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"github.com/adevinta/product-ingestor/log"
	"github.com/adevinta/product-ingestor/product"
	"github.com/adevinta/product-ingestor/stream/kafka"
)

const (
	defaultLogLevel     = "info"
	defaultProductTopic = "products"
	defaultCount        = 100

	// namePrefix is the prefix of the name and description of the
	// generated products.
	namePrefix = "Prod-"

	// flushTimeout is the maximum time in milliseconds to wait for
	// outstanding messages on exit.
	flushTimeout = 10000
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("product-producer: error reading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("product-producer: %v", err)
	}
}

// run is invoked by main and does the actual work.
func run(ctx context.Context, cfg config) error {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("error setting log level: %w", err)
	}

	kcfg := map[string]any{
		"bootstrap.servers": cfg.KafkaBootstrapServers,
	}

	if cfg.KafkaUsername != "" && cfg.KafkaPassword != "" {
		kcfg["security.protocol"] = "sasl_ssl"
		kcfg["sasl.mechanisms"] = "SCRAM-SHA-256"
		kcfg["sasl.username"] = cfg.KafkaUsername
		kcfg["sasl.password"] = cfg.KafkaPassword
	}

	prod, err := kafka.NewProducer(kcfg)
	if err != nil {
		return fmt.Errorf("error creating kafka producer: %w", err)
	}
	defer func() {
		if n := prod.Close(flushTimeout); n > 0 {
			log.Error.Printf("product-producer: %v messages were not flushed", n)
		}
	}()

	rnd := rand.New(rand.NewSource(rand.Int63()))
	for i := 0; i < cfg.Count; i++ {
		p := randomPayload(rnd)

		msg, err := product.Encode(p, product.DefaultTypeTag)
		if err != nil {
			return err
		}

		log.Info.Printf("Sending to topic=%v, %v", cfg.ProductTopic, p)
		sent, err := prod.Produce(ctx, cfg.ProductTopic, msg)
		if err != nil {
			return fmt.Errorf("could not send product %v: %w", p.UUID, err)
		}
		log.Info.Printf("Sent product %v offset : %v", p, sent.Offset)
	}

	return nil
}

// randomPayload returns a product with a random UUID and price.
func randomPayload(rnd *rand.Rand) product.Payload {
	id := uuid.NewString()
	return product.Payload{
		UUID:        id,
		Name:        namePrefix + id,
		Description: namePrefix + id,
		Price:       math.Floor(rnd.Float64()*101 + 0.1),
	}
}

// config contains the configuration of the command.
type config struct {
	LogLevel              string
	KafkaBootstrapServers string
	KafkaUsername         string
	KafkaPassword         string
	ProductTopic          string
	Count                 int
}

// readConfig reads the configuration from the environment.
func readConfig() (config, error) {
	// Required config.
	kafkaBootstrapServers := os.Getenv("KAFKA_BOOTSTRAP_SERVERS")
	if kafkaBootstrapServers == "" {
		return config{}, errors.New("missing kafka bootstrap servers")
	}

	// Optional config.
	logLevel := defaultLogLevel
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		logLevel = level
	}

	productTopic := defaultProductTopic
	if topic := os.Getenv("PRODUCT_TOPIC"); topic != "" {
		productTopic = topic
	}

	count := defaultCount
	if c := os.Getenv("COUNT"); c != "" {
		var err error

		count, err = strconv.Atoi(c)
		if err != nil {
			return config{}, fmt.Errorf("invalid count: %w", err)
		}
		if count < 0 {
			return config{}, fmt.Errorf("invalid count: %v", count)
		}
	}

	cfg := config{
		LogLevel:              logLevel,
		KafkaBootstrapServers: kafkaBootstrapServers,
		KafkaUsername:         os.Getenv("KAFKA_USERNAME"),
		KafkaPassword:         os.Getenv("KAFKA_PASSWORD"),
		ProductTopic:          productTopic,
		Count:                 count,
	}

	return cfg, nil
}
