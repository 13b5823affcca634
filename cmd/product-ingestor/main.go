// product-ingestor consumes products from a kafka topic and persists them
// in batches.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/adevinta/product-ingestor/log"
	"github.com/adevinta/product-ingestor/pipeline"
	"github.com/adevinta/product-ingestor/product"
	"github.com/adevinta/product-ingestor/server"
	"github.com/adevinta/product-ingestor/store/gremlin"
	"github.com/adevinta/product-ingestor/store/memory"
	"github.com/adevinta/product-ingestor/store/spanner"
	"github.com/adevinta/product-ingestor/stream"
	"github.com/adevinta/product-ingestor/stream/franz"
	"github.com/adevinta/product-ingestor/stream/kafka"
)

const (
	defaultLogLevel             = "info"
	defaultProductTopic         = "products"
	defaultKafkaGroupID         = "product-ingestor"
	defaultKafkaClient          = clientConfluent
	defaultStoreBackend         = backendSpanner
	defaultMetricsAddr          = ":9090"
	defaultProductTypeMappings  = "product:Product"
	defaultReceiveRetryInterval = time.Minute
)

// Supported kafka clients.
const (
	clientConfluent = "confluent"
	clientFranz     = "franz"
)

// Supported store backends.
const (
	backendSpanner = "spanner"
	backendGremlin = "gremlin"
	backendMemory  = "memory"
)

// productType is the only entity type that can be ingested.
const productType = "Product"

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("product-ingestor: error reading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("product-ingestor: %v", err)
	}
}

// run is invoked by main and does the actual work.
func run(ctx context.Context, cfg config) error {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("error setting log level: %w", err)
	}

	proc, err := newProcessor(cfg)
	if err != nil {
		return fmt.Errorf("error creating kafka processor: %w", err)
	}
	defer proc.Close()

	st, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("error creating store: %w", err)
	}
	defer closeStore()

	src := product.NewClient(proc, cfg.ProductTypeTags...)
	return serve(ctx, cfg, src, st)
}

// serve runs the pipeline and the metrics server until ctx is done or
// one of them fails.
func serve(ctx context.Context, cfg config, src pipeline.Source, st pipeline.Store) error {
	pcfg := pipeline.Config{
		Topic:        cfg.ProductTopic,
		BufferSize:   cfg.BufferSize,
		Workers:      cfg.Workers,
		ReceiveRetry: pipeline.RetryPolicy{Interval: cfg.ReceiveRetryInterval},
	}
	p, err := pipeline.New(src, st, pcfg)
	if err != nil {
		return fmt.Errorf("error creating pipeline: %w", err)
	}

	sup := pipeline.NewSupervisor(p)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(gctx, cfg.MetricsAddr, sup.Running); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info.Printf("product-ingestor: consuming products from topic %v", cfg.ProductTopic)

		sup.Start(gctx)
		<-sup.Done()

		if err := sup.Err(); err != nil {
			return fmt.Errorf("pipeline stopped: %w", err)
		}
		if gctx.Err() == nil {
			return errors.New("pipeline stopped unexpectedly")
		}
		log.Info.Println("product-ingestor: context is done")
		return nil
	})

	return g.Wait()
}

// processor is a stream processor that must be closed after use.
type processor interface {
	stream.Processor
	Close() error
}

// newProcessor returns the kafka processor selected by the config.
func newProcessor(cfg config) (processor, error) {
	switch cfg.KafkaClient {
	case clientConfluent:
		kcfg, err := kafkaConfig(cfg)
		if err != nil {
			return nil, err
		}
		return kafka.NewAutoAckProcessor(kcfg)
	case clientFranz:
		fcfg := franz.Config{
			Brokers:      strings.Split(cfg.KafkaBootstrapServers, ","),
			GroupID:      cfg.KafkaGroupID,
			Username:     cfg.KafkaUsername,
			Password:     cfg.KafkaPassword,
			ResetToStart: true,
		}
		return franz.NewAutoAckProcessor(fcfg)
	}
	return nil, fmt.Errorf("unknown kafka client %q", cfg.KafkaClient)
}

// kafkaConfig returns the confluent-kafka-go configuration properties. The
// properties read from the properties file take precedence.
func kafkaConfig(cfg config) (map[string]any, error) {
	kcfg := map[string]any{
		"bootstrap.servers": cfg.KafkaBootstrapServers,
		"group.id":          cfg.KafkaGroupID,
		"auto.offset.reset": "earliest",
	}

	if cfg.KafkaUsername != "" && cfg.KafkaPassword != "" {
		kcfg["security.protocol"] = "sasl_ssl"
		kcfg["sasl.mechanisms"] = "SCRAM-SHA-256"
		kcfg["sasl.username"] = cfg.KafkaUsername
		kcfg["sasl.password"] = cfg.KafkaPassword
	}

	if cfg.KafkaPropertiesFile == "" {
		return kcfg, nil
	}

	props, err := readKafkaProperties(cfg.KafkaPropertiesFile)
	if err != nil {
		return nil, err
	}
	for k, v := range props {
		kcfg[k] = v
	}
	return kcfg, nil
}

// readKafkaProperties reads a YAML file with a flat map of kafka
// properties.
func readKafkaProperties(filename string) (map[string]any, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read kafka properties: %w", err)
	}

	var props map[string]any
	if err := yaml.Unmarshal(b, &props); err != nil {
		return nil, fmt.Errorf("could not parse kafka properties: %w", err)
	}

	for k, v := range props {
		switch v.(type) {
		case string, bool, int, float64:
		default:
			return nil, fmt.Errorf("invalid value for kafka property %q: %v", k, v)
		}
	}
	return props, nil
}

// newStore returns the store selected by the config and a function that
// releases it.
func newStore(ctx context.Context, cfg config) (pipeline.Store, func(), error) {
	switch cfg.StoreBackend {
	case backendSpanner:
		st, err := spanner.New(ctx, cfg.SpannerDatabase)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case backendGremlin:
		st, err := gremlin.New(cfg.GremlinEndpoint)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case backendMemory:
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// config contains the configuration of the command.
type config struct {
	LogLevel              string
	KafkaBootstrapServers string
	KafkaGroupID          string
	KafkaUsername         string
	KafkaPassword         string
	KafkaClient           string
	KafkaPropertiesFile   string
	ProductTopic          string
	ProductTypeTags       []string
	BufferSize            int
	Workers               int
	ReceiveRetryInterval  time.Duration
	StoreBackend          string
	SpannerDatabase       string
	GremlinEndpoint       string
	MetricsAddr           string
}

// readConfig reads the configuration from the environment.
func readConfig() (config, error) {
	// Required config.
	kafkaBootstrapServers := os.Getenv("KAFKA_BOOTSTRAP_SERVERS")
	if kafkaBootstrapServers == "" {
		return config{}, errors.New("missing kafka bootstrap servers")
	}

	bs := os.Getenv("BUFFER_SIZE")
	if bs == "" {
		return config{}, errors.New("missing buffer size")
	}
	bufferSize, err := strconv.Atoi(bs)
	if err != nil {
		return config{}, fmt.Errorf("invalid buffer size: %w", err)
	}
	if bufferSize < 1 {
		return config{}, fmt.Errorf("invalid buffer size: %v", bufferSize)
	}

	storeBackend := defaultStoreBackend
	if b := os.Getenv("STORE_BACKEND"); b != "" {
		storeBackend = b
	}

	var spannerDatabase, gremlinEndpoint string
	switch storeBackend {
	case backendSpanner:
		spannerDatabase = os.Getenv("SPANNER_DATABASE")
		if spannerDatabase == "" {
			return config{}, errors.New("missing spanner database")
		}
	case backendGremlin:
		gremlinEndpoint = os.Getenv("GREMLIN_ENDPOINT")
		if gremlinEndpoint == "" {
			return config{}, errors.New("missing gremlin endpoint")
		}
	case backendMemory:
	default:
		return config{}, fmt.Errorf("invalid store backend: %v", storeBackend)
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

	kafkaGroupID := defaultKafkaGroupID
	if id := os.Getenv("KAFKA_GROUP_ID"); id != "" {
		kafkaGroupID = id
	}

	kafkaUsername := os.Getenv("KAFKA_USERNAME")
	kafkaPassword := os.Getenv("KAFKA_PASSWORD")

	kafkaClient := defaultKafkaClient
	if c := os.Getenv("KAFKA_CLIENT"); c != "" {
		kafkaClient = c
	}
	if kafkaClient != clientConfluent && kafkaClient != clientFranz {
		return config{}, fmt.Errorf("invalid kafka client: %v", kafkaClient)
	}

	kafkaPropertiesFile := os.Getenv("KAFKA_PROPERTIES_FILE")
	if kafkaPropertiesFile != "" && kafkaClient != clientConfluent {
		return config{}, errors.New("kafka properties file requires the confluent client")
	}

	receiveRetryInterval := defaultReceiveRetryInterval
	if ri := os.Getenv("RECEIVE_RETRY_INTERVAL"); ri != "" {
		receiveRetryInterval, err = time.ParseDuration(ri)
		if err != nil {
			return config{}, fmt.Errorf("invalid receive retry interval: %w", err)
		}
		if receiveRetryInterval <= 0 {
			return config{}, fmt.Errorf("invalid receive retry interval: %v", receiveRetryInterval)
		}
	}

	workers := pipeline.DefaultWorkers
	if w := os.Getenv("WORKERS"); w != "" {
		workers, err = strconv.Atoi(w)
		if err != nil {
			return config{}, fmt.Errorf("invalid number of workers: %w", err)
		}
		if workers < 1 {
			return config{}, fmt.Errorf("invalid number of workers: %v", workers)
		}
	}

	metricsAddr := defaultMetricsAddr
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		metricsAddr = addr
	}

	mappings := defaultProductTypeMappings
	if m := os.Getenv("PRODUCT_TYPE_MAPPINGS"); m != "" {
		mappings = m
	}
	productTypeTags, err := parseTypeMappings(mappings)
	if err != nil {
		return config{}, fmt.Errorf("invalid product type mappings: %w", err)
	}

	cfg := config{
		LogLevel:              logLevel,
		KafkaBootstrapServers: kafkaBootstrapServers,
		KafkaGroupID:          kafkaGroupID,
		KafkaUsername:         kafkaUsername,
		KafkaPassword:         kafkaPassword,
		KafkaClient:           kafkaClient,
		KafkaPropertiesFile:   kafkaPropertiesFile,
		ProductTopic:          productTopic,
		ProductTypeTags:       productTypeTags,
		BufferSize:            bufferSize,
		Workers:               workers,
		ReceiveRetryInterval:  receiveRetryInterval,
		StoreBackend:          storeBackend,
		SpannerDatabase:       spannerDatabase,
		GremlinEndpoint:       gremlinEndpoint,
		MetricsAddr:           metricsAddr,
	}

	return cfg, nil
}

// parseTypeMappings parses a comma separated list of "tag:Type" mappings
// and returns the tags mapped to the product type.
func parseTypeMappings(s string) ([]string, error) {
	var tags []string
	for _, m := range strings.Split(s, ",") {
		tag, typ, ok := strings.Cut(strings.TrimSpace(m), ":")
		if !ok || tag == "" {
			return nil, fmt.Errorf("malformed mapping %q", m)
		}
		if typ != productType {
			return nil, fmt.Errorf("unsupported type %q", typ)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
