// Package pipeline implements the ingestion pipeline that consumes products
// from a stream, groups them in batches and persists them.
//
// The pipeline has two independent failure domains. Stream failures are
// retried according to a [RetryPolicy] and never stop the pipeline unless
// the policy is bounded. Processing failures (mapping or persistence) are
// logged and turned into a failed [Batch], and the pipeline moves on.
//
// Records are acknowledged by the stream processor when they are received,
// so a failed batch is not delivered again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/adevinta/product-ingestor/log"
	"github.com/adevinta/product-ingestor/metrics"
	"github.com/adevinta/product-ingestor/product"
)

// DefaultWorkers is the default number of batches that can be persisted
// concurrently.
const DefaultWorkers = 4

// Source is a stream of product records. It is implemented by
// [product.Client].
type Source interface {
	ProcessRecords(ctx context.Context, topic string, h product.RecordHandler) error
}

// Store persists batches of products. SaveAll returns the saved products
// with their ID assigned.
type Store interface {
	SaveAll(ctx context.Context, prods []product.Product) ([]product.Product, error)
}

// Mapper converts a payload into a product.
type Mapper func(product.Payload) (product.Product, error)

// Config contains the configuration of a [Pipeline].
type Config struct {
	// Topic is the topic to consume products from.
	Topic string

	// BufferSize is the number of records of every batch.
	BufferSize int

	// Workers is the maximum number of batches persisted concurrently.
	// When all the workers are busy, intake waits for one of them. If
	// zero, DefaultWorkers is used.
	Workers int

	// ReceiveRetry is applied when the source fails. If zero,
	// DefaultReceiveRetry is used.
	ReceiveRetry RetryPolicy

	// Mapper converts records into products. If nil, product.Map is
	// used.
	Mapper Mapper
}

// Batch is the outcome of processing a batch of records. If Err is not nil,
// the batch could not be processed and Products is empty.
type Batch struct {
	Products []product.Product
	Err      error
}

// Failed reports whether the batch could not be processed.
func (b Batch) Failed() bool {
	return b.Err != nil
}

// Pipeline consumes product records from a [Source], groups them in batches
// and persists them using a [Store].
type Pipeline struct {
	src Source
	st  Store
	cfg Config

	mu  sync.Mutex
	err error
}

// New returns a [Pipeline].
func New(src Source, st Store, cfg Config) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New("source is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}
	if cfg.BufferSize < 1 {
		return nil, fmt.Errorf("invalid buffer size %v", cfg.BufferSize)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("invalid number of workers %v", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Mapper == nil {
		cfg.Mapper = product.Map
	}
	if cfg.ReceiveRetry == (RetryPolicy{}) {
		cfg.ReceiveRetry = DefaultReceiveRetry
	}

	p := &Pipeline{
		src: src,
		st:  st,
		cfg: cfg,
	}
	return p, nil
}

// Consume starts consuming records and returns the outcome of every
// processed batch, in the order in which the records were received. The
// returned channel is closed when intake stops and all the dispatched
// batches have been processed. Intake stops when ctx is cancelled, when the
// source ends without error or when the receive retry policy is exhausted.
// Records that do not complete a batch are discarded.
//
// Cancelling ctx stops intake but not the persistence of the batches
// already dispatched, whose outcome is still sent on the returned channel.
// The caller must drain it. Consume must be called only once.
func (p *Pipeline) Consume(ctx context.Context) <-chan Batch {
	out := make(chan Batch)
	pending := make(chan chan Batch, p.cfg.Workers)

	go func() {
		defer close(out)

		// Dispatched batches were acknowledged at intake, so their
		// outcome is reported even after ctx is done.
		for res := range pending {
			out <- <-res
		}
	}()

	go func() {
		defer close(pending)

		in := &intake{
			ctx:     ctx,
			p:       p,
			pending: pending,
			sem:     semaphore.NewWeighted(int64(p.cfg.Workers)),
			buf:     make([]product.Record, 0, p.cfg.BufferSize),
		}
		err := p.receive(ctx, in.handle)
		if err != nil {
			log.Error.Printf("pipeline: intake stopped: %v", err)
		}
		if n := len(in.buf); n > 0 {
			log.Info.Printf("pipeline: discarding %v buffered records", n)
		}

		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}()

	return out
}

// Err returns the error that stopped intake, if any. It must be called after
// the channel returned by [Pipeline.Consume] is closed.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

// receive runs the source, retrying according to the receive retry policy.
func (p *Pipeline) receive(ctx context.Context, h product.RecordHandler) error {
	for attempt := 1; ; attempt++ {
		err := p.src.ProcessRecords(ctx, p.cfg.Topic, h)
		if ctx.Err() != nil || err == nil {
			return nil
		}

		metrics.ReceiveErrorsTotal.Inc()
		log.Error.Printf("Error receiving event, will retry: %v", err)

		if err := p.cfg.ReceiveRetry.Wait(ctx, attempt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("could not receive events: %w", err)
		}
	}
}

// process maps and persists a batch of records. It never returns an error:
// failures are logged and reported in the returned batch.
func (p *Pipeline) process(ctx context.Context, recs []product.Record) (b Batch) {
	defer func() {
		if r := recover(); r != nil {
			b = p.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	prods := make([]product.Product, 0, len(recs))
	for _, rec := range recs {
		prod, err := p.cfg.Mapper(rec.Payload)
		if err != nil {
			return p.fail(fmt.Errorf("could not map record with key %v at offset %v: %w", rec.Key, rec.Offset, err))
		}
		prods = append(prods, prod)
	}

	start := time.Now()
	saved, err := p.st.SaveAll(ctx, prods)
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return p.fail(fmt.Errorf("could not save products: %w", err))
	}

	metrics.BatchesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info.Printf("Successfully processed events: uuids - %v", strings.Join(product.UUIDs(saved), ", "))

	return Batch{Products: saved}
}

func (p *Pipeline) fail(err error) Batch {
	metrics.BatchesTotal.WithLabelValues(metrics.ResultFailure).Inc()
	log.Error.Printf("Error during product processing. Details : %v", err)
	return Batch{Err: err}
}

// intake accumulates the received records and dispatches full batches to
// the persistence workers. It is only accessed by the intake goroutine.
type intake struct {
	ctx     context.Context
	p       *Pipeline
	pending chan<- chan Batch
	sem     *semaphore.Weighted
	buf     []product.Record
}

func (in *intake) handle(rec product.Record) error {
	log.Info.Printf("Processing record with key=%v, value=%v from topic=%v, offset=%v.", rec.Key, rec.Payload, rec.Topic, rec.Offset)
	metrics.RecordsTotal.WithLabelValues(rec.Topic).Inc()
	metrics.LastOffset.WithLabelValues(rec.Topic, strconv.Itoa(int(rec.Partition))).Set(float64(rec.Offset))

	in.buf = append(in.buf, rec)
	if len(in.buf) < in.p.cfg.BufferSize {
		return nil
	}

	recs := in.buf
	in.buf = make([]product.Record, 0, in.p.cfg.BufferSize)
	return in.dispatch(recs)
}

// dispatch hands recs to a persistence worker without waiting for the
// result. It blocks only if all the workers are busy.
//
// The records of a full batch are already acknowledged, so the batch is
// dispatched and persisted even if intake is cancelled meanwhile. The
// wait for a worker is bounded because persistence is not cancelled.
func (in *intake) dispatch(recs []product.Record) error {
	ctx := context.WithoutCancel(in.ctx)

	if err := in.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	res := make(chan Batch, 1)
	in.pending <- res

	metrics.InflightBatches.Inc()
	go func() {
		defer in.sem.Release(1)
		defer metrics.InflightBatches.Dec()

		res <- in.p.process(ctx, recs)
	}()
	return nil
}
