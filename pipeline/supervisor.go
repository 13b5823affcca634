package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/adevinta/product-ingestor/log"
)

// Supervisor runs a single subscription to a [Pipeline] for the lifetime of
// the process. It does not restart the pipeline if it stops.
type Supervisor struct {
	p *Pipeline

	once    sync.Once
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	batches  atomic.Int64
	failures atomic.Int64
}

// NewSupervisor returns a [Supervisor] for p.
func NewSupervisor(p *Pipeline) *Supervisor {
	return &Supervisor{
		p:    p,
		done: make(chan struct{}),
	}
}

// Start subscribes to the pipeline. It must be called once the process is
// fully initialized. Only the first call starts the pipeline; it returns
// false otherwise.
func (s *Supervisor) Start(ctx context.Context) bool {
	first := false
	s.once.Do(func() {
		first = true

		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.started.Store(true)

		batches := s.p.Consume(ctx)
		go func() {
			defer close(s.done)

			for b := range batches {
				s.batches.Add(1)
				if b.Failed() {
					s.failures.Add(1)
				}
			}
			log.Info.Printf("supervisor: pipeline stopped after %v batches (%v failed)", s.batches.Load(), s.failures.Load())
		}()
	})
	return first
}

// Started reports whether the pipeline has been started.
func (s *Supervisor) Started() bool {
	return s.started.Load()
}

// Running reports whether the pipeline has been started and has not
// stopped yet.
func (s *Supervisor) Running() bool {
	if !s.started.Load() {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stop cancels the subscription and waits for the pipeline to stop. It does
// nothing if the pipeline has not been started.
func (s *Supervisor) Stop() {
	if !s.started.Load() {
		return
	}
	s.cancel()
	<-s.done
}

// Done returns a channel that is closed when the pipeline stops.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the pipeline, if any. It must be
// called after the channel returned by [Supervisor.Done] is closed.
func (s *Supervisor) Err() error {
	return s.p.Err()
}

// Stats returns the number of processed batches and how many of them
// failed.
func (s *Supervisor) Stats() (batches, failures int64) {
	return s.batches.Load(), s.failures.Load()
}
