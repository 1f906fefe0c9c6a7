// Package peers holds the best-effort clients for the payment, enforcement
// and violation microservices, plus the bounded retry pool they share.
package peers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

var defaultBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// RetryPool runs failed peer calls on a bounded set of workers with fixed
// backoff. Submissions de-duplicate on a caller-supplied key so one logical
// call path never has two retry chains in flight.
type RetryPool struct {
	log     *zap.Logger
	jobs    chan retryJob
	backoff []time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type retryJob struct {
	key string
	fn  func(ctx context.Context) error
}

// NewRetryPool starts workers goroutines draining the retry queue.
func NewRetryPool(workers int, log *zap.Logger) *RetryPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &RetryPool{
		log:      log.Named("peers.retry"),
		jobs:     make(chan retryJob, workers*4),
		backoff:  defaultBackoff,
		inflight: make(map[string]struct{}),
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

// Do runs fn once inline; on failure the remaining attempts move to the
// background pool and Do returns the first error.
func (p *RetryPool) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		p.submit(key, fn)
		return err
	}
	return nil
}

func (p *RetryPool) submit(key string, fn func(ctx context.Context) error) {
	p.mu.Lock()
	if _, running := p.inflight[key]; running {
		p.mu.Unlock()
		return
	}
	p.inflight[key] = struct{}{}
	p.mu.Unlock()

	select {
	case p.jobs <- retryJob{key: key, fn: fn}:
	default:
		// Queue full; drop the retry rather than block the caller.
		p.release(key)
		p.log.Warn("retry queue full, dropping retry", zap.String("key", key))
	}
}

func (p *RetryPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.run(ctx, job)
		}
	}
}

func (p *RetryPool) run(ctx context.Context, job retryJob) {
	defer p.release(job.key)
	for attempt, sleep := range p.backoff {
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
		if err := job.fn(ctx); err == nil {
			return
		} else if attempt == len(p.backoff)-1 {
			p.log.Error("all retries failed", zap.String("key", job.key), zap.Error(err))
		}
	}
}

func (p *RetryPool) release(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

// Close stops the workers. Queued retries are abandoned.
func (p *RetryPool) Close() {
	p.cancel()
	p.wg.Wait()
}
