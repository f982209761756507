package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// Gmail accepts at most 100 calls per batch request.
const DefaultMaxBatchSize = 100

// Config holds executor configuration.
type Config struct {
	// MaxBatchSize is the largest number of items submitted in one round trip.
	MaxBatchSize int

	// MaxConcurrency is the number of parallel workers inside a batch.
	MaxConcurrency int

	// Timeout per item fetch (per batch in multiplexed mode).
	Timeout time.Duration

	// OnResult, if set, is called once per item as soon as it finishes.
	// Calls are made from the goroutine running Execute, never concurrently.
	OnResult func(Result)
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:   DefaultMaxBatchSize,
		MaxConcurrency: 10,
		Timeout:        2 * time.Minute,
	}
}

// Result is the outcome of one detail fetch. Exactly one of Detail or Err
// is meaningful.
type Result struct {
	ID       mailbox.Identity
	Detail   mailbox.Detail
	Err      error
	Duration time.Duration
}

// Executor runs detail fetches in bounded batches.
type Executor struct {
	fetcher mailbox.DetailFetcher
	batcher mailbox.BatchDetailFetcher
	config  Config
	logger  zerolog.Logger
}

// NewExecutor creates an executor. Non-positive config values fall back to
// the defaults.
func NewExecutor(fetcher mailbox.DetailFetcher, config Config) *Executor {
	defaults := DefaultConfig()
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	e := &Executor{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("batch-executor"),
	}
	if b, ok := fetcher.(mailbox.BatchDetailFetcher); ok {
		e.batcher = b
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Execute fetches the detail of every id and returns one result per id in
// request order, together with the number of batches submitted.
func (e *Executor) Execute(ctx context.Context, ids []mailbox.Identity) ([]Result, int) {
	results := make([]Result, len(ids))
	batches := 0

	for start := 0; start < len(ids); start += e.config.MaxBatchSize {
		end := start + e.config.MaxBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		dst := results[start:end]

		// Items of batches that never start still get exactly one result.
		if err := ctx.Err(); err != nil {
			for i, id := range chunk {
				dst[i] = Result{ID: id, Err: err}
				e.deliver(dst[i])
			}
			continue
		}

		batches++
		BatchSize.Observe(float64(len(chunk)))
		began := time.Now()

		if e.batcher != nil {
			BatchesTotal.WithLabelValues("multiplexed").Inc()
			e.runMultiplexed(ctx, chunk, dst)
		} else {
			BatchesTotal.WithLabelValues("parallel").Inc()
			e.runParallel(ctx, chunk, dst)
		}

		e.logger.Debug().
			Int("batch", batches).
			Int("items", len(chunk)).
			Dur("duration", time.Since(began)).
			Msg("Batch complete")
	}

	return results, batches
}

// runMultiplexed issues one round trip for the whole batch.
func (e *Executor) runMultiplexed(ctx context.Context, ids []mailbox.Identity, dst []Result) {
	batchCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	details, errs, err := e.batcher.GetBatch(batchCtx, ids)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Warn().Err(err).Int("items", len(ids)).Msg("Batch request failed")
	}

	for i, id := range ids {
		r := Result{ID: id, Duration: elapsed}
		switch {
		case err != nil:
			r.Err = err
		default:
			if d, ok := details[id]; ok {
				r.Detail = d
			} else if itemErr, ok := errs[id]; ok && itemErr != nil {
				r.Err = itemErr
			} else {
				r.Err = fmt.Errorf("%s: %w", id, mailbox.ErrNotFound)
			}
		}
		dst[i] = r
		e.deliver(r)
	}
}

type indexedResult struct {
	index int
	Result
}

// runParallel fans the batch out to a worker pool and joins it.
func (e *Executor) runParallel(ctx context.Context, ids []mailbox.Identity, dst []Result) {
	jobs := make(chan int, len(ids))
	for i := range ids {
		jobs <- i
	}
	close(jobs)

	// Buffered so workers never block on a slow collector.
	out := make(chan indexedResult, len(ids))

	workers := e.config.MaxConcurrency
	if workers > len(ids) {
		workers = len(ids)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go e.worker(ctx, ids, jobs, out, &wg, w)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	for r := range out {
		dst[r.index] = r.Result
		e.deliver(r.Result)
	}
}

// worker fetches the items it pulls from jobs.
func (e *Executor) worker(ctx context.Context, ids []mailbox.Identity, jobs <-chan int, out chan<- indexedResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range jobs {
		id := ids[i]

		if err := ctx.Err(); err != nil {
			out <- indexedResult{index: i, Result: Result{ID: id, Err: err}}
			continue
		}

		itemCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		start := time.Now()
		d, err := e.fetcher.Get(itemCtx, id)
		elapsed := time.Since(start)
		cancel()

		ItemDuration.Observe(elapsed.Seconds())
		r := Result{ID: id, Duration: elapsed}
		if err != nil {
			r.Err = err
		} else {
			r.Detail = d
		}
		out <- indexedResult{index: i, Result: r}
		processed++
	}

	e.logger.Trace().
		Int("worker_id", workerID).
		Int("items_processed", processed).
		Msg("Worker completed")
}

// deliver records metrics for r and invokes the completion hook.
func (e *Executor) deliver(r Result) {
	if r.Err != nil {
		ItemsTotal.WithLabelValues("error").Inc()
		e.logger.Warn().
			Err(r.Err).
			Str("message_id", string(r.ID)).
			Msg("Detail fetch failed")
	} else {
		ItemsTotal.WithLabelValues("ok").Inc()
	}

	if e.config.OnResult != nil {
		e.config.OnResult(r)
	}
}
