// Package engine drives a one-shot full mailbox synchronization.
//
// The engine walks the summary pages of a provider one at a time. For each
// page it seeds the record store with the summaries, hydrates the page's
// identities through a batch.Executor and merges the details after the batch
// has joined. Page N+1 is never requested before page N is merged.
//
// Failure policy:
//   - a summary page failure aborts the run and no store is returned
//   - a detail failure keeps the summary and is reported in Result.Failures
//   - cancellation returns the partial store with Result.Complete == false
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/mailbox-sync/pkg/batch"
	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
	"github.com/Sternrassler/mailbox-sync/pkg/store"
)

// ErrCursorStalled is returned when a provider hands back the cursor it was
// called with, which would otherwise loop forever.
var ErrCursorStalled = errors.New("summary cursor did not advance")

// Config holds engine configuration.
type Config struct {
	Batch batch.Config
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{Batch: batch.DefaultConfig()}
}

// Result is the outcome of a run that did not fail fatally.
type Result struct {
	RunID string

	// Store holds every identity seen, at the best fidelity obtained.
	Store *store.RecordStore

	// Failures lists the identities whose detail fetch failed. Identities
	// left unfetched by cancellation are not listed.
	Failures []mailbox.Failure

	// Complete is false when the run was cancelled before the last page.
	Complete bool

	// Cause is the cancellation reason of an incomplete run.
	Cause error

	Pages      int
	Batches    int
	Duplicates int
	Duration   time.Duration
}

// Engine synchronizes one mailbox.
type Engine struct {
	summaries mailbox.SummaryFetcher
	executor  *batch.Executor
	logger    zerolog.Logger
}

// New creates an engine over the given fetchers.
func New(summaries mailbox.SummaryFetcher, details mailbox.DetailFetcher, cfg Config) *Engine {
	return &Engine{
		summaries: summaries,
		executor:  batch.NewExecutor(details, cfg.Batch),
		logger:    logging.NewLogger("sync-engine"),
	}
}

// Synchronize builds an engine and runs it once.
func Synchronize(ctx context.Context, summaries mailbox.SummaryFetcher, details mailbox.DetailFetcher, cfg Config) (*Result, error) {
	return New(summaries, details, cfg).Run(ctx)
}

// Run fetches every page and returns the merged record set.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID: uuid.NewString(),
		Store: store.New(),
	}
	logger := e.logger.With().Str("run_id", res.RunID).Logger()
	logger.Info().Msg("Starting mailbox sync")

	// firstSeen maps each identity to the page it first appeared on.
	firstSeen := make(map[mailbox.Identity]int)
	cursor := mailbox.Start()

	for !cursor.IsExhausted() {
		if err := ctx.Err(); err != nil {
			return e.incomplete(logger, res, start, err), nil
		}

		pageNum := res.Pages + 1
		page, err := e.summaries.List(ctx, cursor)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return e.incomplete(logger, res, start, ctxErr), nil
			}
			syncRunsTotal.WithLabelValues("failed").Inc()
			logger.Error().Err(err).Int("page", pageNum).Str("cursor", cursor.String()).Msg("Summary page fetch failed")
			return nil, fmt.Errorf("list page %d: %w", pageNum, err)
		}
		if !page.Next.IsExhausted() && page.Next == cursor {
			syncRunsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("list page %d: %w (token %q)", pageNum, ErrCursorStalled, cursor.Token())
		}
		res.Pages = pageNum
		syncPagesTotal.Inc()

		ids := e.seed(logger, res, page, firstSeen)

		results, batches := e.executor.Execute(ctx, ids)
		res.Batches += batches
		failed := e.merge(ctx, res, results)

		logger.Info().
			Int("page", pageNum).
			Int("summaries", len(page.Summaries)).
			Int("batches", batches).
			Int("failed", failed).
			Int("records", res.Store.Len()).
			Msg("Page merged")

		cursor = page.Next

		if err := ctx.Err(); err != nil {
			return e.incomplete(logger, res, start, err), nil
		}
	}

	res.Complete = true
	res.Duration = time.Since(start)
	e.finish(res, "complete")

	logger.Info().
		Int("pages", res.Pages).
		Int("records", res.Store.Len()).
		Int("failures", len(res.Failures)).
		Int("duplicates", res.Duplicates).
		Dur("duration", res.Duration).
		Msg("Mailbox sync complete")

	return res, nil
}

// seed upserts the page's summaries and returns the identities to hydrate,
// each listed once.
func (e *Engine) seed(logger zerolog.Logger, res *Result, page mailbox.Page, firstSeen map[mailbox.Identity]int) []mailbox.Identity {
	ids := make([]mailbox.Identity, 0, len(page.Summaries))
	onPage := make(map[mailbox.Identity]struct{}, len(page.Summaries))

	for _, s := range page.Summaries {
		if s.ID == "" {
			logger.Warn().Int("page", res.Pages).Msg("Skipping summary without identity")
			continue
		}

		if prev, ok := firstSeen[s.ID]; ok && prev != res.Pages {
			res.Duplicates++
			syncDuplicatesTotal.Inc()
			logger.Warn().
				Str("message_id", string(s.ID)).
				Int("first_page", prev).
				Int("page", res.Pages).
				Msg("Identity repeated across pages")
		} else if !ok {
			firstSeen[s.ID] = res.Pages
		}

		res.Store.UpsertSummary(s)

		if _, dup := onPage[s.ID]; dup {
			continue
		}
		onPage[s.ID] = struct{}{}
		ids = append(ids, s.ID)
	}

	return ids
}

// merge applies a joined batch to the store and returns the failure count.
// Items stopped by the run's own cancellation keep their summary and are not
// failures; the run reports them through Complete and Cause.
func (e *Engine) merge(ctx context.Context, res *Result, results []batch.Result) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(r.Err, ctxErr) {
				continue
			}
			failed++
			syncDetailFailuresTotal.Inc()
			res.Failures = append(res.Failures, mailbox.Failure{ID: r.ID, Err: r.Err})
			continue
		}
		res.Store.Upsert(r.ID, mailbox.FromDetail(r.Detail))
	}
	return failed
}

func (e *Engine) incomplete(logger zerolog.Logger, res *Result, start time.Time, cause error) *Result {
	res.Complete = false
	res.Cause = cause
	res.Duration = time.Since(start)
	e.finish(res, "incomplete")

	logger.Warn().
		Err(cause).
		Int("pages", res.Pages).
		Int("records", res.Store.Len()).
		Msg("Mailbox sync cancelled - returning partial result")

	return res
}

func (e *Engine) finish(res *Result, outcome string) {
	syncRunsTotal.WithLabelValues(outcome).Inc()
	syncRunDuration.Observe(res.Duration.Seconds())
	syncRecords.WithLabelValues(mailbox.FidelityDetail.String()).Set(float64(res.Store.Count(mailbox.FidelityDetail)))
	syncRecords.WithLabelValues(mailbox.FidelitySummary.String()).Set(float64(res.Store.Count(mailbox.FidelitySummary)))
}
