// Package batch groups per-message detail fetches into bounded round trips.
//
// An Executor receives the identities of one summary page and hydrates them
// in sequential batches of at most Config.MaxBatchSize items. Items inside a
// batch run concurrently on a worker pool of Config.MaxConcurrency workers;
// when the fetcher implements mailbox.BatchDetailFetcher the whole batch is
// issued as a single multiplexed request instead.
//
// Example usage:
//
//	exec := batch.NewExecutor(fetcher, batch.DefaultConfig())
//	results, batches := exec.Execute(ctx, ids)
//	for _, r := range results {
//		if r.Err != nil {
//			// keep the summary, record the failure
//		}
//	}
//
// The executor:
//   - Splits a page into ceil(n/MaxBatchSize) sequential batches
//   - Returns exactly one Result per requested identity, in request order
//   - Never lets one failed item abort its siblings
//   - Returns only after every item has finished
//   - Applies Config.Timeout to each item (or to each multiplexed batch)
package batch
