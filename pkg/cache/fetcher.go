package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// DetailCache stores message details by key. GetDetail returns
// ErrCacheMiss when nothing usable is cached.
type DetailCache interface {
	GetDetail(ctx context.Context, key Key) (mailbox.Detail, error)
	SetDetail(ctx context.Context, key Key, d mailbox.Detail) error
}

// CachingFetcher is a read-through DetailFetcher.
type CachingFetcher struct {
	inner  mailbox.DetailFetcher
	cache  DetailCache
	user   string
	format string
	logger zerolog.Logger
}

type cachingBatchFetcher struct {
	*CachingFetcher
	batcher mailbox.BatchDetailFetcher
}

// NewCachingFetcher decorates inner with cache. If inner implements
// mailbox.BatchDetailFetcher, so does the result, and only cache misses are
// sent to the wrapped batch call.
func NewCachingFetcher(inner mailbox.DetailFetcher, cache DetailCache, user, format string) mailbox.DetailFetcher {
	f := &CachingFetcher{
		inner:  inner,
		cache:  cache,
		user:   user,
		format: format,
		logger: logging.NewLogger("cache"),
	}
	if b, ok := inner.(mailbox.BatchDetailFetcher); ok {
		return &cachingBatchFetcher{CachingFetcher: f, batcher: b}
	}
	return f
}

func (f *CachingFetcher) key(id mailbox.Identity) Key {
	return Key{User: f.user, Format: f.format, ID: id}
}

// lookup returns the cached detail or false. Cache errors count as a miss.
func (f *CachingFetcher) lookup(ctx context.Context, id mailbox.Identity) (mailbox.Detail, bool) {
	d, err := f.cache.GetDetail(ctx, f.key(id))
	if err == nil {
		return d, true
	}
	if !errors.Is(err, ErrCacheMiss) {
		f.logger.Warn().Err(err).Str("message_id", string(id)).Msg("Cache read failed, fetching directly")
	}
	return mailbox.Detail{}, false
}

func (f *CachingFetcher) store(ctx context.Context, id mailbox.Identity, d mailbox.Detail) {
	if err := f.cache.SetDetail(ctx, f.key(id), d); err != nil {
		f.logger.Warn().Err(err).Str("message_id", string(id)).Msg("Cache write failed")
	}
}

// Get implements mailbox.DetailFetcher.
func (f *CachingFetcher) Get(ctx context.Context, id mailbox.Identity) (mailbox.Detail, error) {
	if d, ok := f.lookup(ctx, id); ok {
		return d, nil
	}

	d, err := f.inner.Get(ctx, id)
	if err != nil {
		return mailbox.Detail{}, err
	}
	f.store(ctx, id, d)
	return d, nil
}

// GetBatch implements mailbox.BatchDetailFetcher.
func (f *cachingBatchFetcher) GetBatch(ctx context.Context, ids []mailbox.Identity) (map[mailbox.Identity]mailbox.Detail, map[mailbox.Identity]error, error) {
	details := make(map[mailbox.Identity]mailbox.Detail, len(ids))
	misses := make([]mailbox.Identity, 0, len(ids))
	for _, id := range ids {
		if d, ok := f.lookup(ctx, id); ok {
			details[id] = d
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return details, nil, nil
	}

	fetched, errs, err := f.batcher.GetBatch(ctx, misses)
	if err != nil {
		return nil, nil, err
	}
	for id, d := range fetched {
		details[id] = d
		f.store(ctx, id, d)
	}
	return details, errs, nil
}
