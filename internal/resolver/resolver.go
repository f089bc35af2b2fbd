// Package resolver turns opaque block ids into currently-valid signed asset
// URLs, hiding the refresh cadence of the upstream signing mechanism behind
// a TTL cache.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/tomasbasham/image-proxy/internal/metrics"
)

// ErrNotFound is returned for any block that cannot be resolved to a URL:
// unknown id, unrecognised kind, CMS failure, or missing credential. The
// caller cannot distinguish these; the logs can.
var ErrNotFound = errors.New("resolver: block not found")

// Resolver resolves block ids through a cache backed by CMS lookups.
// Concurrent misses for the same block id are coalesced into a single
// upstream call; cache writes remain last-writer-wins.
type Resolver struct {
	lookup  BlockLookup
	cache   Cache
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Options configures a Resolver.
type Options struct {
	Lookup  BlockLookup
	Cache   Cache
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// New creates a Resolver. Lookup and Cache are required.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lookup:  opts.Lookup,
		cache:   opts.Cache,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Resolve returns a fetchable URL for blockID. A cache hit answers without
// any network traffic; a miss consults the CMS and caches the result.
// Returns ErrNotFound for every failure mode.
func (r *Resolver) Resolve(ctx context.Context, blockID string) (string, error) {
	if blockID == "" {
		return "", ErrNotFound
	}

	if url, ok := r.cache.Get(blockID); ok {
		r.metrics.CacheHit()
		return url, nil
	}
	r.metrics.CacheMiss()

	v, err, _ := r.group.Do(blockID, func() (any, error) {
		// A concurrent resolution may have landed while this call waited
		// for the flight slot.
		if url, ok := r.cache.Get(blockID); ok {
			return url, nil
		}

		url, err := r.lookup.LookupBlock(ctx, blockID)
		if err != nil {
			return "", err
		}

		r.cache.Put(blockID, url)
		r.logger.Debug("resolved signed URL", "block_id", blockID)
		return url, nil
	})
	if err != nil {
		return "", ErrNotFound
	}

	return v.(string), nil
}
