// Package vocab maintains a TTL-refreshed snapshot of the catalog's
// known colors and types.
package vocab

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
)

// Store reads distinct tag values from the catalog index.
type Store interface {
	TagValues(ctx context.Context, field string) ([]string, error)
}

// Tag fields holding the vocabulary values.
const (
	colorsField = "colors"
	typeField   = "type"
)

type snapshot struct {
	vocab   domain.Vocabulary
	fetched time.Time
}

// Cache is the only state shared across requests. Refreshes are
// overwrite-safe: concurrent refreshes converge to equivalent content,
// last writer wins, no mutual exclusion required.
type Cache struct {
	store      Store
	ttl        time.Duration
	logger     *zap.Logger
	current    atomic.Pointer[snapshot]
	refreshing atomic.Bool
}

// New creates a vocabulary cache. The snapshot is built lazily on
// first use.
func New(store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Vocabulary returns the current snapshot. A missing snapshot is
// fetched synchronously; a stale-but-present one is returned
// immediately while a background refresh replaces it. Refresh failure
// degrades to the previous (or empty) vocabulary rather than failing
// the request.
func (c *Cache) Vocabulary(ctx context.Context) domain.Vocabulary {
	snap := c.current.Load()
	if snap == nil {
		fresh, err := c.fetch(ctx)
		if err != nil {
			c.logger.Warn("vocabulary refresh failed, serving empty vocabulary", zap.Error(err))
			return domain.Vocabulary{}
		}
		c.current.Store(&snapshot{vocab: fresh, fetched: time.Now()})
		return fresh
	}

	if time.Since(snap.fetched) > c.ttl && c.refreshing.CompareAndSwap(false, true) {
		go func() {
			defer c.refreshing.Store(false)

			refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			fresh, err := c.fetch(refreshCtx)
			if err != nil {
				c.logger.Warn("vocabulary refresh failed, keeping stale snapshot", zap.Error(err))
				return
			}
			c.current.Store(&snapshot{vocab: fresh, fetched: time.Now()})
		}()
	}

	return snap.vocab
}

func (c *Cache) fetch(ctx context.Context) (domain.Vocabulary, error) {
	colors, err := c.store.TagValues(ctx, colorsField)
	if err != nil {
		return domain.Vocabulary{}, err
	}
	types, err := c.store.TagValues(ctx, typeField)
	if err != nil {
		return domain.Vocabulary{}, err
	}
	return domain.NewVocabulary(colors, types), nil
}
