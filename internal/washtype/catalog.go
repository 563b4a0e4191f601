// Package washtype serves the wash service catalog, preferring the remote
// collector's list and falling back to the last list it returned and then
// to the local config.
package washtype

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"laundry-locker/internal/model"
)

const cacheKey = "wash_types"

// DefaultEstimatedMinutes is reported for wash types that do not declare a
// duration.
const DefaultEstimatedMinutes = 60

// Fetcher loads the remote catalog. *telemetry.Client implements it.
type Fetcher interface {
	FetchWashTypes(ctx context.Context) ([]model.WashType, error)
}

// Catalog resolves wash types. It is safe for concurrent use.
type Catalog struct {
	fetcher Fetcher
	local   []model.WashType
	cache   *cache.Cache
	ttl     time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	lastRemote []model.WashType
}

// NewCatalog creates a Catalog. fetcher may be nil to serve only the local
// list. Remote results are cached for ttl.
func NewCatalog(fetcher Fetcher, local []model.WashType, ttl time.Duration, logger *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		fetcher: fetcher,
		local:   withDefaults(local),
		cache:   cache.New(ttl, 2*ttl),
		ttl:     ttl,
		logger:  logger.With("component", "washtype"),
	}
}

// List returns the current catalog.
func (c *Catalog) List(ctx context.Context) []model.WashType {
	if cached, found := c.cache.Get(cacheKey); found {
		return clone(cached.([]model.WashType))
	}

	if c.fetcher != nil {
		types, err := c.fetcher.FetchWashTypes(ctx)
		switch {
		case err != nil:
			c.logger.Warn("failed to fetch wash types from server", "err", err)
		case len(types) == 0:
			c.logger.Warn("server returned empty wash types list")
		default:
			types = withDefaults(types)
			c.cache.Set(cacheKey, types, c.ttl)
			c.mu.Lock()
			c.lastRemote = types
			c.mu.Unlock()
			c.logger.Info("fetched wash types from server", "count", len(types))
			return clone(types)
		}
	}

	c.mu.Lock()
	last := c.lastRemote
	c.mu.Unlock()
	if len(last) > 0 {
		c.logger.Info("using cached server wash types")
		return clone(last)
	}
	return clone(c.local)
}

// Lookup returns the wash type with the given id.
func (c *Catalog) Lookup(ctx context.Context, id model.WashTypeID) (model.WashType, bool) {
	for _, wt := range c.List(ctx) {
		if wt.ID == id {
			return wt, true
		}
	}
	return model.WashType{}, false
}

// Invalidate drops the cached remote list so the next List refetches it.
func (c *Catalog) Invalidate() {
	c.cache.Delete(cacheKey)
}

func withDefaults(types []model.WashType) []model.WashType {
	out := clone(types)
	for i := range out {
		if out[i].Description == "" {
			out[i].Description = fmt.Sprintf("%s service", out[i].Name)
		}
		if out[i].EstimatedMinutes <= 0 {
			out[i].EstimatedMinutes = DefaultEstimatedMinutes
		}
	}
	return out
}

func clone(types []model.WashType) []model.WashType {
	out := make([]model.WashType, len(types))
	copy(out, types)
	return out
}
