// Package symbolcache keeps a local, periodically refreshed snapshot of exchange symbol metadata.
package symbolcache

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// Source fetches symbol metadata from the exchange.
type Source interface {
	GetSymbols(ctx context.Context, symbols ...string) ([]domain.Symbol, error)
}

// Cache serves symbol metadata from memory. The snapshot is only replaced when a refresh
// returns different content, and every replacement bumps the version.
type Cache struct {
	mu       sync.RWMutex
	source   Source
	logger   ports.Logger
	symbols  []string
	snapshot map[string]domain.Symbol
	checksum uint64
	version  int64
}

// New creates a cache for the given symbols. An empty list caches every symbol the source returns.
func New(source Source, logger ports.Logger, symbols ...string) (*Cache, error) {
	if source == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for symbol cache: %w", ports.ErrInvalidArgument)
	}
	return &Cache{
		source:   source,
		logger:   logger,
		symbols:  symbols,
		snapshot: make(map[string]domain.Symbol),
	}, nil
}

// Get returns the cached metadata of a symbol.
func (c *Cache) Get(symbol string) (domain.Symbol, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.snapshot[symbol]
	if !ok {
		return domain.Symbol{}, fmt.Errorf("symbol %s: %w", symbol, ports.ErrSymbolNotFound)
	}
	return s, nil
}

// Version counts content changes; zero means nothing has been loaded yet.
func (c *Cache) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Refresh fetches the symbols and swaps the snapshot if the content changed.
// It reports whether a swap happened.
func (c *Cache) Refresh(ctx context.Context) (bool, error) {
	fetched, err := c.source.GetSymbols(ctx, c.symbols...)
	if err != nil {
		return false, fmt.Errorf("refresh symbols: %w", err)
	}
	sum := checksum(fetched)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version > 0 && sum == c.checksum {
		return false, nil
	}

	next := make(map[string]domain.Symbol, len(fetched))
	for _, s := range fetched {
		next[s.Name] = s
	}
	c.snapshot = next
	c.checksum = sum
	c.version++

	c.logger.Info(ctx, "Symbol metadata updated", map[string]interface{}{
		"symbols": len(next),
		"version": c.version,
	})
	return true, nil
}

// Run refreshes the cache every period until ctx is done. Failed refreshes keep the
// previous snapshot.
func (c *Cache) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error(ctx, err, "Failed to refresh symbol metadata")
			}
		}
	}
}

func checksum(symbols []domain.Symbol) uint64 {
	sorted := make([]domain.Symbol, len(symbols))
	copy(sorted, symbols)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := fnv.New64a()
	for _, s := range sorted {
		f := s.Filters
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s\n",
			s.Name, s.Status, s.BaseAsset, s.QuoteAsset,
			f.LotSize.MinQuantity, f.LotSize.MaxQuantity, f.LotSize.StepSize,
			f.Price.MinPrice, f.Price.MaxPrice, f.Price.TickSize, f.MinNotional)
	}
	return h.Sum64()
}
