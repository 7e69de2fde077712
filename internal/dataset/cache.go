// Package dataset manages the bulk corporate-ownership dataset: refreshing
// it from the publisher and serving postcode lookups through a process-local
// cache.
package dataset

import (
	"context"
	"sync"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
)

// Cache memoizes per-postcode dataset lookups. Entries live until the next
// Invalidate, which a dataset refresh triggers. Negative results are cached
// too: most postcodes have no corporate rows.
type Cache struct {
	store store.Store

	mu      sync.RWMutex
	entries map[string][]model.CorporateOwnerRecord
}

func NewCache(s store.Store) *Cache {
	return &Cache{
		store:   s,
		entries: make(map[string][]model.CorporateOwnerRecord),
	}
}

// ByPostcode returns the dataset rows for a postcode, consulting the cache
// first. The key is normalized before lookup, matching the form rows are
// stored under.
func (c *Cache) ByPostcode(ctx context.Context, postcode string) ([]model.CorporateOwnerRecord, error) {
	postcode = address.NormalizePostcode(postcode)
	c.mu.RLock()
	rows, ok := c.entries[postcode]
	c.mu.RUnlock()
	if ok {
		return rows, nil
	}

	rows, err := c.store.OwnershipByPostcode(ctx, postcode)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[postcode] = rows
	c.mu.Unlock()
	return rows, nil
}

// Invalidate drops every cached entry. Called after a dataset refresh swaps
// the underlying rows.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string][]model.CorporateOwnerRecord)
	c.mu.Unlock()
}
