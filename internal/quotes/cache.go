// Package quotes holds the latest quote snapshot of the active tab and
// classifies how each ticker changed between polls.
package quotes

import (
	"maps"
	"slices"

	"MarketMirror/internal/model"
)

// Cache maps ticker to the latest quote for one tab. It is owned by the event
// loop and replaced wholesale on every successful poll.
type Cache struct {
	tabID  int64
	quotes map[string]model.Quote
}

// NewCache returns an empty cache bound to tabID.
func NewCache(tabID int64) *Cache {
	return &Cache{tabID: tabID, quotes: map[string]model.Quote{}}
}

func (c *Cache) TabID() int64 { return c.tabID }

func (c *Cache) Len() int { return len(c.quotes) }

// Get returns the cached quote for ticker.
func (c *Cache) Get(ticker string) (model.Quote, bool) {
	q, ok := c.quotes[ticker]
	return q, ok
}

// Tickers returns the cached tickers, sorted.
func (c *Cache) Tickers() []string {
	return slices.Sorted(maps.Keys(c.quotes))
}

// Snapshot returns a copy of the cached quotes.
func (c *Cache) Snapshot() map[string]model.Quote {
	return maps.Clone(c.quotes)
}

// Apply reconciles incoming against the cache, commits it and returns the deltas.
func (c *Cache) Apply(incoming map[string]model.Quote) map[string]ChangeKind {
	updated, deltas := Reconcile(c.quotes, incoming)
	c.quotes = maps.Clone(updated)
	return deltas
}

// Reset empties the cache and binds it to another tab.
func (c *Cache) Reset(tabID int64) {
	c.tabID = tabID
	c.quotes = map[string]model.Quote{}
}
