package model

// WatchlistEntry is one ticker of a tab. Position is the display index,
// unique within the tab and contiguous from 0.
type WatchlistEntry struct {
	TabID    int64  `json:"tab_id"`
	Ticker   string `json:"ticker"`
	Name     string `json:"name,omitempty"`
	Position int    `json:"position"`
}

// Tab is a named watchlist.
type Tab struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	SortOrder int              `json:"sort_order"`
	Entries   []WatchlistEntry `json:"entries,omitempty"`
}

// Tickers returns the tab's tickers in display order.
func (t Tab) Tickers() []string {
	out := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Ticker
	}
	return out
}

// SearchResult is one hit of the ticker search endpoint.
type SearchResult struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	LongName string `json:"long_name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type,omitempty"`
}
