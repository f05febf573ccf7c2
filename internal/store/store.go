// Package store persists tabs and their watchlists for the reference backend.
package store

import (
	"context"
	"errors"

	"MarketMirror/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrLastTab  = errors.New("cannot delete the last tab")
)

// Store is the persistence the HTTP handlers need.
type Store interface {
	Tabs(ctx context.Context) ([]model.Tab, error)
	CreateTab(ctx context.Context, name string) (model.Tab, error)
	RenameTab(ctx context.Context, tabID int64, name string) error
	DeleteTab(ctx context.Context, tabID int64) error

	Watchlist(ctx context.Context, tabID int64) ([]model.WatchlistEntry, error)
	AddTicker(ctx context.Context, tabID int64, ticker, name string) error
	RemoveTicker(ctx context.Context, tabID int64, ticker string) error
	Reorder(ctx context.Context, tabID int64, tickers []string) error

	Close() error
}

type seedTab struct {
	name    string
	tickers [][2]string // ticker, name
}

// defaultTabs is written on first run, when the database has no tabs.
var defaultTabs = []seedTab{
	{"Main", [][2]string{
		{"AEM", "Agnico Eagle Mines"},
		{"TLT", "20+ Year Treasury ETF"},
		{"VTI", "Total Stock Market ETF"},
		{"FSAGX", "Fidelity Gold Fund"},
	}},
	{"MAG7", [][2]string{
		{"AAPL", "Apple Inc."},
		{"AMZN", "Amazon.com Inc."},
		{"GOOG", "Alphabet Inc."},
		{"META", "Meta Platforms Inc."},
		{"TSLA", "Tesla Inc."},
		{"MSFT", "Microsoft Corporation"},
		{"NVDA", "NVIDIA Corporation"},
		{"MAGS", "Roundhill Magnificent Seven ETF"},
	}},
	{"AA", [][2]string{
		{"ACWI", "iShares MSCI ACWI ETF"},
		{"EFA", "iShares MSCI EAFE ETF"},
		{"EEM", "iShares MSCI Emerging Markets ETF"},
		{"BCOM.XA", "Bloomberg Commodity Index"},
		{"GLD", "SPDR Gold Shares"},
		{"SLV", "iShares Silver Trust"},
		{"SPY", "SPDR S&P 500 ETF"},
		{"IWM", "iShares Russell 2000 ETF"},
	}},
	{"US Sectors", [][2]string{
		{"XLK", "Technology"},
		{"XLF", "Financials"},
		{"XLV", "Health Care"},
		{"XLY", "Consumer Discretionary"},
		{"XLC", "Communication Services"},
		{"XLI", "Industrials"},
		{"XLP", "Consumer Staples"},
		{"XLE", "Energy"},
		{"XLU", "Utilities"},
		{"XLRE", "Real Estate"},
		{"XLB", "Materials"},
	}},
}
