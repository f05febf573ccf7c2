package quotes

import (
	"github.com/shopspring/decimal"

	"MarketMirror/internal/model"
)

// ChangeKind classifies how a ticker's displayed price moved between two snapshots.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Increased
	Decreased
	New
)

func (k ChangeKind) String() string {
	switch k {
	case Increased:
		return "increased"
	case Decreased:
		return "decreased"
	case New:
		return "new"
	default:
		return "unchanged"
	}
}

func (k ChangeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// displayPlaces is the number of decimals prices are shown with.
const displayPlaces = 2

// DisplayPrice rounds p the way the dashboard shows it.
func DisplayPrice(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Round(displayPlaces)
}

// FormatPrice renders p with the display precision.
func FormatPrice(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(displayPlaces)
}

// Reconcile compares incoming against previous. The returned snapshot is
// incoming itself: the server is authoritative and tickers it dropped are gone.
// Deltas compare display-rounded prices so sub-cent float noise is not a change.
func Reconcile(previous, incoming map[string]model.Quote) (map[string]model.Quote, map[string]ChangeKind) {
	deltas := make(map[string]ChangeKind, len(incoming))
	for ticker, q := range incoming {
		old, ok := previous[ticker]
		if !ok {
			deltas[ticker] = New
			continue
		}
		deltas[ticker] = Classify(old.Price, q.Price)
	}
	return incoming, deltas
}

// Classify compares two raw prices at display precision.
func Classify(previous, current float64) ChangeKind {
	switch DisplayPrice(current).Cmp(DisplayPrice(previous)) {
	case 1:
		return Increased
	case -1:
		return Decreased
	default:
		return Unchanged
	}
}
