package provider

import (
	"errors"
	"math"

	"MarketMirror/internal/model"
)

// tradingYear is the number of daily bars in 52 weeks.
const tradingYear = 252

// Week52Range scans the most recent 252 daily bars and returns the high and low.
func Week52Range(dailyBars []model.RawBar) (high, low float64, err error) {
	if len(dailyBars) == 0 {
		return 0, 0, errors.New("no daily bars provided")
	}
	start := max(len(dailyBars)-tradingYear, 0)
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range dailyBars[start:] {
		high = max(high, b.High)
		low = min(low, b.Low)
	}
	return high, low, nil
}
