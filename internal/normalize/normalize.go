// Package normalize turns raw backend bars into chart points keyed for the
// user's timezone.
package normalize

import (
	"time"

	"MarketMirror/internal/model"
)

// intradayIntervals lists the sub-daily interval codes. Anything else is
// treated as daily or coarser.
var intradayIntervals = map[string]bool{
	"1m": true, "2m": true, "5m": true, "15m": true,
	"30m": true, "60m": true, "90m": true, "1h": true,
}

// IsIntraday reports whether interval samples more often than once a day.
func IsIntraday(interval string) bool { return intradayIntervals[interval] }

// ShowsTime reports whether a period gets a time-of-day axis.
func ShowsTime(period string) bool { return period == "1d" || period == "5d" }

// Normalize converts bars for display in a timezone offsetSeconds away from UTC.
//
// Intraday bars keep an epoch key shifted by the offset. Daily bars are keyed
// by the local calendar date, so a UTC-midnight bar lands on the previous day
// west of Greenwich. Duplicate keys keep the first bar seen.
func Normalize(bars []model.RawBar, interval string, offsetSeconds int64) []model.ChartPoint {
	if len(bars) == 0 {
		return []model.ChartPoint{}
	}
	intraday := IsIntraday(interval)

	points := make([]model.ChartPoint, 0, len(bars))
	seen := make(map[model.ChartTime]struct{}, len(bars))
	for _, b := range bars {
		var key model.ChartTime
		if intraday {
			key = model.Intraday(b.Time + offsetSeconds)
		} else {
			key = model.Daily(LocalDate(b.Time, offsetSeconds))
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		points = append(points, model.ChartPoint{
			Time:   key,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return points
}

// LocalDate formats the calendar date of a UTC epoch shifted by offsetSeconds.
func LocalDate(epoch, offsetSeconds int64) string {
	return time.Unix(epoch+offsetSeconds, 0).UTC().Format(model.DateFormat)
}
