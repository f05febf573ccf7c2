package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RawBar is one OHLCV sample as served by the backend. Time is UTC epoch seconds.
type RawBar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// TimeKind tells which representation a ChartTime holds.
type TimeKind uint8

const (
	IntradayTime TimeKind = iota
	DailyTime
)

func (k TimeKind) String() string {
	if k == DailyTime {
		return "daily"
	}
	return "intraday"
}

// DateFormat is the calendar-day key used by daily chart points.
const DateFormat = "2006-01-02"

// ChartTime is the time key of a chart point: either a shifted epoch (intraday)
// or a local calendar date (daily and coarser). It is comparable and can be used
// as a map key.
type ChartTime struct {
	kind  TimeKind
	epoch int64
	date  string
}

// Intraday returns an epoch-seconds chart time.
func Intraday(epoch int64) ChartTime { return ChartTime{kind: IntradayTime, epoch: epoch} }

// Daily returns a calendar-date chart time ("YYYY-MM-DD").
func Daily(date string) ChartTime { return ChartTime{kind: DailyTime, date: date} }

func (t ChartTime) Kind() TimeKind { return t.kind }
func (t ChartTime) Epoch() int64   { return t.epoch }
func (t ChartTime) Date() string   { return t.date }

func (t ChartTime) String() string {
	if t.kind == DailyTime {
		return t.date
	}
	return strconv.FormatInt(t.epoch, 10)
}

// MarshalJSON writes a number for intraday times and a string for daily ones,
// which is the shape chart renderers accept.
func (t ChartTime) MarshalJSON() ([]byte, error) {
	if t.kind == DailyTime {
		return json.Marshal(t.date)
	}
	return []byte(strconv.FormatInt(t.epoch, 10)), nil
}

func (t *ChartTime) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Daily(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("chart time %s: %w", data, err)
	}
	*t = Intraday(n)
	return nil
}

// ChartPoint is a display-ready bar.
type ChartPoint struct {
	Time   ChartTime `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
