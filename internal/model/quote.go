package model

// Quote is a per-ticker snapshot. Pointer fields are only set while the
// corresponding data (or market session) is available.
type Quote struct {
	Ticker    string  `json:"ticker"`
	Name      string  `json:"name"`
	LongName  string  `json:"long_name"`
	Price     float64 `json:"price"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	PrevClose float64 `json:"prev_close"`
	Volume    int64   `json:"volume"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`

	Week52High *float64 `json:"week52_high,omitempty"`
	Week52Low  *float64 `json:"week52_low,omitempty"`
	PERatio    *float64 `json:"pe_ratio,omitempty"`

	PreMarketPrice      *float64 `json:"pre_market_price,omitempty"`
	PreMarketChange     *float64 `json:"pre_market_change,omitempty"`
	PreMarketChangePct  *float64 `json:"pre_market_change_pct,omitempty"`
	PostMarketPrice     *float64 `json:"post_market_price,omitempty"`
	PostMarketChange    *float64 `json:"post_market_change,omitempty"`
	PostMarketChangePct *float64 `json:"post_market_change_pct,omitempty"`

	Updated string `json:"updated,omitempty"`
}

// Float returns a pointer to v, for the optional Quote fields.
func Float(v float64) *float64 { return &v }
