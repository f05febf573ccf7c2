// Package provider fetches quotes, chart bars and ticker search results from
// Yahoo Finance for the reference backend.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"MarketMirror/internal/model"
	"MarketMirror/internal/normalize"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"
	// bulkWorkers caps concurrent upstream requests in BulkQuotes.
	bulkWorkers = 8
	searchLimit = 10
)

var ErrNoData = errors.New("yahoo: no data returned")

// Yahoo talks to the public Yahoo Finance chart and search endpoints.
type Yahoo struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps dashboard tickers to Yahoo symbols
	Log       logrus.FieldLogger

	now func() time.Time
}

// NewYahoo creates a Yahoo provider, optionally behind an HTTP proxy.
func NewYahoo(proxyURL string, timeout time.Duration, log logrus.FieldLogger) *Yahoo {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Yahoo{
		BaseURL: DefaultBaseURL,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
		},
		Log: log.WithField("component", "yahoo"),
		now: time.Now,
	}
}

func (y *Yahoo) symbol(ticker string) string {
	ticker = strings.ToUpper(ticker)
	if mapped, ok := y.SymbolMap[ticker]; ok {
		return mapped
	}
	return ticker
}

type chartMeta struct {
	ShortName          string   `json:"shortName"`
	LongName           string   `json:"longName"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	ChartPreviousClose *float64 `json:"chartPreviousClose"`
	FiftyTwoWeekHigh   *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    *float64 `json:"fiftyTwoWeekLow"`
	PreMarketPrice     *float64 `json:"preMarketPrice"`
	PostMarketPrice    *float64 `json:"postMarketPrice"`
	TrailingPE         *float64 `json:"trailingPE"`
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta       chartMeta `json:"meta"`
			Timestamp  []int64   `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooSearch struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

func at(vs []*float64, i int) float64 {
	if i >= len(vs) || vs[i] == nil {
		return 0
	}
	return *vs[i]
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func (y *Yahoo) get(ctx context.Context, path string, q url.Values, out any) error {
	u := strings.TrimRight(y.BaseURL, "/") + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.Client.Do(req)
	if err != nil {
		return fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("yahoo decode: %w", err)
	}
	return nil
}

func (y *Yahoo) fetchChart(ctx context.Context, ticker string, q url.Values) (chartMeta, []model.RawBar, error) {
	var chart yahooChart
	if err := y.get(ctx, "/v8/finance/chart/"+url.PathEscape(y.symbol(ticker)), q, &chart); err != nil {
		return chartMeta{}, nil, err
	}
	if chart.Chart.Error != nil {
		return chartMeta{}, nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return chartMeta{}, nil, ErrNoData
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return result.Meta, []model.RawBar{}, nil
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.RawBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bars (holidays, halted sessions)
		}
		bars = append(bars, model.RawBar{
			Time:   ts,
			Open:   round2(o),
			High:   round2(h),
			Low:    round2(l),
			Close:  round2(c),
			Volume: int64(at(quote.Volume, i)),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	return result.Meta, bars, nil
}

// Chart returns OHLCV bars for ticker. Intraday intervals include pre and post
// market bars; the 10y period is requested as an explicit start date.
func (y *Yahoo) Chart(ctx context.Context, ticker, period, interval string) ([]model.RawBar, error) {
	q := url.Values{"interval": {interval}}
	if period == "10y" {
		q.Set("period1", strconv.FormatInt(y.now().AddDate(0, 0, -365*10).Unix(), 10))
		q.Set("period2", strconv.FormatInt(y.now().Unix(), 10))
	} else {
		q.Set("range", period)
	}
	if normalize.IsIntraday(interval) {
		q.Set("includePrePost", "true")
	}
	_, bars, err := y.fetchChart(ctx, ticker, q)
	if err != nil {
		return nil, fmt.Errorf("chart %s %s/%s: %w", ticker, period, interval, err)
	}
	return bars, nil
}

// Quote assembles a snapshot for ticker from a year of daily bars.
func (y *Yahoo) Quote(ctx context.Context, ticker string) (model.Quote, error) {
	ticker = strings.ToUpper(ticker)
	meta, bars, err := y.fetchChart(ctx, ticker, url.Values{"interval": {"1d"}, "range": {"1y"}})
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return model.Quote{}, fmt.Errorf("quote %s: %w", ticker, ErrNoData)
	}

	last := bars[len(bars)-1]
	price := last.Close
	prev := price
	if len(bars) >= 2 {
		prev = bars[len(bars)-2].Close
	}
	change := price - prev
	var changePct float64
	if prev != 0 {
		changePct = change / prev * 100
	}

	name := meta.ShortName
	if name == "" {
		name = ticker
	}
	longName := meta.LongName
	if longName == "" {
		longName = name
	}

	q := model.Quote{
		Ticker:    ticker,
		Name:      name,
		LongName:  longName,
		Price:     round2(price),
		Open:      round2(last.Open),
		High:      round2(last.High),
		Low:       round2(last.Low),
		PrevClose: round2(prev),
		Volume:    last.Volume,
		Change:    round2(change),
		ChangePct: round2(changePct),
		Updated:   y.now().Format("2006-01-02 15:04:05"),
	}

	if meta.FiftyTwoWeekHigh != nil && meta.FiftyTwoWeekLow != nil {
		q.Week52High = model.Float(round2(*meta.FiftyTwoWeekHigh))
		q.Week52Low = model.Float(round2(*meta.FiftyTwoWeekLow))
	} else if high, low, err := Week52Range(bars); err == nil {
		q.Week52High = model.Float(high)
		q.Week52Low = model.Float(low)
	}
	if meta.TrailingPE != nil && *meta.TrailingPE > 0 {
		q.PERatio = model.Float(round2(*meta.TrailingPE))
	}
	if p := meta.PreMarketPrice; p != nil && *p > 0 {
		q.PreMarketPrice, q.PreMarketChange, q.PreMarketChangePct = session(*p, price)
	}
	if p := meta.PostMarketPrice; p != nil && *p > 0 {
		q.PostMarketPrice, q.PostMarketChange, q.PostMarketChangePct = session(*p, price)
	}
	return q, nil
}

// session returns an extended-hours price with its change against the regular close.
func session(p, regular float64) (price, change, pct *float64) {
	price = model.Float(round2(p))
	change = model.Float(round2(p - regular))
	if regular != 0 {
		pct = model.Float(round2((p - regular) / regular * 100))
	}
	return price, change, pct
}

// BulkQuotes fetches quotes concurrently. Tickers that fail are logged and left
// out of the result.
func (y *Yahoo) BulkQuotes(ctx context.Context, tickers []string) map[string]model.Quote {
	var (
		mu  sync.Mutex
		out = make(map[string]model.Quote, len(tickers))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkWorkers)
	for _, t := range tickers {
		g.Go(func() error {
			q, err := y.Quote(gctx, t)
			if err != nil {
				y.Log.WithField("ticker", t).WithError(err).Warn("quote fetch failed")
				return nil
			}
			mu.Lock()
			out[q.Ticker] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Search returns up to ten ticker matches for query.
func (y *Yahoo) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	var res yahooSearch
	q := url.Values{"q": {query}, "quotesCount": {strconv.Itoa(searchLimit)}, "newsCount": {"0"}}
	if err := y.get(ctx, "/v1/finance/search", q, &res); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	out := make([]model.SearchResult, 0, len(res.Quotes))
	for _, item := range res.Quotes {
		if len(out) == searchLimit {
			break
		}
		name := item.ShortName
		if name == "" {
			name = item.LongName
		}
		long := item.LongName
		if long == "" {
			long = item.ShortName
		}
		out = append(out, model.SearchResult{
			Ticker:   item.Symbol,
			Name:     name,
			LongName: long,
			Exchange: item.Exchange,
			Type:     item.QuoteType,
		})
	}
	return out, nil
}
