// Package collector is the HTTP client for the dashboard backend API.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"MarketMirror/internal/model"
)

// Client implements API over the backend's JSON endpoints.
type Client struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
	Log     logrus.FieldLogger
}

// NewClient creates a client with optional proxy support. requestsPerSecond
// <= 0 disables rate limiting.
func NewClient(baseURL, proxyURL string, timeout time.Duration, requestsPerSecond float64, log logrus.FieldLogger) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 10)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		Limiter: limiter,
		Log:     log.WithField("component", "collector"),
	}
}

func (c *Client) FetchQuotes(ctx context.Context, tabID int64) (map[string]model.Quote, error) {
	q := url.Values{"tab_id": {strconv.FormatInt(tabID, 10)}}
	var quotes map[string]model.Quote
	if err := c.do(ctx, http.MethodGet, "/api/quotes", q, nil, &quotes); err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	if quotes == nil {
		quotes = map[string]model.Quote{}
	}
	return quotes, nil
}

// FetchQuote returns the quote of a single ticker.
func (c *Client) FetchQuote(ctx context.Context, ticker string) (model.Quote, error) {
	var quote model.Quote
	if err := c.do(ctx, http.MethodGet, "/api/quote/"+pathTicker(ticker), nil, nil, &quote); err != nil {
		return model.Quote{}, fmt.Errorf("fetch quote %s: %w", ticker, err)
	}
	return quote, nil
}

func (c *Client) FetchChart(ctx context.Context, ticker, period, interval string) ([]model.RawBar, error) {
	q := url.Values{"period": {period}, "interval": {interval}}
	var bars []model.RawBar
	if err := c.do(ctx, http.MethodGet, "/api/chart/"+pathTicker(ticker), q, nil, &bars); err != nil {
		return nil, fmt.Errorf("fetch chart %s: %w", ticker, err)
	}
	return bars, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	var results []model.SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/search", url.Values{"q": {query}}, nil, &results); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return results, nil
}

func (c *Client) FetchTabs(ctx context.Context) ([]model.Tab, error) {
	var tabs []model.Tab
	if err := c.do(ctx, http.MethodGet, "/api/tabs", nil, nil, &tabs); err != nil {
		return nil, fmt.Errorf("fetch tabs: %w", err)
	}
	return tabs, nil
}

func (c *Client) FetchWatchlist(ctx context.Context, tabID int64) ([]model.WatchlistEntry, error) {
	var rows []model.WatchlistEntry
	if err := c.do(ctx, http.MethodGet, "/api/watchlist/"+id(tabID), nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch watchlist %d: %w", tabID, err)
	}
	for i := range rows {
		rows[i].TabID = tabID
		rows[i].Position = i
	}
	return rows, nil
}

func (c *Client) AddTicker(ctx context.Context, tabID int64, ticker, name string) error {
	var q url.Values
	if name != "" {
		q = url.Values{"name": {name}}
	}
	if err := c.do(ctx, http.MethodPost, "/api/watchlist/"+id(tabID)+"/"+pathTicker(ticker), q, nil, nil); err != nil {
		return fmt.Errorf("add %s to tab %d: %w", ticker, tabID, err)
	}
	return nil
}

func (c *Client) RemoveTicker(ctx context.Context, tabID int64, ticker string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/watchlist/"+id(tabID)+"/"+pathTicker(ticker), nil, nil, nil); err != nil {
		return fmt.Errorf("remove %s from tab %d: %w", ticker, tabID, err)
	}
	return nil
}

func (c *Client) Reorder(ctx context.Context, tabID int64, tickers []string) error {
	body := struct {
		Tickers []string `json:"tickers"`
	}{Tickers: tickers}
	if err := c.do(ctx, http.MethodPut, "/api/watchlist/"+id(tabID)+"/reorder", nil, body, nil); err != nil {
		return fmt.Errorf("reorder tab %d: %w", tabID, err)
	}
	return nil
}

func (c *Client) CreateTab(ctx context.Context, name string) (model.Tab, error) {
	var tab model.Tab
	if err := c.do(ctx, http.MethodPost, "/api/tabs", nil, tabBody{Name: name}, &tab); err != nil {
		return model.Tab{}, fmt.Errorf("create tab %q: %w", name, err)
	}
	return tab, nil
}

func (c *Client) RenameTab(ctx context.Context, tabID int64, name string) error {
	if err := c.do(ctx, http.MethodPut, "/api/tabs/"+id(tabID), nil, tabBody{Name: name}, nil); err != nil {
		return fmt.Errorf("rename tab %d: %w", tabID, err)
	}
	return nil
}

func (c *Client) DeleteTab(ctx context.Context, tabID int64) error {
	if err := c.do(ctx, http.MethodDelete, "/api/tabs/"+id(tabID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete tab %d: %w", tabID, err)
	}
	return nil
}

type tabBody struct {
	Name string `json:"name"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.Limiter.Wait(ctx); err != nil {
		return &transportError{err: fmt.Errorf("rate limiter: %w", err)}
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	c.Log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": reqID,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Debug("backend request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var refusal struct {
			Message string `json:"message"`
		}
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(data, &refusal) == nil {
			se.Message = refusal.Message
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

func pathTicker(t string) string {
	return url.PathEscape(strings.ToUpper(strings.TrimSpace(t)))
}
