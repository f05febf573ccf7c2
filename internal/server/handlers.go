package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"MarketMirror/internal/model"
	"MarketMirror/internal/store"
)

// Provider is the market data source.
type Provider interface {
	Quote(ctx context.Context, ticker string) (model.Quote, error)
	BulkQuotes(ctx context.Context, tickers []string) map[string]model.Quote
	Chart(ctx context.Context, ticker, period, interval string) ([]model.RawBar, error)
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

type Handler struct {
	store    store.Store
	provider Provider
	log      logrus.FieldLogger
}

func NewHandler(s store.Store, p Provider, log logrus.FieldLogger) *Handler {
	return &Handler{store: s, provider: p, log: log.WithField("component", "handler")}
}

type nameBody struct {
	Name string `json:"name" binding:"required"`
}

type reorderBody struct {
	Tickers []string `json:"tickers"`
}

func (h *Handler) internal(c *gin.Context, err error) {
	h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("handler failed")
	c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
}

func tabParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("tab_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "message": "invalid tab id"})
		return 0, false
	}
	return id, true
}

func tickerParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
}

func (h *Handler) GetTabs(c *gin.Context) {
	tabs, err := h.store.Tabs(c.Request.Context())
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, tabs)
}

func (h *Handler) CreateTab(c *gin.Context) {
	var body nameBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "message": "name is required"})
		return
	}
	tab, err := h.store.CreateTab(c.Request.Context(), body.Name)
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, tab)
}

func (h *Handler) RenameTab(c *gin.Context) {
	id, ok := tabParam(c)
	if !ok {
		return
	}
	var body nameBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "message": "name is required"})
		return
	}
	switch err := h.store.RenameTab(c.Request.Context(), id, body.Name); {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found"})
	case err != nil:
		h.internal(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "renamed", "id": id, "name": strings.TrimSpace(body.Name)})
	}
}

func (h *Handler) DeleteTab(c *gin.Context) {
	id, ok := tabParam(c)
	if !ok {
		return
	}
	switch err := h.store.DeleteTab(c.Request.Context(), id); {
	case errors.Is(err, store.ErrLastTab):
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "message": "Cannot delete the last tab"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found"})
	case err != nil:
		h.internal(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	}
}

func (h *Handler) GetWatchlist(c *gin.Context) {
	id, ok := tabParam(c)
	if !ok {
		return
	}
	entries, err := h.store.Watchlist(c.Request.Context(), id)
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) AddTicker(c *gin.Context) {
	id, ok := tabParam(c)
	if !ok {
		return
	}
	ticker := tickerParam(c)
	switch err := h.store.AddTicker(c.Request.Context(), id, ticker, c.Query("name")); {
	case errors.Is(err, store.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"status": "exists", "message": fmt.Sprintf("%s already in this list", ticker)})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found", "message": fmt.Sprintf("tab %d not found", id)})
	case err != nil:
		h.internal(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "added", "ticker": ticker})
	}
}

func (h *Handler) RemoveTicker(c *gin.Context) {
	id, ok := tabParam(c)
	if !ok {
		return
	}
	ticker := tickerParam(c)
	switch err := h.store.RemoveTicker(c.Request.Context(), id, ticker); {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found", "message": fmt.Sprintf("%s not in this list", ticker)})
	case err != nil:
		h.internal(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "removed", "ticker": ticker})
	}
}

func (h *Handler) Reorder(c *gin.Context) {
	id, ok := tabParam(c)
	if !ok {
		return
	}
	var body reorderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "message": err.Error()})
		return
	}
	if err := h.store.Reorder(c.Request.Context(), id, body.Tickers); err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reordered", "tab_id": id})
}

// GetQuotes returns quotes for every ticker of tab_id, or of the first tab
// when tab_id is missing or 0.
func (h *Handler) GetQuotes(c *gin.Context) {
	ctx := c.Request.Context()
	id, _ := strconv.ParseInt(c.Query("tab_id"), 10, 64)
	if id == 0 {
		tabs, err := h.store.Tabs(ctx)
		if err != nil {
			h.internal(c, err)
			return
		}
		if len(tabs) > 0 {
			id = tabs[0].ID
		}
	}
	entries, err := h.store.Watchlist(ctx, id)
	if err != nil {
		h.internal(c, err)
		return
	}
	if len(entries) == 0 {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	tickers := make([]string, len(entries))
	for i, e := range entries {
		tickers[i] = e.Ticker
	}
	c.JSON(http.StatusOK, h.provider.BulkQuotes(ctx, tickers))
}

func (h *Handler) GetQuote(c *gin.Context) {
	ticker := tickerParam(c)
	q, err := h.provider.Quote(c.Request.Context(), ticker)
	if err != nil {
		h.log.WithField("ticker", ticker).WithError(err).Warn("quote lookup failed")
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticker not found", "message": "Ticker not found"})
		return
	}
	c.JSON(http.StatusOK, q)
}

// GetChart answers with an empty list when the provider has no data.
func (h *Handler) GetChart(c *gin.Context) {
	ticker := tickerParam(c)
	period := c.DefaultQuery("period", "1mo")
	interval := c.DefaultQuery("interval", "1d")
	bars, err := h.provider.Chart(c.Request.Context(), ticker, period, interval)
	if err != nil {
		h.log.WithFields(logrus.Fields{"ticker": ticker, "period": period, "interval": interval}).
			WithError(err).Warn("chart fetch failed")
		bars = []model.RawBar{}
	}
	if bars == nil {
		bars = []model.RawBar{}
	}
	c.JSON(http.StatusOK, bars)
}

func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	if len(q) < 1 {
		c.JSON(http.StatusOK, []model.SearchResult{})
		return
	}
	results, err := h.provider.Search(c.Request.Context(), q)
	if err != nil {
		h.log.WithField("query", q).WithError(err).Warn("search failed")
		results = []model.SearchResult{}
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}
