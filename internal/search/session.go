// Package search debounces free-text ticker queries and makes sure only the
// response to the newest issued query is ever delivered.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"MarketMirror/internal/eventloop"
	"MarketMirror/internal/model"
)

// DefaultDebounce is how long input must stay quiet before a query is sent.
const DefaultDebounce = 300 * time.Millisecond

// Searcher runs a query against the backend.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// Result is a settled result set. Cleared is set when the input was emptied.
type Result struct {
	Seq     uint64
	Query   string
	Results []model.SearchResult
	Cleared bool
}

// Session is owned by the event loop.
//
// Every query that reaches the network gets the next sequence number; a
// response is applied only if its number is still the latest issued, so a slow
// answer to an old query can never replace the answer to the current one.
type Session struct {
	ctx        context.Context
	dispatcher eventloop.Dispatcher
	searcher   Searcher
	delay      time.Duration
	emit       func(Result)
	log        logrus.FieldLogger

	timer   eventloop.Timer
	input   string
	issued  uint64
	applied uint64
}

func NewSession(ctx context.Context, d eventloop.Dispatcher, s Searcher, delay time.Duration, emit func(Result), log logrus.FieldLogger) *Session {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Session{
		ctx:        ctx,
		dispatcher: d,
		searcher:   s,
		delay:      delay,
		emit:       emit,
		log:        log.WithField("component", "search"),
	}
}

// Input returns the current query text.
func (s *Session) Input() string { return s.input }

// Issued returns the sequence number of the latest query sent to the network.
func (s *Session) Issued() uint64 { return s.issued }

// OnQueryChange restarts the debounce window with text. Empty text clears the
// results right away and invalidates anything in flight.
func (s *Session) OnQueryChange(text string) {
	text = strings.TrimSpace(text)
	s.input = text
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(text) < 1 {
		s.issued++
		s.applied = s.issued
		s.emit(Result{Seq: s.issued, Cleared: true})
		return
	}
	s.timer = s.dispatcher.AfterFunc(s.delay, func() { s.fire(text) })
}

func (s *Session) fire(query string) {
	s.timer = nil
	s.issued++
	seq := s.issued
	s.log.WithFields(logrus.Fields{"seq": seq, "query": query}).Debug("search issued")

	s.dispatcher.Go(func() {
		results, err := s.searcher.Search(s.ctx, query)
		s.dispatcher.Post(func() { s.settle(seq, query, results, err) })
	})
}

func (s *Session) settle(seq uint64, query string, results []model.SearchResult, err error) {
	log := s.log.WithFields(logrus.Fields{"seq": seq, "query": query})
	if seq != s.issued || seq <= s.applied {
		log.WithField("latest", s.issued).Debug("stale search response discarded")
		return
	}
	if err != nil {
		log.WithError(err).Warn("search failed")
		return
	}
	s.applied = seq
	if results == nil {
		results = []model.SearchResult{}
	}
	s.emit(Result{Seq: seq, Query: query, Results: results})
}
