// Package watchlist keeps the ordered ticker list of each tab. Reorders are
// applied locally first and then persisted as one full-list write.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"MarketMirror/internal/eventloop"
	"MarketMirror/internal/model"
)

var (
	ErrUnknownTab     = errors.New("unknown tab")
	ErrNotPermutation = errors.New("order must contain exactly the tab's tickers")
	ErrDuplicate      = errors.New("ticker already in tab")
	ErrMissing        = errors.New("ticker not in tab")
)

// Persister writes watchlist changes to the backend.
type Persister interface {
	Reorder(ctx context.Context, tabID int64, tickers []string) error
	AddTicker(ctx context.Context, tabID int64, ticker, name string) error
	RemoveTicker(ctx context.Context, tabID int64, ticker string) error
}

// Listener receives local watchlist changes and failed writes. Both are called
// on the event loop.
type Listener interface {
	WatchlistChanged(tabID int64, entries []model.WatchlistEntry)
	WatchlistFailed(tabID int64, op string, err error)
}

type tabState struct {
	local     []model.WatchlistEntry
	confirmed []model.WatchlistEntry
	// gen counts reorders issued for the tab; confirmedGen is the newest one the
	// server acknowledged.
	gen          uint64
	confirmedGen uint64
}

// Store is owned by the event loop; none of its methods are safe for
// concurrent use.
type Store struct {
	ctx        context.Context
	dispatcher eventloop.Dispatcher
	persister  Persister
	listener   Listener
	log        logrus.FieldLogger

	tabs map[int64]*tabState
}

func NewStore(ctx context.Context, d eventloop.Dispatcher, p Persister, l Listener, log logrus.FieldLogger) *Store {
	return &Store{
		ctx:        ctx,
		dispatcher: d,
		persister:  p,
		listener:   l,
		log:        log.WithField("component", "watchlist"),
		tabs:       make(map[int64]*tabState),
	}
}

// Load replaces a tab's state with the server's truth.
func (s *Store) Load(tabID int64, entries []model.WatchlistEntry) {
	ordered := renumber(tabID, entries)
	st, ok := s.tabs[tabID]
	if !ok {
		st = &tabState{}
		s.tabs[tabID] = st
	}
	st.local = ordered
	st.confirmed = slices.Clone(ordered)
	st.confirmedGen = st.gen
	s.changed(tabID)
}

// Entries returns the local order of a tab.
func (s *Store) Entries(tabID int64) []model.WatchlistEntry {
	st, ok := s.tabs[tabID]
	if !ok {
		return nil
	}
	return slices.Clone(st.local)
}

// Tickers returns the tab's tickers in local order.
func (s *Store) Tickers(tabID int64) []string {
	return tickers(s.Entries(tabID))
}

// Confirmed returns the last order the server acknowledged.
func (s *Store) Confirmed(tabID int64) []string {
	st, ok := s.tabs[tabID]
	if !ok {
		return nil
	}
	return tickers(st.confirmed)
}

// Reorder applies ordered locally, then persists it. ordered must be a
// permutation of the tab's current tickers.
func (s *Store) Reorder(tabID int64, ordered []string) error {
	st, ok := s.tabs[tabID]
	if !ok {
		return fmt.Errorf("reorder tab %d: %w", tabID, ErrUnknownTab)
	}
	ordered = upper(ordered)
	if !samePermutation(tickers(st.local), ordered) {
		return fmt.Errorf("reorder tab %d: %w", tabID, ErrNotPermutation)
	}

	names := make(map[string]string, len(st.local))
	for _, e := range st.local {
		names[e.Ticker] = e.Name
	}
	next := make([]model.WatchlistEntry, len(ordered))
	for i, t := range ordered {
		next[i] = model.WatchlistEntry{TabID: tabID, Ticker: t, Name: names[t], Position: i}
	}
	st.local = next
	st.gen++
	gen := st.gen
	s.changed(tabID)

	payload := slices.Clone(ordered)
	s.dispatcher.Go(func() {
		err := s.persister.Reorder(s.ctx, tabID, payload)
		s.dispatcher.Post(func() { s.settleReorder(tabID, gen, next, err) })
	})
	return nil
}

// Move drags the ticker at index from to index to and persists the result.
func (s *Store) Move(tabID int64, from, to int) error {
	current := s.Tickers(tabID)
	if _, ok := s.tabs[tabID]; !ok {
		return fmt.Errorf("move in tab %d: %w", tabID, ErrUnknownTab)
	}
	if from < 0 || from >= len(current) || to < 0 || to >= len(current) {
		return fmt.Errorf("move %d->%d in tab %d: index out of range", from, to, tabID)
	}
	if from == to {
		return nil
	}
	t := current[from]
	current = slices.Delete(current, from, from+1)
	current = slices.Insert(current, to, t)
	return s.Reorder(tabID, current)
}

func (s *Store) settleReorder(tabID int64, gen uint64, sent []model.WatchlistEntry, err error) {
	st, ok := s.tabs[tabID]
	if !ok {
		return
	}
	log := s.log.WithFields(logrus.Fields{"tab_id": tabID, "gen": gen})
	if err == nil {
		if gen > st.confirmedGen {
			st.confirmed = withOrder(tabID, sent, st.confirmed)
			st.confirmedGen = gen
		}
		log.Debug("reorder persisted")
		return
	}
	if gen != st.gen {
		log.WithError(err).Warn("reorder failed, superseded by a newer order")
		return
	}
	log.WithError(err).Warn("reorder failed, reverting to last confirmed order")
	st.local = slices.Clone(st.confirmed)
	s.changed(tabID)
	if s.listener != nil {
		s.listener.WatchlistFailed(tabID, "reorder", err)
	}
}

// Add persists a new ticker and appends it locally once the server accepts it.
// done, if not nil, is called on the loop with the outcome.
func (s *Store) Add(tabID int64, ticker, name string, done func(error)) error {
	st, ok := s.tabs[tabID]
	if !ok {
		return fmt.Errorf("add to tab %d: %w", tabID, ErrUnknownTab)
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return fmt.Errorf("add to tab %d: empty ticker", tabID)
	}
	if slices.Contains(tickers(st.local), ticker) {
		return fmt.Errorf("add %s to tab %d: %w", ticker, tabID, ErrDuplicate)
	}
	s.dispatcher.Go(func() {
		err := s.persister.AddTicker(s.ctx, tabID, ticker, name)
		s.dispatcher.Post(func() {
			if err != nil {
				s.failed(tabID, "add", err)
			} else if st, ok := s.tabs[tabID]; ok && !slices.Contains(tickers(st.local), ticker) {
				entry := model.WatchlistEntry{TabID: tabID, Ticker: ticker, Name: name}
				st.local = renumber(tabID, append(st.local, entry))
				st.confirmed = renumber(tabID, append(slices.Clone(st.confirmed), entry))
				s.changed(tabID)
			}
			if done != nil {
				done(err)
			}
		})
	})
	return nil
}

// Remove deletes a ticker on the server and drops it locally once confirmed.
func (s *Store) Remove(tabID int64, ticker string, done func(error)) error {
	st, ok := s.tabs[tabID]
	if !ok {
		return fmt.Errorf("remove from tab %d: %w", tabID, ErrUnknownTab)
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !slices.Contains(tickers(st.local), ticker) {
		return fmt.Errorf("remove %s from tab %d: %w", ticker, tabID, ErrMissing)
	}
	s.dispatcher.Go(func() {
		err := s.persister.RemoveTicker(s.ctx, tabID, ticker)
		s.dispatcher.Post(func() {
			if err != nil {
				s.failed(tabID, "remove", err)
			} else if st, ok := s.tabs[tabID]; ok {
				st.local = renumber(tabID, without(st.local, ticker))
				st.confirmed = renumber(tabID, without(st.confirmed, ticker))
				s.changed(tabID)
			}
			if done != nil {
				done(err)
			}
		})
	})
	return nil
}

// Forget drops a tab, e.g. after it was deleted on the server.
func (s *Store) Forget(tabID int64) { delete(s.tabs, tabID) }

func (s *Store) failed(tabID int64, op string, err error) {
	s.log.WithFields(logrus.Fields{"tab_id": tabID, "op": op}).WithError(err).Warn("watchlist write failed")
	if s.listener != nil {
		s.listener.WatchlistFailed(tabID, op, err)
	}
}

func (s *Store) changed(tabID int64) {
	if s.listener != nil {
		s.listener.WatchlistChanged(tabID, s.Entries(tabID))
	}
}

func renumber(tabID int64, entries []model.WatchlistEntry) []model.WatchlistEntry {
	out := make([]model.WatchlistEntry, len(entries))
	for i, e := range entries {
		e.TabID = tabID
		e.Ticker = strings.ToUpper(e.Ticker)
		e.Position = i
		out[i] = e
	}
	return out
}

// withOrder orders members the way ordered lists them. Members missing from
// ordered, e.g. added while a reorder was in flight, keep their relative order
// at the end.
func withOrder(tabID int64, ordered, members []model.WatchlistEntry) []model.WatchlistEntry {
	in := make(map[string]bool, len(members))
	for _, e := range members {
		in[e.Ticker] = true
	}
	out := make([]model.WatchlistEntry, 0, len(members))
	placed := make(map[string]bool, len(members))
	for _, e := range ordered {
		if in[e.Ticker] {
			out = append(out, e)
			placed[e.Ticker] = true
		}
	}
	for _, e := range members {
		if !placed[e.Ticker] {
			out = append(out, e)
		}
	}
	return renumber(tabID, out)
}

func without(entries []model.WatchlistEntry, ticker string) []model.WatchlistEntry {
	return slices.DeleteFunc(slices.Clone(entries), func(e model.WatchlistEntry) bool { return e.Ticker == ticker })
}

func tickers(entries []model.WatchlistEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Ticker
	}
	return out
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	return out
}

func samePermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y) && len(slices.Compact(y)) == len(b)
}
