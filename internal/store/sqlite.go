package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"MarketMirror/internal/model"
)

// SQLiteStore keeps tabs and watchlists in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log logrus.FieldLogger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database, runs migrations and seeds the
// default tabs when there are none.
func OpenSQLite(ctx context.Context, dbPath string, log logrus.FieldLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps PRAGMA foreign_keys in effect for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, log: log.WithField("component", "store")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seed(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}

	s.log.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tabs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			sort_order INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			tab_id     INTEGER NOT NULL,
			ticker     TEXT NOT NULL,
			name       TEXT,
			sort_order INTEGER DEFAULT 0,
			added_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tab_id) REFERENCES tabs(id) ON DELETE CASCADE,
			UNIQUE(tab_id, ticker)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_tab ON watchlist(tab_id, sort_order)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) seed(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tabs`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, tab := range defaultTabs {
		res, err := tx.ExecContext(ctx, `INSERT INTO tabs (name, sort_order) VALUES (?, ?)`, tab.name, i)
		if err != nil {
			return err
		}
		tabID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for order, t := range tab.tickers {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO watchlist (tab_id, ticker, name, sort_order) VALUES (?, ?, ?, ?)`,
				tabID, t[0], t[1], order); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.WithField("tabs", len(defaultTabs)).Info("seeded default watchlists")
	return nil
}

func (s *SQLiteStore) Tabs(ctx context.Context) ([]model.Tab, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, sort_order FROM tabs ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	defer rows.Close()

	tabs := []model.Tab{}
	for rows.Next() {
		var t model.Tab
		if err := rows.Scan(&t.ID, &t.Name, &t.SortOrder); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		tabs = append(tabs, t)
	}
	return tabs, rows.Err()
}

// CreateTab appends a tab after the current last one.
func (s *SQLiteStore) CreateTab(ctx context.Context, name string) (model.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	var maxOrder int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order), 0) FROM tabs`).Scan(&maxOrder); err != nil {
		return model.Tab{}, fmt.Errorf("create tab: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO tabs (name, sort_order) VALUES (?, ?)`, name, maxOrder+1)
	if err != nil {
		return model.Tab{}, fmt.Errorf("create tab: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Tab{}, fmt.Errorf("create tab: %w", err)
	}
	return model.Tab{ID: id, Name: name, SortOrder: maxOrder + 1}, nil
}

func (s *SQLiteStore) RenameTab(ctx context.Context, tabID int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tabs SET name = ? WHERE id = ?`, strings.TrimSpace(name), tabID)
	if err != nil {
		return fmt.Errorf("rename tab %d: %w", tabID, err)
	}
	return affected(res, fmt.Sprintf("tab %d", tabID))
}

// DeleteTab removes a tab and its tickers. The last remaining tab cannot be
// deleted.
func (s *SQLiteStore) DeleteTab(ctx context.Context, tabID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists, n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE id = ?), COUNT(*) FROM tabs`, tabID).Scan(&exists, &n)
	if err != nil {
		return fmt.Errorf("delete tab %d: %w", tabID, err)
	}
	if exists == 0 {
		return fmt.Errorf("tab %d: %w", tabID, ErrNotFound)
	}
	if n <= 1 {
		return ErrLastTab
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tabs WHERE id = ?`, tabID)
	if err != nil {
		return fmt.Errorf("delete tab %d: %w", tabID, err)
	}
	return affected(res, fmt.Sprintf("tab %d", tabID))
}

func (s *SQLiteStore) Watchlist(ctx context.Context, tabID int64) ([]model.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, COALESCE(name, '') FROM watchlist WHERE tab_id = ? ORDER BY sort_order, added_at, id`, tabID)
	if err != nil {
		return nil, fmt.Errorf("watchlist %d: %w", tabID, err)
	}
	defer rows.Close()

	entries := []model.WatchlistEntry{}
	for rows.Next() {
		e := model.WatchlistEntry{TabID: tabID, Position: len(entries)}
		if err := rows.Scan(&e.Ticker, &e.Name); err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddTicker appends ticker to the end of the tab.
func (s *SQLiteStore) AddTicker(ctx context.Context, tabID int64, ticker, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticker = normalizeTicker(ticker)
	var maxOrder int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), -1) FROM watchlist WHERE tab_id = ?`, tabID).Scan(&maxOrder); err != nil {
		return fmt.Errorf("add %s: %w", ticker, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlist (tab_id, ticker, name, sort_order) VALUES (?, ?, ?, ?)`,
		tabID, ticker, name, maxOrder+1)
	if err != nil {
		if constraint(err, "UNIQUE") {
			return fmt.Errorf("add %s to tab %d: %w", ticker, tabID, ErrExists)
		}
		if constraint(err, "FOREIGN KEY") {
			return fmt.Errorf("add %s to tab %d: %w", ticker, tabID, ErrNotFound)
		}
		return fmt.Errorf("add %s to tab %d: %w", ticker, tabID, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveTicker(ctx context.Context, tabID int64, ticker string) error {
	ticker = normalizeTicker(ticker)
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE tab_id = ? AND ticker = ?`, tabID, ticker)
	if err != nil {
		return fmt.Errorf("remove %s from tab %d: %w", ticker, tabID, err)
	}
	return affected(res, fmt.Sprintf("%s in tab %d", ticker, tabID))
}

// Reorder sets each ticker's sort order to its index in tickers. Tickers not
// in the tab are ignored.
func (s *SQLiteStore) Reorder(ctx context.Context, tabID int64, tickers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reorder tab %d: %w", tabID, err)
	}
	defer tx.Rollback()
	for i, t := range tickers {
		if _, err := tx.ExecContext(ctx,
			`UPDATE watchlist SET sort_order = ? WHERE tab_id = ? AND ticker = ?`,
			i, tabID, normalizeTicker(t)); err != nil {
			return fmt.Errorf("reorder tab %d: %w", tabID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reorder tab %d: %w", tabID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}

func normalizeTicker(t string) string { return strings.ToUpper(strings.TrimSpace(t)) }

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// constraint reports whether err is a SQLite constraint violation of kind,
// e.g. "UNIQUE". The primary code is masked off extended result codes.
func constraint(err error, kind string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), kind)
}
