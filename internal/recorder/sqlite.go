package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"PriceHistory/internal/model"
)

// SQLiteStore keeps the catalog and the bar tables in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("open sqlite: empty path")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; share one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchange (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol    TEXT NOT NULL,
			name      TEXT NOT NULL DEFAULT '',
			parent_id INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_exchange_parent_symbol ON exchange(parent_id, symbol)`,

		`CREATE TABLE IF NOT EXISTS product (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			yahoo_sfx   TEXT NOT NULL DEFAULT '',
			exchange_id INTEGER NOT NULL DEFAULT 0,
			board_id    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_product_symbol ON product(symbol)`,
	}
	for _, g := range []model.Granularity{model.Day, model.Week, model.Month} {
		t := g.Table()
		stmts = append(stmts,
			`CREATE TABLE IF NOT EXISTS `+t+` (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				product_id INTEGER NOT NULL REFERENCES product(id),
				date       TEXT NOT NULL,
				open       REAL NOT NULL,
				high       REAL NOT NULL,
				low        REAL NOT NULL,
				close      REAL NOT NULL,
				adj_close  REAL NOT NULL,
				volume     INTEGER NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_`+t+`_product_date ON `+t+`(product_id, date)`,
		)
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(stmt)[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) FindStale(ctx context.Context, g model.Granularity, boundary time.Time) ([]model.ProductRef, error) {
	if err := checkGranularity(g); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, p.symbol, p.name, p.yahoo_sfx, p.exchange_id, p.board_id,
			MAX(o.date) AS last_date
		FROM product p
		LEFT JOIN `+g.Table()+` o ON o.product_id = p.id
		GROUP BY p.id
		HAVING last_date IS NULL OR last_date < ?
		ORDER BY p.id`,
		boundary.Format(model.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("find stale %s: %w", g, err)
	}
	defer rows.Close()

	var refs []model.ProductRef
	for rows.Next() {
		var ref model.ProductRef
		var last sql.NullString
		if err := rows.Scan(&ref.ID, &ref.Symbol, &ref.Name, &ref.Suffix, &ref.ExchangeID, &ref.BoardID, &last); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if last.Valid {
			if ref.LastDate, err = time.Parse(model.DateLayout, last.String); err != nil {
				return nil, fmt.Errorf("product %s: stored date %q: %w", ref.Symbol, last.String, err)
			}
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *SQLiteStore) LatestDate(ctx context.Context, g model.Granularity, productID int64) (time.Time, bool, error) {
	if err := checkGranularity(g); err != nil {
		return time.Time{}, false, err
	}
	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM `+g.Table()+` WHERE product_id = ?`, productID,
	).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest %s date: %w", g, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(model.DateLayout, last.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stored date %q: %w", last.String, err)
	}
	return t, true, nil
}

func (s *SQLiteStore) CommitBars(ctx context.Context, g model.Granularity, productID int64, bars []model.Bar) (int, error) {
	if err := checkGranularity(g); err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+g.Table()+`
		(product_id, date, open, high, low, close, adj_close, volume)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, productID, b.Date.Format(model.DateLayout),
			b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume)
		if err != nil {
			if isSQLiteUnique(err) {
				return 0, conflictError(productID, err)
			}
			return 0, fmt.Errorf("insert %s bar %s: %w", g, b.Date.Format(model.DateLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		if isSQLiteUnique(err) {
			return 0, conflictError(productID, err)
		}
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(bars), nil
}

func (s *SQLiteStore) AddExchange(ctx context.Context, e model.Exchange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ParentID != 0 {
		var parentOfParent int64
		err := s.db.QueryRowContext(ctx, `SELECT parent_id FROM exchange WHERE id = ?`, e.ParentID).Scan(&parentOfParent)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("parent exchange %d: %w", e.ParentID, ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("lookup parent: %w", err)
		}
		if parentOfParent != 0 {
			return 0, fmt.Errorf("exchange %s: parent %d is itself a board", e.Symbol, e.ParentID)
		}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange (symbol, name, parent_id) VALUES (?,?,?)`, e.Symbol, e.Name, e.ParentID)
	if err != nil {
		return 0, fmt.Errorf("insert exchange %s: %w", e.Symbol, err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) FindExchange(ctx context.Context, symbol string, parentID int64) (model.Exchange, error) {
	e := model.Exchange{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, name, parent_id FROM exchange WHERE symbol = ? AND parent_id = ?`, symbol, parentID,
	).Scan(&e.ID, &e.Symbol, &e.Name, &e.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("exchange %s: %w", symbol, ErrNotFound)
	}
	return e, err
}

func (s *SQLiteStore) TopExchanges(ctx context.Context) ([]model.Exchange, error) {
	return s.exchanges(ctx, 0)
}

func (s *SQLiteStore) Boards(ctx context.Context, parentID int64) ([]model.Exchange, error) {
	if parentID == 0 {
		return nil, nil
	}
	return s.exchanges(ctx, parentID)
}

func (s *SQLiteStore) exchanges(ctx context.Context, parentID int64) ([]model.Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, name, parent_id FROM exchange WHERE parent_id = ? ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var out []model.Exchange
	for rows.Next() {
		var e model.Exchange
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Name, &e.ParentID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddProduct(ctx context.Context, p model.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO product (symbol, name, yahoo_sfx, exchange_id, board_id) VALUES (?,?,?,?,?)`,
		p.Symbol, p.Name, p.Suffix, p.ExchangeID, p.BoardID)
	if err != nil {
		return 0, fmt.Errorf("insert product %s: %w", p.Symbol, err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListBars(ctx context.Context, g model.Granularity, symbol string) ([]model.ProductBar, error) {
	if err := checkGranularity(g); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT p.symbol, o.date, o.open, o.high, o.low, o.close, o.adj_close, o.volume
		FROM `+g.Table()+` o
		JOIN product p ON p.id = o.product_id
		WHERE ? = '' OR p.symbol = ?
		ORDER BY p.symbol, o.date`, symbol, symbol)
	if err != nil {
		return nil, fmt.Errorf("list %s bars: %w", g, err)
	}
	defer rows.Close()

	var out []model.ProductBar
	for rows.Next() {
		var pb model.ProductBar
		var date string
		b := &pb.Bar
		if err := rows.Scan(&pb.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, err
		}
		if b.Date, err = time.Parse(model.DateLayout, date); err != nil {
			return nil, fmt.Errorf("stored date %q: %w", date, err)
		}
		out = append(out, pb)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
