package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"PriceHistory/internal/model"
)

const pgUniqueViolation = "23505"

// PostgresStore keeps the catalog and bar tables in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and runs migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("open postgres: empty dsn")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	return newPostgresStoreWithConfig(ctx, cfg)
}

func newPostgresStoreWithConfig(ctx context.Context, cfg *pgxpool.Config) (*PostgresStore, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchange (
			id        BIGSERIAL PRIMARY KEY,
			symbol    TEXT NOT NULL,
			name      TEXT NOT NULL DEFAULT '',
			parent_id BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_exchange_parent_symbol ON exchange(parent_id, symbol)`,
		`CREATE TABLE IF NOT EXISTS product (
			id          BIGSERIAL PRIMARY KEY,
			symbol      TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			yahoo_sfx   TEXT NOT NULL DEFAULT '',
			exchange_id BIGINT NOT NULL DEFAULT 0,
			board_id    BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_product_symbol ON product(symbol)`,
	}
	for _, g := range []model.Granularity{model.Day, model.Week, model.Month} {
		t := g.Table()
		stmts = append(stmts,
			`CREATE TABLE IF NOT EXISTS `+t+` (
				id         BIGSERIAL PRIMARY KEY,
				product_id BIGINT NOT NULL REFERENCES product(id),
				date       DATE NOT NULL,
				open       DOUBLE PRECISION NOT NULL,
				high       DOUBLE PRECISION NOT NULL,
				low        DOUBLE PRECISION NOT NULL,
				close      DOUBLE PRECISION NOT NULL,
				adj_close  DOUBLE PRECISION NOT NULL,
				volume     BIGINT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_`+t+`_product_date ON `+t+`(product_id, date)`,
		)
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) FindStale(ctx context.Context, g model.Granularity, boundary time.Time) ([]model.ProductRef, error) {
	if err := checkGranularity(g); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT p.id, p.symbol, p.name, p.yahoo_sfx, p.exchange_id, p.board_id, MAX(o.date)
		FROM product p
		LEFT JOIN `+g.Table()+` o ON o.product_id = p.id
		GROUP BY p.id
		HAVING MAX(o.date) IS NULL OR MAX(o.date) < $1
		ORDER BY p.id`, boundary)
	if err != nil {
		return nil, fmt.Errorf("find stale %s: %w", g, err)
	}
	defer rows.Close()

	var refs []model.ProductRef
	for rows.Next() {
		var ref model.ProductRef
		var last *time.Time
		if err := rows.Scan(&ref.ID, &ref.Symbol, &ref.Name, &ref.Suffix, &ref.ExchangeID, &ref.BoardID, &last); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if last != nil {
			ref.LastDate = last.UTC()
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) LatestDate(ctx context.Context, g model.Granularity, productID int64) (time.Time, bool, error) {
	if err := checkGranularity(g); err != nil {
		return time.Time{}, false, err
	}
	var last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(date) FROM `+g.Table()+` WHERE product_id = $1`, productID).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest %s date: %w", g, err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return last.UTC(), true, nil
}

func (s *PostgresStore) CommitBars(ctx context.Context, g model.Granularity, productID int64, bars []model.Bar) (int, error) {
	if err := checkGranularity(g); err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, bar := range bars {
		b.Queue(`INSERT INTO `+g.Table()+`
			(product_id, date, open, high, low, close, adj_close, volume)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			productID, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.AdjClose, bar.Volume)
	}
	br := tx.SendBatch(ctx, b)
	for range bars {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isPgUnique(err) {
				return 0, conflictError(productID, err)
			}
			return 0, fmt.Errorf("insert %s bars: %w", g, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if isPgUnique(err) {
			return 0, conflictError(productID, err)
		}
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(bars), nil
}

func (s *PostgresStore) AddExchange(ctx context.Context, e model.Exchange) (int64, error) {
	if e.ParentID != 0 {
		var parentOfParent int64
		err := s.pool.QueryRow(ctx, `SELECT parent_id FROM exchange WHERE id = $1`, e.ParentID).Scan(&parentOfParent)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("parent exchange %d: %w", e.ParentID, ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("lookup parent: %w", err)
		}
		if parentOfParent != 0 {
			return 0, fmt.Errorf("exchange %s: parent %d is itself a board", e.Symbol, e.ParentID)
		}
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO exchange (symbol, name, parent_id) VALUES ($1,$2,$3) RETURNING id`,
		e.Symbol, e.Name, e.ParentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert exchange %s: %w", e.Symbol, err)
	}
	return id, nil
}

func (s *PostgresStore) FindExchange(ctx context.Context, symbol string, parentID int64) (model.Exchange, error) {
	e := model.Exchange{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, symbol, name, parent_id FROM exchange WHERE symbol = $1 AND parent_id = $2`, symbol, parentID,
	).Scan(&e.ID, &e.Symbol, &e.Name, &e.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, fmt.Errorf("exchange %s: %w", symbol, ErrNotFound)
	}
	return e, err
}

func (s *PostgresStore) TopExchanges(ctx context.Context) ([]model.Exchange, error) {
	return s.exchanges(ctx, 0)
}

func (s *PostgresStore) Boards(ctx context.Context, parentID int64) ([]model.Exchange, error) {
	if parentID == 0 {
		return nil, nil
	}
	return s.exchanges(ctx, parentID)
}

func (s *PostgresStore) exchanges(ctx context.Context, parentID int64) ([]model.Exchange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, name, parent_id FROM exchange WHERE parent_id = $1 ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Exchange, error) {
		var e model.Exchange
		err := row.Scan(&e.ID, &e.Symbol, &e.Name, &e.ParentID)
		return e, err
	})
}

func (s *PostgresStore) AddProduct(ctx context.Context, p model.Product) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO product (symbol, name, yahoo_sfx, exchange_id, board_id) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		p.Symbol, p.Name, p.Suffix, p.ExchangeID, p.BoardID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product %s: %w", p.Symbol, err)
	}
	return id, nil
}

func (s *PostgresStore) ListBars(ctx context.Context, g model.Granularity, symbol string) ([]model.ProductBar, error) {
	if err := checkGranularity(g); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT p.symbol, o.date, o.open, o.high, o.low, o.close, o.adj_close, o.volume
		FROM `+g.Table()+` o
		JOIN product p ON p.id = o.product_id
		WHERE $1 = '' OR p.symbol = $1
		ORDER BY p.symbol, o.date`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list %s bars: %w", g, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ProductBar, error) {
		var pb model.ProductBar
		b := &pb.Bar
		err := row.Scan(&pb.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume)
		b.Date = b.Date.UTC()
		return pb, err
	})
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
