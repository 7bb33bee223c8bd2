package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := NewWithDB(db)
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// NewWithDB 使用已有连接，不做迁移
func NewWithDB(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_prices (
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL,
  PRIMARY KEY (exchange, symbol)
);

CREATE TABLE IF NOT EXISTS signals (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  reference_price DOUBLE PRECISION NOT NULL,
  trade_price DOUBLE PRECISION NOT NULL,
  diff_percent DOUBLE PRECISION NOT NULL,
  auto_open BOOLEAN NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts_ms);

CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  entry_price DOUBLE PRECISION NOT NULL,
  tp_price DOUBLE PRECISION NOT NULL,
  sl_price DOUBLE PRECISION NOT NULL,
  status TEXT NOT NULL,
  close_reason TEXT NOT NULL DEFAULT '',
  open_time BIGINT NOT NULL,
  close_time BIGINT,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, ex model.Exchange, symbol string, price float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices(exchange, symbol, price, ts_ms) VALUES($1, $2, $3, $4)
		ON CONFLICT (exchange, symbol) DO UPDATE SET price = EXCLUDED.price, ts_ms = EXCLUDED.ts_ms`,
		string(ex), symbol, price, ts)
	return err
}

func (r *Repo) InsertSignal(ctx context.Context, sig model.Signal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signals(id, symbol, side, reference_price, trade_price, diff_percent, auto_open, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		sig.ID, sig.Symbol, string(sig.Side), sig.ReferencePx, sig.TradePx, sig.DiffPercent, sig.AutoOpen, sig.DetectedAt.UnixMilli())
	return err
}

func (r *Repo) SavePosition(ctx context.Context, pos model.Position) error {
	var closeTime sql.NullInt64
	if !pos.ClosedAt.IsZero() {
		closeTime = sql.NullInt64{Int64: pos.ClosedAt.UnixMilli(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions(id, order_id, symbol, side, quantity, entry_price, tp_price, sl_price,
			status, close_reason, open_time, close_time, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, close_reason = EXCLUDED.close_reason,
			close_time = EXCLUDED.close_time, updated_at = EXCLUDED.updated_at`,
		pos.ID, pos.OrderID, pos.Symbol, string(pos.Side), pos.Quantity, pos.EntryPrice,
		pos.TakeProfitPrice, pos.StopLossPrice, string(pos.Status), pos.CloseReason,
		pos.OpenedAt.UnixMilli(), closeTime, time.Now().UnixMilli())
	return err
}

var _ port.Repository = (*Repo)(nil)
