package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS prices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(exchange, symbol)
);
CREATE INDEX IF NOT EXISTS idx_prices_ts ON prices(ts_ms);

CREATE TABLE IF NOT EXISTS signals (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  reference_price REAL NOT NULL,
  trade_price REAL NOT NULL,
  diff_percent REAL NOT NULL,
  auto_open INTEGER NOT NULL,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts_ms);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);

CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity REAL NOT NULL,
  entry_price REAL NOT NULL,
  tp_price REAL NOT NULL,
  sl_price REAL NOT NULL,
  status TEXT NOT NULL,
  close_reason TEXT NOT NULL DEFAULT '',
  open_time INTEGER NOT NULL,
  close_time INTEGER,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, ex model.Exchange, symbol string, price float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(exchange, symbol, price, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(exchange, symbol) DO UPDATE SET
		price=excluded.price, ts_ms=excluded.ts_ms
	`, string(ex), symbol, price, ts, time.Now().UnixMilli())
	return err
}

// GetLatestPrice 读取某交易所最新价格
func (r *Repo) GetLatestPrice(ctx context.Context, ex model.Exchange, symbol string) (price float64, ts int64, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT price, ts_ms FROM prices WHERE exchange=? AND symbol=?`, string(ex), symbol).
		Scan(&price, &ts)
	return
}

func (r *Repo) InsertSignal(ctx context.Context, sig model.Signal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signals(id, symbol, side, reference_price, trade_price, diff_percent, auto_open, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sig.ID, sig.Symbol, string(sig.Side), sig.ReferencePx, sig.TradePx, sig.DiffPercent, sig.AutoOpen, sig.DetectedAt.UnixMilli())
	return err
}

// CountSignals 某交易对的信号数
func (r *Repo) CountSignals(ctx context.Context, symbol string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals WHERE symbol=?`, symbol).Scan(&n)
	return n, err
}

// SavePosition 按持仓 ID upsert，每次状态变化覆盖一次
func (r *Repo) SavePosition(ctx context.Context, pos model.Position) error {
	var closeTime sql.NullInt64
	if !pos.ClosedAt.IsZero() {
		closeTime = sql.NullInt64{Int64: pos.ClosedAt.UnixMilli(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions(id, order_id, symbol, side, quantity, entry_price, tp_price, sl_price,
			status, close_reason, open_time, close_time, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		status=excluded.status, close_reason=excluded.close_reason,
		close_time=excluded.close_time, updated_at=excluded.updated_at
	`, pos.ID, pos.OrderID, pos.Symbol, string(pos.Side), pos.Quantity, pos.EntryPrice,
		pos.TakeProfitPrice, pos.StopLossPrice, string(pos.Status), pos.CloseReason,
		pos.OpenedAt.UnixMilli(), closeTime, time.Now().UnixMilli())
	return err
}

// GetPosition 按 ID 读取持仓记录
func (r *Repo) GetPosition(ctx context.Context, id string) (model.Position, error) {
	var (
		pos       model.Position
		side      string
		status    string
		openTime  int64
		closeTime sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, symbol, side, quantity, entry_price, tp_price, sl_price,
			status, close_reason, open_time, close_time
		FROM positions WHERE id=?`, id).
		Scan(&pos.ID, &pos.OrderID, &pos.Symbol, &side, &pos.Quantity, &pos.EntryPrice,
			&pos.TakeProfitPrice, &pos.StopLossPrice, &status, &pos.CloseReason, &openTime, &closeTime)
	if err != nil {
		return model.Position{}, err
	}
	pos.Side = model.Side(side)
	pos.Status = model.PositionStatus(status)
	pos.OpenedAt = time.UnixMilli(openTime)
	if closeTime.Valid {
		pos.ClosedAt = time.UnixMilli(closeTime.Int64)
	}
	return pos, nil
}

var _ port.Repository = (*Repo)(nil)
