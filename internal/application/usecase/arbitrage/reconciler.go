package arbitrage

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

// Reconciler 周期性对照交易所持仓与本地状态
type Reconciler struct {
	client    port.TradingClient
	positions *PositionManager
	symbol    string
	interval  time.Duration
	grace     time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// NewReconciler 创建对账器；本地 OPEN 但交易所无持仓时，超过 2 个周期才清理
func NewReconciler(client port.TradingClient, positions *PositionManager, symbol string, interval, timeout time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{
		client:    client,
		positions: positions,
		symbol:    symbol,
		interval:  interval,
		grace:     2 * interval,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Run 立即对账一次，之后按周期执行，直到 ctx 取消
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile 执行一次对账
func (r *Reconciler) Reconcile(ctx context.Context) {
	// 先取版本号再查交易所，查询期间的本地变化会让 Adopt 拒绝过期快照
	version := r.positions.Version()
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	snaps, err := r.client.GetPositions(rctx, r.symbol)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("symbol", r.symbol).Msg("position check failed")
		}
		return
	}

	var remote *model.PositionSnapshot
	for i := range snaps {
		if snaps[i].Symbol == "" || strings.EqualFold(snaps[i].Symbol, r.symbol) {
			remote = &snaps[i]
			break
		}
	}

	local := r.positions.Snapshot()
	switch {
	case !local.Active():
		if remote == nil || r.positions.Reserved() {
			return
		}
		// 刚平仓后交易所持仓列表可能短暂滞后，一个周期内不接管
		if closed := r.positions.LastClosedAt(); !closed.IsZero() && r.now().Sub(closed) < r.interval {
			log.Debug().Time("closed_at", closed).Msg("recently closed, adopt deferred")
			return
		}
		r.positions.Adopt(*remote, version)

	case local.Status == model.StatusOpen:
		if remote == nil && r.now().Sub(local.OpenedAt) > r.grace {
			r.positions.Clear("closed externally")
		}

	case local.Status == model.StatusClosing:
		if r.positions.CloseInFlight() {
			return
		}
		if remote == nil {
			r.positions.Clear("close confirmed by exchange")
			return
		}
		log.Warn().Str("id", local.ID).Msg("position still CLOSING on exchange, retrying close")
		if err := r.positions.Close(ctx, "reconcile retry"); err != nil {
			log.Error().Err(err).Str("id", local.ID).Msg("reconcile close failed")
		}
	}
}
