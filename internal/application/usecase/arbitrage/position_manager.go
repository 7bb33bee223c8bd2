package arbitrage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
	domainservice "markarb/internal/domain/service"
	"markarb/internal/infrastructure/metrics"
)

// PositionConfig 持仓生命周期参数
type PositionConfig struct {
	Symbol          string // 下单交易所格式 e.g. RARE-USDT
	Quantity        float64
	TPPercent       float64
	SLPercent       float64
	MonitorInterval time.Duration
	CloseMaxRetries int
	CloseRetryDelay time.Duration
	OrderTimeout    time.Duration
}

// PositionManager 持仓状态机 NONE -> OPEN -> CLOSING -> NONE
// reserved 覆盖开仓请求在途的窗口，保证任意时刻至多一个持仓或开仓尝试
type PositionManager struct {
	mu sync.Mutex

	cfg      PositionConfig
	client   port.TradingClient
	price    func() (float64, bool) // 下单交易所最新价格
	onChange func(model.Position)
	now      func() time.Time

	pos           model.Position
	reserved      bool
	closing       bool // 平仓请求在途
	cancelMonitor context.CancelFunc
	parent        context.Context

	// version 每次状态迁移加一；lastClosedAt 最近一次回到 NONE 的时间
	version      uint64
	lastClosedAt time.Time

	wake chan struct{}
	wg   sync.WaitGroup
}

// NewPositionManager 创建持仓管理器
// price 返回下单交易所的最新价格；onChange 在每次状态变化后调用（可为 nil）
func NewPositionManager(cfg PositionConfig, client port.TradingClient, price func() (float64, bool), onChange func(model.Position)) *PositionManager {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Second
	}
	if cfg.CloseMaxRetries <= 0 {
		cfg.CloseMaxRetries = 3
	}
	if cfg.CloseRetryDelay <= 0 {
		cfg.CloseRetryDelay = 2 * time.Second
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	if onChange == nil {
		onChange = func(model.Position) {}
	}
	return &PositionManager{
		cfg:      cfg,
		client:   client,
		price:    price,
		onChange: onChange,
		now:      time.Now,
		pos:      model.Position{Status: model.StatusNone},
		parent:   context.Background(),
		wake:     make(chan struct{}, 1),
	}
}

// Bind 设置监控协程的父 context，取消时所有监控退出
func (pm *PositionManager) Bind(ctx context.Context) {
	pm.mu.Lock()
	pm.parent = ctx
	pm.mu.Unlock()
}

// Active 持仓槽位是否被占用（含开仓在途）
func (pm *PositionManager) Active() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.reserved || pm.pos.Active()
}

// TryReserve 预占开仓槽位
func (pm *PositionManager) TryReserve() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.reserved || pm.pos.Active() {
		return false
	}
	pm.reserved = true
	return true
}

// Release 放弃预占
func (pm *PositionManager) Release() {
	pm.mu.Lock()
	pm.reserved = false
	pm.mu.Unlock()
}

// Snapshot 当前持仓快照
func (pm *PositionManager) Snapshot() model.Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.pos
}

// Version 状态版本号，对账前取值，Adopt 时校验
func (pm *PositionManager) Version() uint64 {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.version
}

// LastClosedAt 最近一次持仓结束的时间，从未结束过时为零值
func (pm *PositionManager) LastClosedAt() time.Time {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.lastClosedAt
}

// Reserved 是否有开仓请求在途
func (pm *PositionManager) Reserved() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.reserved
}

// CloseInFlight 是否有平仓请求在途
func (pm *PositionManager) CloseInFlight() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.closing
}

// Notify 下单交易所价格更新，唤醒监控协程
func (pm *PositionManager) Notify() {
	select {
	case pm.wake <- struct{}{}:
	default:
	}
}

// Dispatch 在独立协程中开仓，调用方须已 TryReserve
func (pm *PositionManager) Dispatch(ctx context.Context, sig model.Signal) {
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		if err := pm.Open(ctx, sig); err != nil {
			log.Error().Err(err).Str("side", string(sig.Side)).Float64("price", sig.TradePx).Msg("open position failed")
		}
	}()
}

// Open 市价开仓；失败时回到 NONE，不重试
func (pm *PositionManager) Open(ctx context.Context, sig model.Signal) error {
	if !pm.Reserved() {
		return ErrNotReserved
	}

	req := model.OrderRequest{
		Symbol:        pm.cfg.Symbol,
		Side:          sig.Side,
		Quantity:      pm.cfg.Quantity,
		ClientOrderID: uuid.NewString(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pm.cfg.OrderTimeout)
	start := time.Now()
	res, err := pm.client.PlaceMarketOrder(rctx, req)
	cancel()
	metrics.OrderLatency.WithLabelValues("open").Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		pm.Release()
		metrics.Orders.WithLabelValues("open", "error").Inc()
		return fmt.Errorf("open %s %s: %w", sig.Side, pm.cfg.Symbol, err)
	}
	metrics.Orders.WithLabelValues("open", "ok").Inc()

	tp, sl := domainservice.Targets(sig.Side, sig.TradePx, pm.cfg.TPPercent, pm.cfg.SLPercent)
	pos := model.Position{
		ID:              req.ClientOrderID,
		OrderID:         res.OrderID,
		Symbol:          pm.cfg.Symbol,
		Side:            sig.Side,
		Quantity:        pm.cfg.Quantity,
		EntryPrice:      sig.TradePx,
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
		Status:          model.StatusOpen,
		OpenedAt:        pm.now(),
	}

	pm.mu.Lock()
	pm.reserved = false
	pm.pos = pos
	pm.version++
	pm.startMonitorLocked(pos.ID)
	pm.mu.Unlock()

	metrics.PositionOpen.Set(1)
	log.Info().
		Str("id", pos.ID).
		Str("order_id", pos.OrderID).
		Str("side", string(pos.Side)).
		Float64("entry", pos.EntryPrice).
		Float64("tp", pos.TakeProfitPrice).
		Float64("sl", pos.StopLossPrice).
		Msg("position opened")
	pm.onChange(pos)
	return nil
}

// Adopt 接管交易所侧已存在的持仓（启动重建或外部开仓）
// since 为读取交易所持仓之前的 Version()；期间本地状态有变化则拒绝，快照可能已过期
func (pm *PositionManager) Adopt(snap model.PositionSnapshot, since uint64) bool {
	if snap.Quantity <= 0 || snap.AvgPrice <= 0 {
		return false
	}
	tp, sl := domainservice.Targets(snap.Side, snap.AvgPrice, pm.cfg.TPPercent, pm.cfg.SLPercent)

	pm.mu.Lock()
	if pm.reserved || pm.pos.Active() {
		pm.mu.Unlock()
		return false
	}
	if pm.version != since {
		pm.mu.Unlock()
		log.Debug().Uint64("since", since).Uint64("version", pm.version).Msg("stale position snapshot, adopt skipped")
		return false
	}
	pos := model.Position{
		ID:              "adopted-" + uuid.NewString(),
		OrderID:         snap.PositionID,
		Symbol:          snap.Symbol,
		Side:            snap.Side,
		Quantity:        snap.Quantity,
		EntryPrice:      snap.AvgPrice,
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
		Status:          model.StatusOpen,
		OpenedAt:        pm.now(),
	}
	pm.pos = pos
	pm.version++
	pm.startMonitorLocked(pos.ID)
	pm.mu.Unlock()

	metrics.PositionOpen.Set(1)
	log.Warn().
		Str("side", string(pos.Side)).
		Float64("qty", pos.Quantity).
		Float64("entry", pos.EntryPrice).
		Msg("adopted exchange position")
	pm.onChange(pos)
	return true
}

// Clear 外部确认持仓已不存在时清理本地状态
func (pm *PositionManager) Clear(reason string) bool {
	pm.mu.Lock()
	if !pm.pos.Active() {
		pm.mu.Unlock()
		return false
	}
	closed := pm.finishLocked(reason)
	pm.mu.Unlock()

	log.Warn().Str("id", closed.ID).Str("reason", reason).Msg("position cleared")
	pm.onChange(closed)
	return true
}

// Close 平仓；失败时按固定间隔有限重试，耗尽后保持 CLOSING 等待对账
func (pm *PositionManager) Close(ctx context.Context, reason string) error {
	pm.mu.Lock()
	if !pm.pos.Active() {
		pm.mu.Unlock()
		return ErrNoPosition
	}
	if pm.closing {
		pm.mu.Unlock()
		return ErrCloseInFlight
	}
	pm.closing = true
	pm.pos.Status = model.StatusClosing
	pm.version++
	pos := pm.pos
	pm.mu.Unlock()
	pm.onChange(pos)

	req := model.CloseRequest{
		Symbol:   pos.Symbol,
		OrderID:  pos.OrderID,
		Side:     pos.Side,
		Quantity: pos.Quantity,
	}

	var lastErr error
	for attempt := 1; attempt <= pm.cfg.CloseMaxRetries; attempt++ {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pm.cfg.OrderTimeout)
		start := time.Now()
		err := pm.client.ClosePosition(rctx, req)
		cancel()
		metrics.OrderLatency.WithLabelValues("close").Observe(float64(time.Since(start).Milliseconds()))

		if err == nil {
			metrics.Orders.WithLabelValues("close", "ok").Inc()
			pm.mu.Lock()
			pm.closing = false
			var closed model.Position
			if pm.pos.ID == pos.ID {
				closed = pm.finishLocked(reason)
			}
			pm.mu.Unlock()

			log.Info().Str("id", pos.ID).Str("reason", reason).Int("attempt", attempt).Msg("position closed")
			if closed.ID != "" {
				pm.onChange(closed)
			}
			return nil
		}

		lastErr = err
		metrics.Orders.WithLabelValues("close", "error").Inc()
		log.Warn().Err(err).Str("id", pos.ID).Int("attempt", attempt).Int("max", pm.cfg.CloseMaxRetries).Msg("close failed")

		if attempt == pm.cfg.CloseMaxRetries {
			break
		}
		timer := time.NewTimer(pm.cfg.CloseRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			attempt = pm.cfg.CloseMaxRetries
		case <-timer.C:
		}
	}

	pm.mu.Lock()
	pm.closing = false
	pm.mu.Unlock()

	log.Error().
		Err(lastErr).
		Str("id", pos.ID).
		Str("side", string(pos.Side)).
		Float64("qty", pos.Quantity).
		Msg("ALERT: close retries exhausted, position left CLOSING for reconciliation")
	return fmt.Errorf("close %s: %w", pos.ID, lastErr)
}

// Wait 等待在途开仓与监控协程退出，最多 timeout
func (pm *PositionManager) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		pm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// finishLocked 回到 NONE 并停止监控，返回结束时的持仓记录
func (pm *PositionManager) finishLocked(reason string) model.Position {
	closed := pm.pos
	closed.Status = model.StatusNone
	closed.ClosedAt = pm.now()
	closed.CloseReason = reason

	if pm.cancelMonitor != nil {
		pm.cancelMonitor()
		pm.cancelMonitor = nil
	}
	pm.pos = model.Position{Status: model.StatusNone}
	pm.version++
	pm.lastClosedAt = closed.ClosedAt
	metrics.PositionOpen.Set(0)
	return closed
}

func (pm *PositionManager) startMonitorLocked(id string) {
	if pm.cancelMonitor != nil {
		pm.cancelMonitor()
	}
	mctx, cancel := context.WithCancel(pm.parent)
	pm.cancelMonitor = cancel

	pm.wg.Add(1)
	go pm.monitor(mctx, id)
}

// monitor 价格更新唤醒 + 兜底轮询，触达 TP/SL 后平仓并退出
func (pm *PositionManager) monitor(ctx context.Context, id string) {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pm.wake:
		case <-ticker.C:
		}

		pos := pm.Snapshot()
		if pos.ID != id || pos.Status != model.StatusOpen {
			return
		}
		px, ok := pm.price()
		if !ok {
			continue
		}
		reason, hit := domainservice.ShouldClose(pos, px)
		if !hit {
			continue
		}

		log.Info().
			Str("id", pos.ID).
			Str("side", string(pos.Side)).
			Str("reason", reason).
			Float64("price", px).
			Float64("tp", pos.TakeProfitPrice).
			Float64("sl", pos.StopLossPrice).
			Msg("exit level reached")
		if err := pm.Close(ctx, reason); err != nil {
			log.Error().Err(err).Str("id", pos.ID).Msg("close position failed")
		}
		return
	}
}
