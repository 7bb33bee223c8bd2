package arbitrage

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"markarb/internal/domain/model"
	domainservice "markarb/internal/domain/service"
	"markarb/internal/infrastructure/metrics"
)

// EngineConfig 价差决策参数
type EngineConfig struct {
	Symbol    string // 下单交易所交易对
	Threshold float64
	Cooldown  time.Duration
	AutoOpen  bool
}

// Decision 单个样本的处理结果
type Decision struct {
	Signal  model.Signal
	Emitted bool // 产生了信号（冷却已记录）
	Open    bool // 已预占槽位，调用方需要 Dispatch 开仓
}

// Engine 价差引擎：两条处理协程共用一把锁串行决策，锁内不做 I/O
type Engine struct {
	mu sync.Mutex

	cfg       EngineConfig
	positions *PositionManager
	cooldown  *domainservice.Cooldown
	now       func() time.Time

	prices   map[model.Exchange]model.PriceSample
	autoOpen bool
	lastDiff float64
	hasDiff  bool
}

// NewEngine 创建价差引擎；now 为 nil 时使用 time.Now
func NewEngine(cfg EngineConfig, positions *PositionManager, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		positions: positions,
		cooldown:  domainservice.NewCooldown(cfg.Cooldown, now),
		now:       now,
		prices:    make(map[model.Exchange]model.PriceSample, 2),
		autoOpen:  cfg.AutoOpen,
	}
}

// OnSample 处理一个价格样本
// 顺序: 记录最新价 -> 持仓占用 -> 冷却 -> 双边价格 -> 阈值与方向
func (e *Engine) OnSample(s model.PriceSample) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 接收顺序为准，旧的交易所时间戳同样覆盖
	e.prices[s.Exchange] = s
	if s.Exchange == model.ExchangeBingX {
		e.positions.Notify()
	}

	a, okA := e.prices[model.ExchangeBinance]
	b, okB := e.prices[model.ExchangeBingX]
	if okA && okB {
		e.lastDiff = domainservice.Divergence(a.Price, b.Price)
		e.hasDiff = true
		metrics.Divergence.Set(e.lastDiff)
	}

	if e.positions.Active() {
		return Decision{}
	}
	if ok, _ := e.cooldown.Ready(); !ok {
		return Decision{}
	}
	if !okA || !okB {
		return Decision{}
	}

	side, ok := domainservice.Direction(a.Price, b.Price, e.lastDiff, e.cfg.Threshold)
	if !ok {
		return Decision{}
	}

	detectedAt := e.cooldown.Mark()
	sig := model.Signal{
		ID:          uuid.NewString(),
		Symbol:      e.cfg.Symbol,
		Side:        side,
		ReferencePx: a.Price,
		TradePx:     b.Price,
		DiffPercent: e.lastDiff,
		AutoOpen:    e.autoOpen,
		DetectedAt:  detectedAt,
	}
	metrics.Signals.WithLabelValues(string(side), strconv.FormatBool(e.autoOpen)).Inc()

	log.Info().
		Str("side", string(side)).
		Float64("binance", a.Price).
		Float64("bingx", b.Price).
		Float64("diff_pct", e.lastDiff).
		Msg("divergence signal")

	if !e.autoOpen {
		log.Info().Str("side", string(side)).Msg("auto open disabled, signal not traded")
		return Decision{Signal: sig, Emitted: true}
	}
	if !e.positions.TryReserve() {
		return Decision{Signal: sig, Emitted: true}
	}
	return Decision{Signal: sig, Emitted: true, Open: true}
}

// Latest 某交易所最新价格
func (e *Engine) Latest(ex model.Exchange) (model.PriceSample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.prices[ex]
	return s, ok
}

// TradePrice 下单交易所最新价格，供持仓监控使用
func (e *Engine) TradePrice() (float64, bool) {
	s, ok := e.Latest(model.ExchangeBingX)
	if !ok {
		return 0, false
	}
	return s.Price, true
}

// Divergence 最近一次价差
func (e *Engine) Divergence() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDiff, e.hasDiff
}

// SetAutoOpen 设置自动开仓开关
func (e *Engine) SetAutoOpen(on bool) {
	e.mu.Lock()
	e.autoOpen = on
	e.mu.Unlock()
}

// AutoOpen 自动开仓是否启用
func (e *Engine) AutoOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoOpen
}

// LastTradeAt 最近一次交易决策时间
func (e *Engine) LastTradeAt() time.Time {
	return e.cooldown.LastTradeAt()
}
