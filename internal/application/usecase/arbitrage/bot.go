package arbitrage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/metrics"
)

// PriceListener 价格更新回调，在处理协程上同步调用，需快速返回
type PriceListener func(ex model.Exchange, price float64)

// BotConfig 控制面参数
type BotConfig struct {
	Engine            EngineConfig
	Position          PositionConfig
	ReconcileInterval time.Duration
	ShutdownGrace     time.Duration
	PriceJournalEvery time.Duration
	MetricsAddr       string
}

// BotDeps 外部依赖
type BotDeps struct {
	Feeds  []port.PriceFeed
	Client port.TradingClient
	Repo   port.Repository // 可为 nil
}

// Status 控制台展示用的状态快照
type Status struct {
	Prices        map[model.Exchange]model.PriceSample
	Divergence    float64
	HasDivergence bool
	Position      model.Position
	OpenPending   bool
	AutoOpen      bool
	Degraded      bool
	LastTradeAt   time.Time
	Connections   map[model.Exchange]port.ConnectionState
}

// Bot 组合价格源、引擎、持仓管理与对账
type Bot struct {
	cfg  BotConfig
	deps BotDeps

	engine     *Engine
	positions  *PositionManager
	reconciler *Reconciler
	journal    *journal

	listenersMu sync.RWMutex
	listeners   []PriceListener

	degraded atomic.Bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewBot 创建机器人
func NewBot(cfg BotConfig, deps BotDeps) *Bot {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	if cfg.PriceJournalEvery <= 0 {
		cfg.PriceJournalEvery = time.Second
	}
	cfg.Position.Symbol = cfg.Engine.Symbol

	b := &Bot{
		cfg:     cfg,
		deps:    deps,
		journal: newJournal(deps.Repo, 1024, cfg.PriceJournalEvery),
	}

	var engine *Engine
	b.positions = NewPositionManager(cfg.Position, deps.Client, func() (float64, bool) {
		return engine.TradePrice()
	}, b.journal.position)
	engine = NewEngine(cfg.Engine, b.positions, nil)
	b.engine = engine
	b.reconciler = NewReconciler(deps.Client, b.positions, cfg.Engine.Symbol, cfg.ReconcileInterval, cfg.Position.OrderTimeout)
	return b
}

// VerifyCredentials 启动时校验下单凭证；失败进入仅行情模式
func (b *Bot) VerifyCredentials(ctx context.Context) error {
	if b.deps.Client == nil {
		b.enterDegraded(errors.New("no trading client"))
		return ErrDegraded
	}
	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bal, err := b.deps.Client.GetBalance(vctx)
	if err != nil {
		b.enterDegraded(err)
		return err
	}
	b.degraded.Store(false)
	log.Info().
		Str("asset", bal.Asset).
		Float64("balance", bal.Balance).
		Float64("available", bal.AvailableMargin).
		Msg("✓ API permissions verified")
	return nil
}

func (b *Bot) enterDegraded(err error) {
	b.degraded.Store(true)
	b.engine.SetAutoOpen(false)
	log.Warn().Err(err).Msg("!!! credentials not verified: running in data-only mode, auto open disabled")
}

// Run 运行全部协程直到 ctx 取消，然后在宽限期内等待在途订单
func (b *Bot) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	b.positions.Bind(gctx)

	for _, feed := range b.deps.Feeds {
		feed := feed
		g.Go(func() error {
			log.Info().Str("feed", string(feed.Name())).Msg("feed started")
			return feed.Run(gctx, func(s model.PriceSample) { b.onSample(gctx, s) })
		})
	}

	if !b.degraded.Load() && b.deps.Client != nil {
		g.Go(func() error { return b.reconciler.Run(gctx) })
	}
	g.Go(func() error { return b.journal.run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, b.cfg.MetricsAddr) })

	err := g.Wait()
	if !b.positions.Wait(b.cfg.ShutdownGrace) {
		log.Warn().Dur("grace", b.cfg.ShutdownGrace).Msg("in-flight orders did not finish within grace period")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start 在后台运行
func (b *Bot) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.done != nil {
		return ErrAlreadyRunning
	}

	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	go func() {
		defer close(done)
		err := b.Run(rctx)
		b.runMu.Lock()
		b.runErr = err
		b.runMu.Unlock()
	}()
	log.Info().Msg("bot started")
	return nil
}

// Stop 停止运行并等待退出
func (b *Bot) Stop() error {
	b.runMu.Lock()
	cancel, done := b.cancel, b.done
	b.runMu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	<-done

	b.runMu.Lock()
	defer b.runMu.Unlock()
	b.cancel, b.done = nil, nil
	log.Info().Msg("bot stopped")
	return b.runErr
}

// Done 后台运行结束时关闭；未启动返回 nil
func (b *Bot) Done() <-chan struct{} {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.done
}

// ToggleAutoOpen 切换自动开仓，返回切换后的状态
func (b *Bot) ToggleAutoOpen() (bool, error) {
	return b.SetAutoOpen(!b.engine.AutoOpen())
}

// SetAutoOpen 设置自动开仓；仅行情模式下拒绝开启
func (b *Bot) SetAutoOpen(on bool) (bool, error) {
	if on && b.degraded.Load() {
		log.Warn().Msg("auto open refused: credentials not verified")
		return false, ErrDegraded
	}
	b.engine.SetAutoOpen(on)
	log.Info().Bool("auto_open", on).Msg("auto open switched")
	return on, nil
}

// OnPrice 注册价格回调
func (b *Bot) OnPrice(fn PriceListener) {
	if fn == nil {
		return
	}
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.listenersMu.Unlock()
}

// TestOrder 调用交易所测试下单接口
func (b *Bot) TestOrder(ctx context.Context) error {
	if b.deps.Client == nil {
		return ErrDegraded
	}
	tctx, cancel := context.WithTimeout(ctx, b.cfg.Position.OrderTimeout)
	defer cancel()
	return b.deps.Client.TestOrder(tctx, model.OrderRequest{
		Symbol:        b.cfg.Engine.Symbol,
		Side:          model.SideLong,
		Quantity:      b.cfg.Position.Quantity,
		ClientOrderID: uuid.NewString(),
	})
}

// Status 当前状态快照
func (b *Bot) Status() Status {
	st := Status{
		Prices:      make(map[model.Exchange]model.PriceSample, 2),
		Position:    b.positions.Snapshot(),
		OpenPending: b.positions.Reserved(),
		AutoOpen:    b.engine.AutoOpen(),
		Degraded:    b.degraded.Load(),
		LastTradeAt: b.engine.LastTradeAt(),
		Connections: make(map[model.Exchange]port.ConnectionState, len(b.deps.Feeds)),
	}
	for _, ex := range []model.Exchange{model.ExchangeBinance, model.ExchangeBingX} {
		if s, ok := b.engine.Latest(ex); ok {
			st.Prices[ex] = s
		}
	}
	st.Divergence, st.HasDivergence = b.engine.Divergence()
	for _, feed := range b.deps.Feeds {
		st.Connections[feed.Name()] = feed.State()
	}
	return st
}

func (b *Bot) onSample(ctx context.Context, s model.PriceSample) {
	dec := b.engine.OnSample(s)

	b.listenersMu.RLock()
	for _, fn := range b.listeners {
		fn(s.Exchange, s.Price)
	}
	b.listenersMu.RUnlock()

	b.journal.price(s)
	if dec.Emitted {
		b.journal.signal(dec.Signal)
	}
	if dec.Open {
		b.positions.Dispatch(ctx, dec.Signal)
	}
}
