package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/application/usecase/arbitrage"
	"markarb/internal/application/usecase/monitor"
	domainservice "markarb/internal/domain/service"
	"markarb/internal/infrastructure/config"
	"markarb/internal/infrastructure/exchange"
	_ "markarb/internal/infrastructure/exchange/binance" // 注册 Binance 价格源
	"markarb/internal/infrastructure/exchange/bingx"
	"markarb/internal/infrastructure/storage/composite"
	pgrepo "markarb/internal/infrastructure/storage/postgres"
	redisrepo "markarb/internal/infrastructure/storage/redis"
	sqliterepo "markarb/internal/infrastructure/storage/sqlite"
	"markarb/internal/infrastructure/websocket"
	"markarb/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	wsManager   *websocket.Manager
	tradeClient *bingx.TradeClient
	redisRepo   *redisrepo.Repo
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo
	journal     *composite.Repo

	// 输出端口
	Sink port.Sink

	// 应用业务组件（依赖基础设施）
	Bot *arbitrage.Bot

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	// 初始化所有组件，按依赖顺序
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 初始化所有应用组件
// 按照依赖关系有序初始化，确保不会有循环依赖
func (sc *ServiceContext) initializeComponents() error {
	// 0. 存储层
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}

	// 1. 价格源
	sc.wsManager = websocket.NewManager()
	if err := sc.wsManager.Initialize(sc.Config); err != nil {
		return fmt.Errorf("failed to initialize websocket manager: %w", err)
	}
	feeds := sc.wsManager.Feeds()
	if len(feeds) < 2 {
		return ErrNoFeedsEnabled
	}

	// 2. 下单客户端
	bx := sc.Config.Exchange.BingX
	sc.tradeClient = bingx.NewTradeClient(bingx.NewAPIClient(bx.APIKey, bx.SecretKey, bx.RestURL, sc.Config.OrderTimeout()))
	if !sc.Config.HasCredentials() {
		log.Warn().Msg("bingx api credentials missing")
	}

	// 3. 机器人
	var repo port.Repository
	if sc.journal.Len() > 0 {
		repo = sc.journal
	}
	sc.Bot = arbitrage.NewBot(sc.botConfig(), arbitrage.BotDeps{
		Feeds:  feeds,
		Client: sc.tradeClient,
		Repo:   repo,
	})

	log.Info().
		Int("feeds", len(feeds)).
		Int("journals", sc.journal.Len()).
		Msg("✓ All components initialized")
	return nil
}

func (sc *ServiceContext) botConfig() arbitrage.BotConfig {
	cfg := sc.Config
	symbol := exchange.NewDashSymbolConverter(cfg.App.Quote).Coin2Symbol(cfg.App.Coin)
	qty := domainservice.RoundQuantity(cfg.Position.Size, cfg.Position.QuantityStep)
	if qty != cfg.Position.Size {
		log.Warn().Float64("size", cfg.Position.Size).Float64("rounded", qty).Msg("position size rounded to quantity step")
	}

	return arbitrage.BotConfig{
		Engine: arbitrage.EngineConfig{
			Symbol:    symbol,
			Threshold: cfg.Arbitrage.PriceDiffThreshold,
			Cooldown:  cfg.TradeCooldown(),
			AutoOpen:  cfg.Arbitrage.AutoOpen,
		},
		Position: arbitrage.PositionConfig{
			Quantity:        qty,
			TPPercent:       cfg.Position.TPPercent,
			SLPercent:       cfg.Position.SLPercent,
			MonitorInterval: cfg.MonitorInterval(),
			CloseMaxRetries: cfg.Position.CloseMaxRetries,
			CloseRetryDelay: cfg.CloseRetryDelay(),
			OrderTimeout:    cfg.OrderTimeout(),
		},
		ReconcileInterval: cfg.ReconcileInterval(),
		ShutdownGrace:     cfg.ShutdownGrace(),
		PriceJournalEvery: time.Second,
		MetricsAddr:       cfg.Metrics.Listen,
	}
}

// initializeStorage 初始化存储层 (Redis / SQLite / Postgres)，汇总为一个日志仓储
func (sc *ServiceContext) initializeStorage() error {
	// Redis 初始化
	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}

	// SQLite 初始化
	if sc.Config.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
	}

	// Postgres 初始化
	if sc.Config.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
	}

	// 接口里的 nil 指针不等于 nil，只传入已初始化的仓储
	var repos []port.Repository
	if sc.redisRepo != nil {
		repos = append(repos, sc.redisRepo)
	}
	if sc.sqliteRepo != nil {
		repos = append(repos, sc.sqliteRepo)
	}
	if sc.pgRepo != nil {
		repos = append(repos, sc.pgRepo)
	}
	sc.journal = composite.New(repos...)
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(sc.Config.Redis.TTLSeconds) * time.Second
	repo := redisrepo.New(
		rdb,
		sc.Config.Redis.Prefix,
		ttl,
		sc.Config.Redis.SignalStream,
		sc.Config.Redis.SignalChannel,
	)
	sc.redisRepo = repo

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return repo.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("✓ Redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.sqliteRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.SQLite.Path).
		Msg("✓ SQLite initialized")
	return nil
}

// initPostgres 初始化 Postgres
func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.pgRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// BuildMonitorServiceDeps 构建终端看板所需的依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Source:     sc.Bot,
		Coin:       sc.Config.App.Coin,
		Threshold:  sc.Config.Arbitrage.PriceDiffThreshold,
		PrintEvery: time.Duration(sc.Config.App.PrintEverySec) * time.Second,
		Sink:       sc.Sink,
	}
}

// GetWebSocketManager 获取价格源管理器
func (sc *ServiceContext) GetWebSocketManager() *websocket.Manager {
	return sc.wsManager
}

// Close 逆序释放资源
func (sc *ServiceContext) Close() error {
	var errs []error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			errs = append(errs, err)
		}
	}
	sc.closerChain = nil
	return errors.Join(errs...)
}
