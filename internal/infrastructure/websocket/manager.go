package websocket

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/config"
	"markarb/internal/infrastructure/pricefeed"
)

// Manager 统一管理两个交易所的价格源
// 交易所包通过 init() 向 pricefeed 注册工厂，这里只按名字取用
type Manager struct {
	order []model.Exchange
	feeds map[model.Exchange]port.PriceFeed
}

// NewManager 创建价格源管理器
func NewManager() *Manager {
	return &Manager{
		feeds: make(map[model.Exchange]port.PriceFeed),
	}
}

// Initialize 为参考交易所 (A) 和下单交易所 (B) 创建价格源
// 任何一个缺失都无法计算价差，直接返回错误
func (m *Manager) Initialize(cfg *config.Config) error {
	base := pricefeed.Options{
		Coin:           cfg.App.Coin,
		Quote:          cfg.App.Quote,
		ReadTimeout:    time.Duration(cfg.WebSocket.TimeoutSec) * time.Second,
		PingInterval:   time.Duration(cfg.WebSocket.PingIntervalSec) * time.Second,
		ReconnectDelay: time.Duration(cfg.WebSocket.ReconnectDelayMs) * time.Millisecond,
		IdlePause:      time.Duration(cfg.WebSocket.IdlePauseMs) * time.Millisecond,
		QueueSoftLimit: cfg.WebSocket.QueueSoftLimit,
	}

	targets := []struct {
		name  model.Exchange
		wsURL string
	}{
		{model.ExchangeBinance, cfg.Exchange.Binance.WsURL},
		{model.ExchangeBingX, cfg.Exchange.BingX.WsURL},
	}

	for _, t := range targets {
		factory, ok := pricefeed.Get(t.name)
		if !ok {
			return fmt.Errorf("no price feed registered for %s", t.name)
		}
		opts := base
		opts.WsURL = t.wsURL
		feed := factory(opts)
		if feed == nil {
			return fmt.Errorf("build price feed for %s failed", t.name)
		}
		m.add(feed)
		log.Info().Str("exchange", string(t.name)).Str("ws_url", t.wsURL).Msg("✓ price feed initialized")
	}
	return nil
}

func (m *Manager) add(feed port.PriceFeed) {
	if _, exists := m.feeds[feed.Name()]; !exists {
		m.order = append(m.order, feed.Name())
	}
	m.feeds[feed.Name()] = feed
}

// Feeds 按初始化顺序返回全部价格源
func (m *Manager) Feeds() []port.PriceFeed {
	out := make([]port.PriceFeed, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.feeds[name])
	}
	return out
}

// Feed 获取指定交易所的价格源
func (m *Manager) Feed(ex model.Exchange) port.PriceFeed {
	return m.feeds[ex]
}

// States 返回各交易所连接状态快照
func (m *Manager) States() map[model.Exchange]port.ConnectionState {
	out := make(map[model.Exchange]port.ConnectionState, len(m.feeds))
	for name, feed := range m.feeds {
		out[name] = feed.State()
	}
	return out
}
