package pricefeed

import (
	"time"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"

	"github.com/rs/zerolog/log"
)

// Options 构建价格源所需的参数
type Options struct {
	WsURL          string
	Coin           string // e.g. RARE
	Quote          string // e.g. USDT
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	IdlePause      time.Duration
	QueueSoftLimit int
}

// factory函数类型
type Factory func(opts Options) port.PriceFeed

// registry maps exchange names to their respective price feed factories
var registry = make(map[model.Exchange]Factory)

// Register 注册一个price feed factory for an exchange
// 这是由各个交易所包的init()函数调用来自注册的
func Register(exchange model.Exchange, factory Factory) {
	if factory == nil {
		log.Warn().Str("exchange", string(exchange)).Msg("invalid price feed factory")
		return
	}
	if _, exists := registry[exchange]; exists {
		log.Warn().Str("exchange", string(exchange)).Msg("price feed factory already registered, overwriting")
	}
	registry[exchange] = factory
	log.Debug().Str("exchange", string(exchange)).Msg("price feed factory registered")
}

// Get 获取已注册的price feed factory for给定的exchange名称
func Get(exchange model.Exchange) (Factory, bool) {
	factory, ok := registry[exchange]
	return factory, ok
}
