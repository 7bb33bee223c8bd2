package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/exchange"
	"markarb/internal/infrastructure/pricefeed"
	"markarb/internal/infrastructure/websocket"
)

// NewMarkPriceFeed 创建 Binance 永续标记价格源 (<symbol>@markPrice@1s)
func NewMarkPriceFeed(opts pricefeed.Options) (*websocket.Feed, error) {
	symbol := exchange.NewCommonSymbolConverter(opts.Quote).Coin2Symbol(opts.Coin)
	wsURL, err := buildStreamURL(opts.WsURL, symbol)
	if err != nil {
		return nil, err
	}

	return websocket.NewFeed(websocket.FeedConfig{
		Conn: websocket.ConnConfig{
			Name:           model.ExchangeBinance,
			URL:            wsURL,
			ReadTimeout:    opts.ReadTimeout,
			PingInterval:   opts.PingInterval,
			ReconnectDelay: opts.ReconnectDelay,
		},
		Decode:    DecodeMarkPrice,
		IdlePause: opts.IdlePause,
		SoftLimit: opts.QueueSoftLimit,
	}), nil
}

func buildStreamURL(base, symbol string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("binance ws_url empty")
	}
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", errors.New("symbol empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = fmt.Sprintf("/ws/%s@markPrice@1s", symbol)
	return u.String(), nil
}

type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type markPriceMsg struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

// DecodeMarkPrice 解析 markPriceUpdate，兼容 /stream 组合流外层包装
func DecodeMarkPrice(f websocket.RawFrame) (model.PriceSample, error) {
	body := f.Data
	var env combinedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.PriceSample{}, fmt.Errorf("binance json: %w", err)
	}
	if env.Stream != "" && len(env.Data) > 0 {
		body = env.Data
	}

	var msg markPriceMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return model.PriceSample{}, fmt.Errorf("binance json: %w", err)
	}
	if msg.Event != "" && msg.Event != "markPriceUpdate" {
		return model.PriceSample{}, websocket.ErrSkip
	}
	if strings.TrimSpace(msg.Price) == "" {
		// 订阅回执 {"result":null,"id":1} 等
		return model.PriceSample{}, websocket.ErrSkip
	}

	px, err := exchange.ParsePrice(msg.Price)
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("binance %s: %w", msg.Symbol, err)
	}

	observed := f.ReceivedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return model.PriceSample{
		Exchange:   model.ExchangeBinance,
		Symbol:     strings.ToUpper(msg.Symbol),
		Price:      px,
		PriceStr:   strings.TrimSpace(msg.Price),
		SourceTs:   msg.EventTime,
		ObservedAt: observed,
	}, nil
}
