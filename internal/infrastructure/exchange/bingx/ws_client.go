package bingx

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/exchange"
	"markarb/internal/infrastructure/pricefeed"
	"markarb/internal/infrastructure/websocket"
)

var (
	pingText = []byte("Ping")
	pongText = []byte("Pong")
)

// 心跳帧压缩后远小于价格帧，超过该长度不尝试解压探测
const maxProbeFrame = 64

// NewMarkPriceFeed 创建 BingX 永续标记价格源 (<SYMBOL>@markPrice)
func NewMarkPriceFeed(opts pricefeed.Options) (*websocket.Feed, error) {
	wsURL := strings.TrimSpace(opts.WsURL)
	if wsURL == "" {
		return nil, errors.New("bingx ws_url empty")
	}
	symbol := exchange.NewDashSymbolConverter(opts.Quote).Coin2Symbol(opts.Coin)
	if symbol == "" {
		return nil, errors.New("symbol empty")
	}

	return websocket.NewFeed(websocket.FeedConfig{
		Conn: websocket.ConnConfig{
			Name:           model.ExchangeBingX,
			URL:            wsURL,
			Subscribe:      func() ([]byte, error) { return subscribePayload(symbol) },
			Probe:          Probe,
			ReadTimeout:    opts.ReadTimeout,
			PingInterval:   opts.PingInterval,
			ReconnectDelay: opts.ReconnectDelay,
		},
		Decode:    DecodeMarkPrice,
		IdlePause: opts.IdlePause,
		SoftLimit: opts.QueueSoftLimit,
	}), nil
}

type subReq struct {
	ID       string `json:"id"`
	ReqType  string `json:"reqType"`
	DataType string `json:"dataType"`
}

func subscribePayload(symbol string) ([]byte, error) {
	return json.Marshal(subReq{
		ID:       uuid.NewString(),
		ReqType:  "sub",
		DataType: symbol + "@markPrice",
	})
}

// Probe 识别 BingX 的 "Ping" 心跳（明文或 gzip），应答 "Pong"
func Probe(_ int, data []byte) ([]byte, bool) {
	if bytes.Equal(bytes.TrimSpace(data), pingText) {
		return pongText, true
	}
	if len(data) <= maxProbeFrame && isGzip(data) {
		plain, err := gunzip(data)
		if err == nil && bytes.Equal(bytes.TrimSpace(plain), pingText) {
			return pongText, true
		}
	}
	return nil, false
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

type wsEnvelope struct {
	Code     int             `json:"code"`
	Msg      string          `json:"msg"`
	DataType string          `json:"dataType"`
	Data     json.RawMessage `json:"data"`
}

type markPriceMsg struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

// DecodeMarkPrice 解压并解析 BingX 标记价格帧
// 无 data 的帧（订阅回执）返回 ErrSkip；data 缺少 p 视为解码失败
func DecodeMarkPrice(f websocket.RawFrame) (model.PriceSample, error) {
	body := f.Data
	if isGzip(body) {
		plain, err := gunzip(body)
		if err != nil {
			return model.PriceSample{}, fmt.Errorf("bingx gzip: %w", err)
		}
		body = plain
	}

	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, pingText) || bytes.Equal(trimmed, pongText) {
		return model.PriceSample{}, websocket.ErrSkip
	}

	var env wsEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return model.PriceSample{}, fmt.Errorf("bingx json: %w", err)
	}
	if env.Code != 0 {
		return model.PriceSample{}, fmt.Errorf("bingx stream code=%d msg=%s", env.Code, env.Msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return model.PriceSample{}, websocket.ErrSkip
	}

	var msg markPriceMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return model.PriceSample{}, fmt.Errorf("bingx data: %w", err)
	}
	if strings.TrimSpace(msg.Price) == "" {
		return model.PriceSample{}, fmt.Errorf("bingx %s: data without price", env.DataType)
	}
	px, err := exchange.ParsePrice(msg.Price)
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("bingx %s: %w", env.DataType, err)
	}

	symbol := strings.ToUpper(msg.Symbol)
	if symbol == "" {
		symbol, _, _ = strings.Cut(env.DataType, "@")
	}
	observed := f.ReceivedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return model.PriceSample{
		Exchange:   model.ExchangeBingX,
		Symbol:     symbol,
		Price:      px,
		PriceStr:   strings.TrimSpace(msg.Price),
		SourceTs:   msg.EventTime,
		ObservedAt: observed,
	}, nil
}
