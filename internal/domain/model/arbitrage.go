package model

import "time"

// Exchange 交易所标识
type Exchange string

const (
	ExchangeBinance Exchange = "BINANCE" // 参考价交易所 (A)
	ExchangeBingX   Exchange = "BINGX"   // 下单交易所 (B)
)

// Side 持仓方向
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OrderSide 返回开仓时的下单方向 (BUY / SELL)
func (s Side) OrderSide() string {
	if s == SideShort {
		return "SELL"
	}
	return "BUY"
}

// CloseSide 返回平仓时的下单方向，与开仓相反
func (s Side) CloseSide() string {
	if s == SideShort {
		return "BUY"
	}
	return "SELL"
}

// PositionStatus 持仓状态
type PositionStatus string

const (
	StatusNone    PositionStatus = "NONE"
	StatusOpen    PositionStatus = "OPEN"
	StatusClosing PositionStatus = "CLOSING"
)

// ========== Market Models ==========

// PriceSample 单个交易所的一次标记价格观测，创建后不可变
type PriceSample struct {
	Exchange   Exchange  `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	PriceStr   string    `json:"price_str"` // 交易所原始字符串
	SourceTs   int64     `json:"source_ts"` // 交易所事件时间 (ms)，可能为 0
	ObservedAt time.Time `json:"observed_at"`
}

// Signal 价差信号
type Signal struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	ReferencePx float64   `json:"reference_px"` // A 价格
	TradePx     float64   `json:"trade_px"`     // B 价格，同时作为入场参考价
	DiffPercent float64   `json:"diff_percent"` // (B - A) / A * 100
	AutoOpen    bool      `json:"auto_open"`    // 产生时是否启用了自动开仓
	DetectedAt  time.Time `json:"detected_at"`
}

// ========== Position Models ==========

// Position 当前唯一持仓；Status 为 NONE 时其余字段无意义
type Position struct {
	ID              string         `json:"id"`
	OrderID         string         `json:"order_id"`
	Symbol          string         `json:"symbol"`
	Side            Side           `json:"side"`
	Quantity        float64        `json:"quantity"`
	EntryPrice      float64        `json:"entry_price"`
	TakeProfitPrice float64        `json:"take_profit_price"`
	StopLossPrice   float64        `json:"stop_loss_price"`
	Status          PositionStatus `json:"status"`
	OpenedAt        time.Time      `json:"opened_at"`
	ClosedAt        time.Time      `json:"closed_at,omitempty"`
	CloseReason     string         `json:"close_reason,omitempty"`
}

// Active 是否占用持仓槽位
func (p Position) Active() bool {
	return p.Status != "" && p.Status != StatusNone
}

// ========== Exchange Models ==========

// OrderRequest 市价单请求
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      float64
	ClientOrderID string
}

// OrderResult 下单结果
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	AvgPrice      float64 // 交易所可能不返回，为 0 时使用信号价格
}

// CloseRequest 平仓请求
type CloseRequest struct {
	Symbol   string
	OrderID  string // 开仓订单 ID
	Side     Side   // 持仓方向
	Quantity float64
}

// PositionSnapshot 交易所侧的持仓快照
type PositionSnapshot struct {
	Symbol     string
	PositionID string
	Side       Side
	Quantity   float64
	AvgPrice   float64
}

// BalanceSnapshot 账户余额快照
type BalanceSnapshot struct {
	Asset            string
	Balance          float64
	AvailableMargin  float64
	UnrealizedProfit float64
}
