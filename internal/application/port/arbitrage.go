package port

import (
	"context"

	"markarb/internal/domain/model"
)

// TradingClient 下单交易所的 REST 客户端
// 实现需并发安全：开仓、平仓、对账可能同时调用
type TradingClient interface {
	// PlaceMarketOrder 市价开仓
	PlaceMarketOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error)

	// ClosePosition 市价平掉 req 描述的持仓
	ClosePosition(ctx context.Context, req model.CloseRequest) error

	// GetPositions 查询交易所侧持仓
	GetPositions(ctx context.Context, symbol string) ([]model.PositionSnapshot, error)

	// GetBalance 查询账户余额，启动时用于校验凭证
	GetBalance(ctx context.Context) (*model.BalanceSnapshot, error)

	// TestOrder 测试下单接口，不会真实成交
	TestOrder(ctx context.Context, req model.OrderRequest) error
}
