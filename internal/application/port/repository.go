package port

import (
	"context"

	"markarb/internal/domain/model"
)

// Repository 交易日志仓储
// 记录最新价格、信号与持仓状态变化；核心逻辑不依赖它的读取
type Repository interface {
	// Price operations
	UpsertLatestPrice(ctx context.Context, ex model.Exchange, symbol string, price float64, ts int64) error

	// Signal operations
	InsertSignal(ctx context.Context, sig model.Signal) error

	// Position operations
	SavePosition(ctx context.Context, pos model.Position) error

	// Connection management
	Close() error
}
