package port

import (
	"context"
	"time"

	"markarb/internal/domain/model"
)

// ConnPhase 连接阶段
type ConnPhase int32

const (
	PhaseDisconnected ConnPhase = iota
	PhaseConnecting
	PhaseSubscribed
)

func (p ConnPhase) String() string {
	switch p {
	case PhaseConnecting:
		return "CONNECTING"
	case PhaseSubscribed:
		return "SUBSCRIBED"
	default:
		return "DISCONNECTED"
	}
}

// ConnectionState 单个交易所的连接状态
type ConnectionState struct {
	Phase          ConnPhase
	LastLivenessAt time.Time
	Reconnects     int64
}

// PriceFeed 单交易所的标记价格源
// Run 阻塞直到 ctx 取消；每个解码成功的样本按接收顺序回调 handle
type PriceFeed interface {
	Name() model.Exchange
	Run(ctx context.Context, handle func(model.PriceSample)) error
	State() ConnectionState
}
