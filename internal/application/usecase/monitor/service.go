package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/application/usecase/arbitrage"
	"markarb/internal/domain/model"
)

// StatusSource 看板的数据来源
type StatusSource interface {
	OnPrice(fn arbitrage.PriceListener)
	Status() arbitrage.Status
}

type ServiceDeps struct {
	Source     StatusSource
	Coin       string
	Threshold  float64
	PrintEvery time.Duration
	Sink       port.Sink
}

type priceUpdate struct {
	ex    model.Exchange
	price float64
}

// Service 终端看板：价格变化时最多每 PrintEvery 刷新一次实时行，持仓状态变化写事件行
type Service struct {
	deps    ServiceDeps
	st      *State
	fmt     *Formatter
	updates chan priceUpdate
}

func NewService(deps ServiceDeps) *Service {
	if deps.PrintEvery <= 0 {
		deps.PrintEvery = time.Second
	}
	return &Service{
		deps:    deps,
		st:      NewState(model.ExchangeBinance, model.ExchangeBingX),
		fmt:     NewFormatter(deps.Coin, deps.Threshold),
		updates: make(chan priceUpdate, 256),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Source == nil || s.deps.Sink == nil {
		return errors.New("monitor: source and sink required")
	}

	// 回调运行在价格处理协程上，只做非阻塞投递
	s.deps.Source.OnPrice(func(ex model.Exchange, price float64) {
		select {
		case s.updates <- priceUpdate{ex: ex, price: price}:
		default:
		}
	})

	ticker := time.NewTicker(s.deps.PrintEvery)
	defer ticker.Stop()

	var (
		dirty      bool
		lastStatus = s.deps.Source.Status()
	)
	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.st, lastStatus, RenderLive))

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return nil

		case u := <-s.updates:
			if s.st.Apply(u.ex, u.price) {
				dirty = true
			}

		case now := <-ticker.C:
			status := s.deps.Source.Status()
			if positionChanged(lastStatus.Position, status.Position) {
				line := s.fmt.Render(s.st, status, RenderSnapshot)
				if err := s.deps.Sink.WriteEvent(now, line); err != nil {
					log.Debug().Err(err).Msg("monitor event write failed")
				}
				dirty = true
			}
			if lastStatus.AutoOpen != status.AutoOpen {
				dirty = true
			}
			lastStatus = status
			if dirty {
				_ = s.deps.Sink.WriteLive(s.fmt.Render(s.st, status, RenderLive))
				dirty = false
			}
		}
	}
}

func positionChanged(prev, cur model.Position) bool {
	return prev.ID != cur.ID || prev.Status != cur.Status
}
