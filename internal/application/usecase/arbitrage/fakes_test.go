package arbitrage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

// fakeTradingClient 手写的下单客户端 mock
type fakeTradingClient struct {
	mu sync.Mutex

	openErr    error
	closeErrs  []error // 按调用顺序返回，用尽后返回 nil
	balanceErr error
	positions  []model.PositionSnapshot
	openDelay  time.Duration
	// duringGetPositions 在返回持仓快照之前执行，模拟查询期间的本地状态变化
	duringGetPositions func()

	opens  []model.OrderRequest
	closes []model.CloseRequest
	tests  int
}

func (f *fakeTradingClient) PlaceMarketOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	if f.openDelay > 0 {
		time.Sleep(f.openDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &model.OrderResult{OrderID: strconv.Itoa(len(f.opens)), ClientOrderID: req.ClientOrderID}, nil
}

func (f *fakeTradingClient) ClosePosition(ctx context.Context, req model.CloseRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, req)
	if len(f.closeErrs) > 0 {
		err := f.closeErrs[0]
		f.closeErrs = f.closeErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTradingClient) GetPositions(ctx context.Context, symbol string) ([]model.PositionSnapshot, error) {
	f.mu.Lock()
	snaps := append([]model.PositionSnapshot(nil), f.positions...)
	hook := f.duringGetPositions
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return snaps, nil
}

func (f *fakeTradingClient) GetBalance(ctx context.Context) (*model.BalanceSnapshot, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &model.BalanceSnapshot{Asset: "USDT", Balance: 1000, AvailableMargin: 1000}, nil
}

func (f *fakeTradingClient) TestOrder(ctx context.Context, req model.OrderRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests++
	return nil
}

func (f *fakeTradingClient) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeTradingClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closes)
}

func (f *fakeTradingClient) lastOpen() model.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[len(f.opens)-1]
}

func (f *fakeTradingClient) lastClose() model.CloseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes[len(f.closes)-1]
}

var errRejected = errors.New("order rejected")

// fakeFeed 按脚本回放样本，然后阻塞到 ctx 取消
type fakeFeed struct {
	name    model.Exchange
	samples []float64
	gap     time.Duration
}

func (f *fakeFeed) Name() model.Exchange { return f.name }

func (f *fakeFeed) State() port.ConnectionState {
	return port.ConnectionState{Phase: port.PhaseSubscribed}
}

func (f *fakeFeed) Run(ctx context.Context, handle func(model.PriceSample)) error {
	for _, px := range f.samples {
		if f.gap > 0 {
			time.Sleep(f.gap)
		}
		handle(sample(f.name, px))
	}
	<-ctx.Done()
	return nil
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func sample(ex model.Exchange, px float64) model.PriceSample {
	return model.PriceSample{
		Exchange:   ex,
		Price:      px,
		PriceStr:   strconv.FormatFloat(px, 'f', -1, 64),
		ObservedAt: time.Now(),
	}
}

func testPositionConfig() PositionConfig {
	return PositionConfig{
		Symbol:          "RARE-USDT",
		Quantity:        400,
		TPPercent:       2,
		SLPercent:       1,
		MonitorInterval: 10 * time.Millisecond,
		CloseMaxRetries: 3,
		CloseRetryDelay: 10 * time.Millisecond,
		OrderTimeout:    time.Second,
	}
}

// waitFor 轮询直到条件成立或超时
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for: %s", msg)
}
