package arbitrage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

// fakeRepo 记录写入的仓储 mock
type fakeRepo struct {
	mu        sync.Mutex
	prices    int
	signals   []model.Signal
	positions []model.Position
}

func (r *fakeRepo) UpsertLatestPrice(ctx context.Context, ex model.Exchange, symbol string, price float64, ts int64) error {
	r.mu.Lock()
	r.prices++
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) InsertSignal(ctx context.Context, sig model.Signal) error {
	r.mu.Lock()
	r.signals = append(r.signals, sig)
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) SavePosition(ctx context.Context, pos model.Position) error {
	r.mu.Lock()
	r.positions = append(r.positions, pos)
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) signalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

func testBotConfig() BotConfig {
	return BotConfig{
		Engine: EngineConfig{
			Symbol:    "RARE-USDT",
			Threshold: 5,
			Cooldown:  5 * time.Second,
		},
		Position:          testPositionConfig(),
		ReconcileInterval: time.Hour,
		ShutdownGrace:     time.Second,
		PriceJournalEvery: time.Millisecond,
	}
}

// 端到端: 两路价格源 -> 信号 -> 恰好一次开仓
func TestBotOpensOnceOnDivergence(t *testing.T) {
	client := &fakeTradingClient{}
	repo := &fakeRepo{}
	bot := NewBot(testBotConfig(), BotDeps{
		Feeds: []port.PriceFeed{
			&fakeFeed{name: model.ExchangeBinance, samples: []float64{100}},
			&fakeFeed{name: model.ExchangeBingX, samples: []float64{106, 106.5, 107}, gap: 10 * time.Millisecond},
		},
		Client: client,
		Repo:   repo,
	})

	if err := bot.VerifyCredentials(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := bot.SetAutoOpen(true); err != nil {
		t.Fatalf("auto open: %v", err)
	}

	var mu sync.Mutex
	seen := map[model.Exchange]int{}
	bot.OnPrice(func(ex model.Exchange, _ float64) {
		mu.Lock()
		seen[ex]++
		mu.Unlock()
	})

	if err := bot.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := bot.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second start err = %v, want ErrAlreadyRunning", err)
	}

	waitFor(t, 2*time.Second, func() bool { return bot.Status().Position.Status == model.StatusOpen }, "position opened")
	time.Sleep(50 * time.Millisecond)

	if n := client.openCount(); n != 1 {
		t.Errorf("orders placed = %d, want 1", n)
	}
	if req := client.lastOpen(); req.Side != model.SideShort {
		t.Errorf("side = %s, want SHORT", req.Side)
	}

	st := bot.Status()
	if !st.HasDivergence || !st.AutoOpen || st.Degraded {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Prices[model.ExchangeBinance].Price != 100 {
		t.Errorf("binance price = %v", st.Prices[model.ExchangeBinance].Price)
	}

	if err := bot.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if repo.signalCount() != 1 {
		t.Errorf("signals journaled = %d, want 1", repo.signalCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if seen[model.ExchangeBinance] != 1 || seen[model.ExchangeBingX] != 3 {
		t.Errorf("listener calls = %v", seen)
	}
}

// 凭证校验失败: 仅行情模式，拒绝开启自动开仓
func TestBotDegradedMode(t *testing.T) {
	client := &fakeTradingClient{balanceErr: errors.New("invalid api key")}
	cfg := testBotConfig()
	cfg.Engine.AutoOpen = true
	bot := NewBot(cfg, BotDeps{Client: client})

	if err := bot.VerifyCredentials(context.Background()); err == nil {
		t.Fatal("expected verify error")
	}
	st := bot.Status()
	if !st.Degraded || st.AutoOpen {
		t.Fatalf("status = %+v, want degraded with auto open off", st)
	}
	if _, err := bot.ToggleAutoOpen(); !errors.Is(err, ErrDegraded) {
		t.Errorf("toggle err = %v, want ErrDegraded", err)
	}
	if on, err := bot.SetAutoOpen(false); err != nil || on {
		t.Errorf("disable: on=%v err=%v", on, err)
	}
}

func TestBotStopWithoutStart(t *testing.T) {
	bot := NewBot(testBotConfig(), BotDeps{Client: &fakeTradingClient{}})
	if err := bot.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
	if bot.Done() != nil {
		t.Error("done channel without start")
	}
}

func TestBotTestOrder(t *testing.T) {
	client := &fakeTradingClient{}
	bot := NewBot(testBotConfig(), BotDeps{Client: client})
	if err := bot.TestOrder(context.Background()); err != nil {
		t.Fatalf("test order: %v", err)
	}
	if client.tests != 1 {
		t.Errorf("test orders = %d, want 1", client.tests)
	}
}

func TestJournalThrottlesPrices(t *testing.T) {
	repo := &fakeRepo{}
	j := newJournal(repo, 16, time.Second)

	base := time.Now()
	for i := 0; i < 5; i++ {
		s := sample(model.ExchangeBinance, 100)
		s.ObservedAt = base.Add(time.Duration(i) * 100 * time.Millisecond)
		j.price(s)
	}
	s := sample(model.ExchangeBinance, 101)
	s.ObservedAt = base.Add(2 * time.Second)
	j.price(s)
	j.signal(model.Signal{ID: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.prices != 2 {
		t.Errorf("price writes = %d, want 2", repo.prices)
	}
	if len(repo.signals) != 1 {
		t.Errorf("signal writes = %d, want 1", len(repo.signals))
	}
}
