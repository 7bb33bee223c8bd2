package arbitrage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

type journalEntry struct {
	kind string
	fn   func(ctx context.Context) error
}

// journal 异步写交易日志，处理协程与决策路径不等待存储
type journal struct {
	repo       port.Repository
	ch         chan journalEntry
	priceEvery time.Duration

	mu        sync.Mutex
	lastPrice map[model.Exchange]time.Time
}

func newJournal(repo port.Repository, size int, priceEvery time.Duration) *journal {
	if size <= 0 {
		size = 1024
	}
	return &journal{
		repo:       repo,
		ch:         make(chan journalEntry, size),
		priceEvery: priceEvery,
		lastPrice:  make(map[model.Exchange]time.Time, 2),
	}
}

// price 按交易所节流写入最新价格
func (j *journal) price(s model.PriceSample) {
	if j.repo == nil {
		return
	}
	j.mu.Lock()
	last := j.lastPrice[s.Exchange]
	if !last.IsZero() && s.ObservedAt.Sub(last) < j.priceEvery {
		j.mu.Unlock()
		return
	}
	j.lastPrice[s.Exchange] = s.ObservedAt
	j.mu.Unlock()

	ts := s.SourceTs
	if ts == 0 {
		ts = s.ObservedAt.UnixMilli()
	}
	j.enqueue("price", func(ctx context.Context) error {
		return j.repo.UpsertLatestPrice(ctx, s.Exchange, s.Symbol, s.Price, ts)
	})
}

func (j *journal) signal(sig model.Signal) {
	if j.repo == nil {
		return
	}
	j.enqueue("signal", func(ctx context.Context) error {
		return j.repo.InsertSignal(ctx, sig)
	})
}

func (j *journal) position(pos model.Position) {
	if j.repo == nil {
		return
	}
	j.enqueue("position", func(ctx context.Context) error {
		return j.repo.SavePosition(ctx, pos)
	})
}

func (j *journal) enqueue(kind string, fn func(ctx context.Context) error) {
	select {
	case j.ch <- journalEntry{kind: kind, fn: fn}:
	default:
		log.Warn().Str("kind", kind).Msg("journal queue full, entry dropped")
	}
}

// run 消费写入请求；ctx 取消后把剩余条目写完再返回
func (j *journal) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.flush()
			return nil
		case e := <-j.ch:
			j.write(ctx, e)
		}
	}
}

func (j *journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		select {
		case e := <-j.ch:
			j.write(ctx, e)
		default:
			return
		}
	}
}

func (j *journal) write(ctx context.Context, e journalEntry) {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.fn(wctx); err != nil {
		log.Warn().Err(err).Str("kind", e.kind).Msg("journal write failed")
	}
}
