package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/metrics"
)

// ErrSkip 解码器返回：合法帧但不是价格更新（订阅回执等），静默忽略
var ErrSkip = errors.New("not a price update")

// Decoder 交易所帧解码器
type Decoder func(f RawFrame) (model.PriceSample, error)

// FeedConfig 价格源配置
type FeedConfig struct {
	Conn      ConnConfig
	Decode    Decoder
	IdlePause time.Duration
	SoftLimit int
}

// Feed 单交易所价格管线：连接协程写队列，处理协程解码并回调
type Feed struct {
	name      model.Exchange
	conn      *Conn
	queue     *Queue
	decode    Decoder
	idlePause time.Duration
}

// NewFeed 创建价格源
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.IdlePause <= 0 {
		cfg.IdlePause = 5 * time.Millisecond
	}
	return &Feed{
		name:      cfg.Conn.Name,
		conn:      NewConn(cfg.Conn),
		queue:     NewQueue(cfg.SoftLimit),
		decode:    cfg.Decode,
		idlePause: cfg.IdlePause,
	}
}

func (f *Feed) Name() model.Exchange { return f.name }

func (f *Feed) State() port.ConnectionState { return f.conn.State() }

// Run 启动连接协程与处理协程，阻塞直到 ctx 取消
func (f *Feed) Run(ctx context.Context, handle func(model.PriceSample)) error {
	name := string(f.name)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return f.conn.Run(gctx, func(fr RawFrame) {
			metrics.FramesReceived.WithLabelValues(name).Inc()
			if dropped := f.queue.Push(fr); dropped > 0 {
				metrics.QueueDropped.WithLabelValues(name).Add(float64(dropped))
				log.Warn().Str("feed", name).Int("dropped", dropped).Msg("ingestion queue over soft limit")
			}
		})
	})
	g.Go(func() error {
		return f.process(gctx, handle)
	})

	return g.Wait()
}

// process 批量取出并按接收顺序解码；空闲时等待通知或短暂停顿
func (f *Feed) process(ctx context.Context, handle func(model.PriceSample)) error {
	name := string(f.name)
	idle := time.NewTimer(f.idlePause)
	defer idle.Stop()

	var batch []RawFrame
	for {
		batch = f.queue.Drain(batch)
		if len(batch) == 0 {
			idle.Reset(f.idlePause)
			select {
			case <-ctx.Done():
				return nil
			case <-f.queue.Ready():
			case <-idle.C:
			}
			continue
		}

		for _, fr := range batch {
			sample, err := f.decode(fr)
			if errors.Is(err, ErrSkip) {
				continue
			}
			if err != nil {
				metrics.DecodeFailures.WithLabelValues(name).Inc()
				log.Warn().Str("feed", name).Err(err).Int("bytes", len(fr.Data)).Msg("decode failed, frame dropped")
				continue
			}
			metrics.SamplesDecoded.WithLabelValues(name).Inc()
			handle(sample)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
