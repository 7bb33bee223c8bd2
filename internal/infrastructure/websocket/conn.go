package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/metrics"
)

// RawFrame 从连接读到的原始帧，未解压未解析
type RawFrame struct {
	Exchange   model.Exchange
	MsgType    int
	Data       []byte
	ReceivedAt time.Time
}

// Probe 交易所自定义的应用层心跳探测
// 返回 ok=true 表示该帧是探测帧，不进入队列；reply 非空时立即回写
type Probe func(msgType int, data []byte) (reply []byte, ok bool)

// ConnConfig 单条连接的配置
type ConnConfig struct {
	Name           model.Exchange
	URL            string
	Subscribe      func() ([]byte, error) // 连接建立后立即发送，nil 表示 URL 已包含订阅
	Probe          Probe
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	Dialer         *gws.Dialer
}

// Conn 连接管理器：建连、订阅、读循环、断线固定间隔重连
// 两个交易所各自持有一个 Conn，互不共享状态
type Conn struct {
	cfg ConnConfig

	phase        atomic.Int32
	lastLiveness atomic.Int64 // unix nano
	reconnects   atomic.Int64
}

// NewConn 创建连接管理器，未设置的时间参数使用默认值
func NewConn(cfg ConnConfig) *Conn {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = gws.DefaultDialer
	}
	return &Conn{cfg: cfg}
}

func (c *Conn) Name() model.Exchange { return c.cfg.Name }

// State 返回当前连接状态快照
func (c *Conn) State() port.ConnectionState {
	st := port.ConnectionState{
		Phase:      port.ConnPhase(c.phase.Load()),
		Reconnects: c.reconnects.Load(),
	}
	if ns := c.lastLiveness.Load(); ns > 0 {
		st.LastLivenessAt = time.Unix(0, ns)
	}
	return st
}

func (c *Conn) setPhase(p port.ConnPhase) {
	c.phase.Store(int32(p))
	metrics.ConnPhase.WithLabelValues(string(c.cfg.Name)).Set(float64(p))
}

func (c *Conn) touch() {
	c.lastLiveness.Store(time.Now().UnixNano())
}

// Run 持续维持连接，直到 ctx 取消
// 每个非探测帧交给 sink；重连次数不设上限
func (c *Conn) Run(ctx context.Context, sink func(RawFrame)) error {
	name := string(c.cfg.Name)
	defer c.setPhase(port.PhaseDisconnected)

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.setPhase(port.PhaseConnecting)
		log.Warn().Str("feed", name).Str("url", c.cfg.URL).Msg("ws connecting")

		err := c.session(ctx, sink)
		c.setPhase(port.PhaseDisconnected)

		if ctx.Err() != nil {
			return nil
		}

		c.reconnects.Add(1)
		metrics.Reconnects.WithLabelValues(name).Inc()
		log.Warn().Str("feed", name).Err(err).Dur("delay", c.cfg.ReconnectDelay).Msg("ws disconnected, reconnecting")

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session 完成一次 建连 -> 订阅 -> 读循环
func (c *Conn) session(ctx context.Context, sink func(RawFrame)) error {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := c.cfg.Dialer.DialContext(dctx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if c.cfg.Subscribe != nil {
		payload, err := c.cfg.Subscribe()
		if err != nil {
			return fmt.Errorf("build subscribe: %w", err)
		}
		if err := conn.WriteMessage(gws.TextMessage, payload); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.touch()
	c.setPhase(port.PhaseSubscribed)
	log.Info().Str("feed", string(c.cfg.Name)).Msg("ws subscribed")

	return c.readLoop(ctx, conn, sink)
}

func (c *Conn) readLoop(ctx context.Context, conn *gws.Conn, sink func(RawFrame)) error {
	timeout := c.cfg.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPongHandler(func(string) error {
		c.touch()
		return conn.SetReadDeadline(time.Now().Add(timeout))
	})
	conn.SetPingHandler(func(data string) error {
		c.touch()
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		err := conn.WriteControl(gws.PongMessage, []byte(data), time.Now().Add(5*time.Second))
		if errors.Is(err, gws.ErrCloseSent) {
			return nil
		}
		return err
	})

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			mt, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
			c.touch()

			if c.cfg.Probe != nil {
				if reply, ok := c.cfg.Probe(mt, b); ok {
					// 探测帧在读路径上同步应答，不经过队列
					if len(reply) > 0 {
						if err := conn.WriteMessage(gws.TextMessage, reply); err != nil {
							errCh <- fmt.Errorf("probe reply: %w", err)
							return
						}
					}
					continue
				}
			}

			sink(RawFrame{
				Exchange:   c.cfg.Name,
				MsgType:    mt,
				Data:       b,
				ReceivedAt: time.Now(),
			})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(gws.CloseMessage,
				gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			if err := conn.WriteControl(gws.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
