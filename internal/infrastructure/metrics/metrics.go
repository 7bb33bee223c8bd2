package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ============ 行情采集 ============

// FramesReceived 收到的原始帧数（不含心跳探测）
var FramesReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "markarb",
		Subsystem: "feed",
		Name:      "frames_received_total",
		Help:      "Raw frames pushed into the ingestion queue",
	},
	[]string{"exchange"},
)

// SamplesDecoded 解码成功的价格样本数
var SamplesDecoded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "markarb",
		Subsystem: "feed",
		Name:      "samples_decoded_total",
		Help:      "Mark price samples accepted by the decoder",
	},
	[]string{"exchange"},
)

// DecodeFailures 解码失败被丢弃的帧数
var DecodeFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "markarb",
		Subsystem: "feed",
		Name:      "decode_failures_total",
		Help:      "Frames dropped because they could not be decoded",
	},
	[]string{"exchange"},
)

// QueueDropped 超出软上限被丢弃的帧数
var QueueDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "markarb",
		Subsystem: "feed",
		Name:      "queue_dropped_total",
		Help:      "Oldest frames dropped when the ingestion queue exceeded its soft limit",
	},
	[]string{"exchange"},
)

// Reconnects 重连次数
var Reconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "markarb",
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Websocket reconnect attempts",
	},
	[]string{"exchange"},
)

// ConnPhase 连接阶段 0=DISCONNECTED 1=CONNECTING 2=SUBSCRIBED
var ConnPhase = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "markarb",
		Subsystem: "feed",
		Name:      "connection_phase",
		Help:      "Connection phase per exchange (0 disconnected, 1 connecting, 2 subscribed)",
	},
	[]string{"exchange"},
)

// ============ 交易决策 ============

// Divergence 最新价差百分比
var Divergence = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "markarb",
		Subsystem: "engine",
		Name:      "divergence_percent",
		Help:      "Latest (B - A) / A * 100 divergence",
	},
)

// Signals 触发的信号数
var Signals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "markarb",
		Subsystem: "engine",
		Name:      "signals_total",
		Help:      "Divergence signals emitted",
	},
	[]string{"side", "auto_open"},
)

// Orders 下单结果计数
var Orders = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "markarb",
		Subsystem: "position",
		Name:      "orders_total",
		Help:      "Order attempts by action and result",
	},
	[]string{"action", "result"},
)

// PositionOpen 当前是否持仓
var PositionOpen = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "markarb",
		Subsystem: "position",
		Name:      "active",
		Help:      "1 when a position is open or closing",
	},
)

// OrderLatency REST 下单耗时
var OrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "markarb",
		Subsystem: "position",
		Name:      "order_latency_ms",
		Help:      "REST order round trip in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
	[]string{"action"},
)

// Serve 在 addr 上暴露 /metrics，直到 ctx 取消
// addr 为空时直接返回
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		// metrics 端口失败不影响交易
		log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		return nil
	}
}
