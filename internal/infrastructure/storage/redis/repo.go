package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyLatest    string // prefix + ":latest"
	keyPosition  string // prefix + ":position"
	signalStream string
	signalChan   string
}

type LatestPrice struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Ts       int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, signalStream, signalChan string) *Repo {
	if strings.TrimSpace(signalStream) == "" {
		signalStream = prefix + ":signals"
	}
	if strings.TrimSpace(signalChan) == "" {
		signalChan = prefix + ":signals:pub"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyLatest:    prefix + ":latest",
		keyPosition:  prefix + ":position",
		signalStream: signalStream,
		signalChan:   signalChan,
	}
}

func (r *Repo) Close() error { return r.rdb.Close() }

func (r *Repo) UpsertLatestPrice(ctx context.Context, ex model.Exchange, symbol string, price float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	lp := LatestPrice{Exchange: string(ex), Symbol: symbol, Price: price, Ts: ts}
	b, _ := json.Marshal(lp)

	// Hash: field = "BINANCE:RAREUSDT" -> json
	field := fmt.Sprintf("%s:%s", ex, symbol)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, field, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertSignal(ctx context.Context, sig model.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return err
	}

	// 1) Stream: XADD <stream> * id symbol side diff payload
	_, err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.signalStream,
		Values: map[string]any{
			"id":      sig.ID,
			"ts_ms":   sig.DetectedAt.UnixMilli(),
			"symbol":  sig.Symbol,
			"side":    string(sig.Side),
			"diff":    sig.DiffPercent,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return r.rdb.Publish(ctx, r.signalChan, payload).Err()
}

// SavePosition 当前持仓写入 hash (field = symbol)；回到 NONE 时删除
func (r *Repo) SavePosition(ctx context.Context, pos model.Position) error {
	if !pos.Active() {
		return r.rdb.HDel(ctx, r.keyPosition, pos.Symbol).Err()
	}
	b, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return r.rdb.HSet(ctx, r.keyPosition, pos.Symbol, string(b)).Err()
}

var _ port.Repository = (*Repo)(nil)
