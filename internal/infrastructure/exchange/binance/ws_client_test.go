package binance

import (
	"errors"
	"testing"
	"time"

	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/pricefeed"
	"markarb/internal/infrastructure/websocket"
)

func frame(s string) websocket.RawFrame {
	return websocket.RawFrame{
		Exchange:   model.ExchangeBinance,
		Data:       []byte(s),
		ReceivedAt: time.Unix(1700000000, 0),
	}
}

func TestDecodeMarkPrice(t *testing.T) {
	sample, err := DecodeMarkPrice(frame(`{"e":"markPriceUpdate","E":1562305380000,"s":"RAREUSDT","p":"0.08123000","r":"0.0001"}`))
	if err != nil {
		t.Fatalf("DecodeMarkPrice failed: %v", err)
	}
	if sample.Exchange != model.ExchangeBinance || sample.Symbol != "RAREUSDT" {
		t.Errorf("unexpected sample identity: %+v", sample)
	}
	if sample.Price != 0.08123 || sample.PriceStr != "0.08123000" {
		t.Errorf("unexpected price: %v (%s)", sample.Price, sample.PriceStr)
	}
	if sample.SourceTs != 1562305380000 {
		t.Errorf("unexpected source ts: %d", sample.SourceTs)
	}
}

func TestDecodeMarkPriceCombinedStream(t *testing.T) {
	sample, err := DecodeMarkPrice(frame(`{"stream":"rareusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1,"s":"RAREUSDT","p":"100.5"}}`))
	if err != nil {
		t.Fatalf("DecodeMarkPrice failed: %v", err)
	}
	if sample.Price != 100.5 {
		t.Errorf("expected 100.5, got %v", sample.Price)
	}
}

func TestDecodeMarkPriceSkipAndFailures(t *testing.T) {
	// 订阅回执与其他事件：静默忽略
	for _, s := range []string{`{"result":null,"id":1}`, `{"e":"kline","s":"RAREUSDT"}`} {
		if _, err := DecodeMarkPrice(frame(s)); !errors.Is(err, websocket.ErrSkip) {
			t.Errorf("expected ErrSkip for %s, got %v", s, err)
		}
	}

	// 损坏数据与非法价格：解码失败
	for _, s := range []string{`{not json`, `{"e":"markPriceUpdate","p":"abc"}`, `{"e":"markPriceUpdate","p":"-1"}`, `{"e":"markPriceUpdate","p":"NaN"}`} {
		_, err := DecodeMarkPrice(frame(s))
		if err == nil || errors.Is(err, websocket.ErrSkip) {
			t.Errorf("expected decode failure for %s, got %v", s, err)
		}
	}
}

func TestBuildStreamURL(t *testing.T) {
	u, err := buildStreamURL("wss://fstream.binance.com", "RAREUSDT")
	if err != nil {
		t.Fatalf("buildStreamURL failed: %v", err)
	}
	if u != "wss://fstream.binance.com/ws/rareusdt@markPrice@1s" {
		t.Errorf("unexpected url: %s", u)
	}
	if _, err := buildStreamURL("", "RAREUSDT"); err == nil {
		t.Error("expected error for empty base")
	}
}

func TestRegisteredFactory(t *testing.T) {
	factory, ok := pricefeed.Get(model.ExchangeBinance)
	if !ok {
		t.Fatal("binance factory not registered")
	}
	feed := factory(pricefeed.Options{WsURL: "wss://fstream.binance.com", Coin: "RARE", Quote: "USDT"})
	if feed == nil || feed.Name() != model.ExchangeBinance {
		t.Fatalf("unexpected feed: %v", feed)
	}
}
