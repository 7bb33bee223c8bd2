package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"markarb/internal/domain/model"
)

func TestFeedDecodesInOrder(t *testing.T) {
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{"1.5", "ack", "garbage", "2.5", "3.5"} {
			if err := conn.WriteMessage(gws.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	decode := func(f RawFrame) (model.PriceSample, error) {
		s := string(f.Data)
		if s == "ack" {
			return model.PriceSample{}, ErrSkip
		}
		px, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.PriceSample{}, err
		}
		return model.PriceSample{Exchange: f.Exchange, Price: px, ObservedAt: f.ReceivedAt}, nil
	}

	feed := NewFeed(FeedConfig{
		Conn: ConnConfig{
			Name: model.ExchangeBinance,
			URL:  "ws" + strings.TrimPrefix(srv.URL, "http"),
		},
		Decode:    decode,
		SoftLimit: 100,
	})
	if feed.Name() != model.ExchangeBinance {
		t.Fatalf("name = %s", feed.Name())
	}

	got := make(chan float64, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- feed.Run(ctx, func(s model.PriceSample) {
			if s.Exchange != model.ExchangeBinance {
				t.Errorf("exchange = %s", s.Exchange)
			}
			got <- s.Price
		})
	}()

	var prices []float64
	timeout := time.After(3 * time.Second)
	for len(prices) < 3 {
		select {
		case px := <-got:
			prices = append(prices, px)
		case <-timeout:
			t.Fatalf("received %v before timeout", prices)
		}
	}
	want := []float64{1.5, 2.5, 3.5}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, prices[i], want[i])
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}
