package service

import (
	"testing"
	"time"

	"markarb/internal/domain/model"
)

func TestDivergence(t *testing.T) {
	diff := Divergence(100, 106)
	if diff < 5.999999 || diff > 6.000001 {
		t.Fatalf("expected diff≈6, got %v", diff)
	}
	if got := Divergence(0, 106); got != 0 {
		t.Errorf("expected 0 for zero reference, got %v", got)
	}
}

func TestDirection(t *testing.T) {
	cases := []struct {
		name   string
		a, b   float64
		want   model.Side
		wantOK bool
	}{
		{"B 偏高做空", 100, 106, model.SideShort, true},
		{"B 偏低做多", 106, 100, model.SideLong, true},
		{"未达阈值", 100, 104, "", false},
		{"相等", 100, 100, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			side, ok := Direction(tc.a, tc.b, Divergence(tc.a, tc.b), 5)
			if ok != tc.wantOK || side != tc.want {
				t.Errorf("Direction(%v,%v) = %q,%v; want %q,%v", tc.a, tc.b, side, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestTargetsShort(t *testing.T) {
	tp, sl := Targets(model.SideShort, 106, 2, 1)
	if tp != 103.88 {
		t.Errorf("expected TP=103.88, got %v", tp)
	}
	if sl != 107.06 {
		t.Errorf("expected SL=107.06, got %v", sl)
	}
}

func TestTargetsLong(t *testing.T) {
	tp, sl := Targets(model.SideLong, 100, 2, 1)
	if tp != 102 {
		t.Errorf("expected TP=102, got %v", tp)
	}
	if sl != 99 {
		t.Errorf("expected SL=99, got %v", sl)
	}
}

func TestShouldCloseBoundaries(t *testing.T) {
	long := model.Position{Side: model.SideLong, TakeProfitPrice: 102, StopLossPrice: 99}
	short := model.Position{Side: model.SideShort, TakeProfitPrice: 103.88, StopLossPrice: 107.06}

	cases := []struct {
		name   string
		pos    model.Position
		price  float64
		reason string
		want   bool
	}{
		{"long 触达止盈边界", long, 102, "TP", true},
		{"long 触达止损边界", long, 99, "SL", true},
		{"long 区间内", long, 100.5, "", false},
		{"short 触达止盈边界", short, 103.88, "TP", true},
		{"short 触达止损边界", short, 107.06, "SL", true},
		{"short 区间内", short, 105, "", false},
		{"无价格", short, 0, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := ShouldClose(tc.pos, tc.price)
			if ok != tc.want || reason != tc.reason {
				t.Errorf("ShouldClose(%v) = %q,%v; want %q,%v", tc.price, reason, ok, tc.reason, tc.want)
			}
		})
	}
}

func TestRoundQuantity(t *testing.T) {
	if got := RoundQuantity(400.7, 1); got != 400 {
		t.Errorf("expected 400, got %v", got)
	}
	if got := RoundQuantity(12.345, 0); got != 12.345 {
		t.Errorf("expected passthrough, got %v", got)
	}
}

func TestCooldown(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cd := NewCooldown(5*time.Second, func() time.Time { return now })

	if ok, _ := cd.Ready(); !ok {
		t.Fatal("fresh cooldown should be ready")
	}
	cd.Mark()

	now = now.Add(4 * time.Second)
	if ok, reason := cd.Ready(); ok {
		t.Fatal("expected cooldown to block within window")
	} else {
		t.Logf("blocked: %s", reason)
	}

	now = now.Add(time.Second)
	if ok, _ := cd.Ready(); !ok {
		t.Error("expected cooldown to be ready after window elapsed")
	}
}
