package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"markarb/internal/application/port"
	"markarb/internal/application/usecase/arbitrage"
	"markarb/internal/domain/model"
)

type fakeController struct {
	auto      bool
	toggleErr error
	testErr   error
	tests     int
	status    arbitrage.Status
}

func (f *fakeController) ToggleAutoOpen() (bool, error) {
	if f.toggleErr != nil {
		return f.auto, f.toggleErr
	}
	f.auto = !f.auto
	return f.auto, nil
}

func (f *fakeController) Status() arbitrage.Status { return f.status }

func (f *fakeController) TestOrder(ctx context.Context) error {
	f.tests++
	return f.testErr
}

func TestCommandsRun(t *testing.T) {
	ctrl := &fakeController{status: arbitrage.Status{
		Prices: map[model.Exchange]model.PriceSample{
			model.ExchangeBinance: {PriceStr: "0.1050"},
		},
	}}
	in := strings.NewReader("toggle\nstatus\n\ntest\nbogus\nexit\ntoggle\n")
	var out bytes.Buffer

	if err := NewCommands(in, &out, ctrl).Run(context.Background()); !errors.Is(err, ErrExit) {
		t.Fatalf("run err = %v, want ErrExit", err)
	}

	if !ctrl.auto {
		t.Error("toggle after exit must not run")
	}
	if ctrl.tests != 1 {
		t.Errorf("test orders = %d, want 1", ctrl.tests)
	}
	text := out.String()
	for _, want := range []string{"auto open: ON", "BINANCE  0.1050", "BINGX    --", "test order accepted", `unknown command "bogus"`, "exiting"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestCommandsErrors(t *testing.T) {
	ctrl := &fakeController{toggleErr: errors.New("degraded"), testErr: errors.New("rejected")}
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := NewCommands(strings.NewReader("toggle\ntest\n"), &out, ctrl).Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run err = %v, want deadline exceeded", err)
	}
	text := out.String()
	if !strings.Contains(text, "auto open unchanged: degraded") || !strings.Contains(text, "test order failed: rejected") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

// 输入为空（无 tty）时保持运行，直到 ctx 取消
func TestCommandsEmptyInputKeepsRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewCommands(strings.NewReader(""), &bytes.Buffer{}, &fakeController{}).Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("run returned on closed input: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestFormatStatus(t *testing.T) {
	opened := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	text := FormatStatus(arbitrage.Status{
		Divergence:    -5.5,
		HasDivergence: true,
		Degraded:      true,
		Position: model.Position{
			Status:     model.StatusClosing,
			Side:       model.SideLong,
			Quantity:   400,
			EntryPrice: 100,
			OpenedAt:   opened,
		},
		Connections: map[model.Exchange]port.ConnectionState{
			model.ExchangeBingX:   {Phase: port.PhaseSubscribed, Reconnects: 2},
			model.ExchangeBinance: {Phase: port.PhaseConnecting},
		},
	})

	for _, want := range []string{"diff     -5.5000%", "position CLOSING LONG qty=400", "opened=12:30:00", "data-only", "reconnects=2"} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "ws       BINANCE") > strings.Index(text, "ws       BINGX") {
		t.Error("connections not sorted")
	}
}

func TestSinkWrites(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkTo(&buf)
	_ = s.WriteLive("\rlive")
	_ = s.WriteEvent(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "event")
	_ = s.NewLine()

	want := "\rlive\n2024-01-01 00:00:00 event\n\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
