package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"markarb/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepoUpsertPrice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertLatestPrice(ctx, model.ExchangeBinance, "RAREUSDT", 0.105, 1000); err != nil {
		t.Fatalf("UpsertLatestPrice failed: %v", err)
	}
	if err := repo.UpsertLatestPrice(ctx, model.ExchangeBinance, "RAREUSDT", 0.107, 2000); err != nil {
		t.Fatalf("UpsertLatestPrice failed: %v", err)
	}

	price, ts, err := repo.GetLatestPrice(ctx, model.ExchangeBinance, "RAREUSDT")
	if err != nil {
		t.Fatalf("GetLatestPrice failed: %v", err)
	}
	if price != 0.107 || ts != 2000 {
		t.Errorf("expected 0.107@2000, got %v@%v", price, ts)
	}
}

func TestSQLiteRepoInsertSignal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	sig := model.Signal{
		ID:          "sig-1",
		Symbol:      "RARE-USDT",
		Side:        model.SideShort,
		ReferencePx: 100,
		TradePx:     106,
		DiffPercent: 6,
		AutoOpen:    true,
		DetectedAt:  time.UnixMilli(1700000000000),
	}
	if err := repo.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}
	// 重复写入同一信号不报错也不重复计数
	if err := repo.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("duplicate InsertSignal failed: %v", err)
	}

	n, err := repo.CountSignals(ctx, "RARE-USDT")
	if err != nil {
		t.Fatalf("CountSignals failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 signal, got %d", n)
	}
}

func TestSQLiteRepoSavePositionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pos := model.Position{
		ID:              "pos-1",
		OrderID:         "123",
		Symbol:          "RARE-USDT",
		Side:            model.SideShort,
		Quantity:        400,
		EntryPrice:      106,
		TakeProfitPrice: 103.88,
		StopLossPrice:   107.06,
		Status:          model.StatusOpen,
		OpenedAt:        time.UnixMilli(1700000000000),
	}
	if err := repo.SavePosition(ctx, pos); err != nil {
		t.Fatalf("SavePosition(open) failed: %v", err)
	}

	pos.Status = model.StatusNone
	pos.CloseReason = "TP"
	pos.ClosedAt = time.UnixMilli(1700000060000)
	if err := repo.SavePosition(ctx, pos); err != nil {
		t.Fatalf("SavePosition(close) failed: %v", err)
	}

	got, err := repo.GetPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if got.Status != model.StatusNone || got.CloseReason != "TP" {
		t.Errorf("unexpected status %s / %s", got.Status, got.CloseReason)
	}
	if got.Side != model.SideShort || got.TakeProfitPrice != 103.88 || got.OrderID != "123" {
		t.Errorf("unexpected position %+v", got)
	}
	if !got.ClosedAt.Equal(pos.ClosedAt) || !got.OpenedAt.Equal(pos.OpenedAt) {
		t.Errorf("unexpected times open=%v close=%v", got.OpenedAt, got.ClosedAt)
	}
}
