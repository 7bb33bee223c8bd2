package metrics

import (
	"context"
	"testing"
	"time"
)

func TestServeDisabled(t *testing.T) {
	if err := Serve(context.Background(), ""); err != nil {
		t.Fatalf("expected nil for empty addr, got %v", err)
	}
}

func TestServeShutdownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
