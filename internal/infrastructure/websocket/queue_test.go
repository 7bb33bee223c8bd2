package websocket

import (
	"strconv"
	"testing"
)

func frame(s string) RawFrame {
	return RawFrame{Data: []byte(s)}
}

func TestQueueDrainKeepsOrder(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < 5; i++ {
		q.Push(frame(strconv.Itoa(i)))
	}
	if q.Len() != 5 {
		t.Fatalf("len = %d, want 5", q.Len())
	}

	out := q.Drain(nil)
	if len(out) != 5 {
		t.Fatalf("drained %d frames, want 5", len(out))
	}
	for i, f := range out {
		if string(f.Data) != strconv.Itoa(i) {
			t.Errorf("frame %d = %q", i, f.Data)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after drain")
	}
}

// 双缓冲交换：上一批的切片可作为下一次的底层存储
func TestQueueDrainReusesBuffer(t *testing.T) {
	q := NewQueue(0)
	q.Push(frame("a"))
	first := q.Drain(nil)

	q.Push(frame("b"))
	q.Push(frame("c"))
	second := q.Drain(first)
	if len(second) != 2 || string(second[0].Data) != "b" || string(second[1].Data) != "c" {
		t.Fatalf("unexpected second batch %v", second)
	}

	q.Push(frame("d"))
	third := q.Drain(second)
	if len(third) != 1 || string(third[0].Data) != "d" {
		t.Fatalf("unexpected third batch %v", third)
	}
}

func TestQueueSoftLimitDropsOldest(t *testing.T) {
	q := NewQueue(3)
	dropped := 0
	for i := 0; i < 5; i++ {
		dropped += q.Push(frame(strconv.Itoa(i)))
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}

	out := q.Drain(nil)
	want := []string{"2", "3", "4"}
	if len(out) != len(want) {
		t.Fatalf("drained %d frames, want %d", len(out), len(want))
	}
	for i := range want {
		if string(out[i].Data) != want[i] {
			t.Errorf("frame %d = %q, want %q", i, out[i].Data, want[i])
		}
	}
}

func TestQueueReadySignal(t *testing.T) {
	q := NewQueue(0)
	select {
	case <-q.Ready():
		t.Fatal("ready before push")
	default:
	}

	q.Push(frame("x"))
	q.Push(frame("y"))
	select {
	case <-q.Ready():
	default:
		t.Fatal("not ready after push")
	}
}
