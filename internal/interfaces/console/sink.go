package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"markarb/internal/application/port"
)

type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSink() port.Sink { return NewSinkTo(os.Stdout) }

// NewSinkTo 输出到指定 writer
func NewSinkTo(w io.Writer) *Sink { return &Sink{w: w} }

func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.w, line) // no newline
	return err
}

// 事件行：换行后打印带时间的一行，下一次变化时再重画 live
func (s *Sink) WriteEvent(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "\n%s %s\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.w, "\n")
	return err
}
