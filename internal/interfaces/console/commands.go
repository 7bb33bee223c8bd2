package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"markarb/internal/application/usecase/arbitrage"
	"markarb/internal/domain/model"
)

// ErrExit 操作员输入 exit / quit
var ErrExit = errors.New("exit requested from console")

// Controller 控制台可操作的机器人接口
type Controller interface {
	ToggleAutoOpen() (bool, error)
	Status() arbitrage.Status
	TestOrder(ctx context.Context) error
}

// Commands 读取标准输入的操作命令: toggle / status / test / exit
type Commands struct {
	in   io.Reader
	out  io.Writer
	ctrl Controller
}

func NewCommands(in io.Reader, out io.Writer, ctrl Controller) *Commands {
	return &Commands{in: in, out: out, ctrl: ctrl}
}

// Run 处理命令直到 exit 或 ctx 取消
// exit 返回 ErrExit；输入结束（stdin 为 /dev/null、无 tty 的容器）时命令不可用，
// 但不退出进程，阻塞到 ctx 取消
func (c *Commands) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.Warn().Err(err).Msg("console input closed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				log.Warn().Msg("console input closed, commands unavailable until restart")
				lines = nil
				continue
			}
			if c.handle(ctx, strings.ToLower(strings.TrimSpace(line))) {
				return ErrExit
			}
		}
	}
}

// handle 执行一条命令，返回 true 表示退出
func (c *Commands) handle(ctx context.Context, cmd string) bool {
	switch cmd {
	case "":
		return false
	case "exit", "quit":
		fmt.Fprintln(c.out, "\nexiting...")
		return true
	case "toggle":
		on, err := c.ctrl.ToggleAutoOpen()
		if err != nil {
			fmt.Fprintf(c.out, "\nauto open unchanged: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "\nauto open: %s\n", onOff(on))
	case "status":
		fmt.Fprint(c.out, "\n"+FormatStatus(c.ctrl.Status()))
	case "test":
		if err := c.ctrl.TestOrder(ctx); err != nil {
			fmt.Fprintf(c.out, "\ntest order failed: %v\n", err)
			return false
		}
		fmt.Fprintln(c.out, "\ntest order accepted")
	default:
		fmt.Fprintf(c.out, "\nunknown command %q (toggle | status | test | exit)\n", cmd)
	}
	return false
}

// FormatStatus 多行状态文本
func FormatStatus(st arbitrage.Status) string {
	var sb strings.Builder
	sb.WriteString("=== status ===\n")

	for _, ex := range []model.Exchange{model.ExchangeBinance, model.ExchangeBingX} {
		if s, ok := st.Prices[ex]; ok {
			fmt.Fprintf(&sb, "%-8s %s\n", ex, s.PriceStr)
		} else {
			fmt.Fprintf(&sb, "%-8s --\n", ex)
		}
	}
	if st.HasDivergence {
		fmt.Fprintf(&sb, "diff     %+.4f%%\n", st.Divergence)
	} else {
		sb.WriteString("diff     --\n")
	}

	pos := st.Position
	switch {
	case pos.Active():
		fmt.Fprintf(&sb, "position %s %s qty=%g entry=%g tp=%g sl=%g opened=%s\n",
			pos.Status, pos.Side, pos.Quantity, pos.EntryPrice, pos.TakeProfitPrice, pos.StopLossPrice,
			pos.OpenedAt.Format(time.TimeOnly))
	case st.OpenPending:
		sb.WriteString("position OPENING\n")
	default:
		sb.WriteString("position NONE\n")
	}

	fmt.Fprintf(&sb, "auto     %s", onOff(st.AutoOpen))
	if st.Degraded {
		sb.WriteString(" (data-only: credentials not verified)")
	}
	sb.WriteString("\n")
	if !st.LastTradeAt.IsZero() {
		fmt.Fprintf(&sb, "last     %s\n", st.LastTradeAt.Format(time.TimeOnly))
	}

	names := make([]string, 0, len(st.Connections))
	for ex := range st.Connections {
		names = append(names, string(ex))
	}
	sort.Strings(names)
	for _, name := range names {
		cs := st.Connections[model.Exchange(name)]
		fmt.Fprintf(&sb, "ws       %-8s %s reconnects=%d\n", name, cs.Phase, cs.Reconnects)
	}
	return sb.String()
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
