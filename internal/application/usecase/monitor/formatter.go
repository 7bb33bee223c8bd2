package monitor

import (
	"fmt"
	"math"
	"strings"

	"markarb/internal/application/port"
	"markarb/internal/application/usecase/arbitrage"
	"markarb/internal/domain/model"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	Coin      string
	Threshold float64
}

func NewFormatter(coin string, threshold float64) *Formatter {
	return &Formatter{Coin: coin, Threshold: threshold}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// 价格标签：A 为参考交易所，B 为下单交易所
var labels = map[model.Exchange]string{
	model.ExchangeBinance: "A",
	model.ExchangeBingX:   "B",
}

func dirColor(ps pxState) string {
	switch ps.dir {
	case DirUp:
		return ansiGreen
	case DirDown:
		return ansiRed
	default:
		return ansiYellow
	}
}

func (f *Formatter) Render(st *State, status arbitrage.Status, mode RenderMode) string {
	snap := st.Snapshot()

	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[MARKARB] ", ansiDim))
	sb.WriteString(f.Coin)

	for _, ex := range st.Exchanges() {
		ps := snap[ex]
		p := "--"
		if ps.has {
			p = ps.str
		}
		sb.WriteString(" ")
		sb.WriteString(colorize(labels[ex]+":"+p, dirColor(ps)))
		if conn, ok := status.Connections[ex]; ok && conn.Phase != port.PhaseSubscribed {
			sb.WriteString(colorize("("+conn.Phase.String()+")", ansiDim))
		}
	}

	// divergence (B - A) / A
	deltaStr := "Δ=--"
	dCol := ansiYellow
	if status.HasDivergence {
		deltaStr = fmt.Sprintf("Δ=%+.2f%%", status.Divergence)
		if math.Abs(status.Divergence) >= f.Threshold {
			if status.Divergence > 0 {
				dCol = ansiRed
			} else {
				dCol = ansiGreen
			}
		}
	}
	sb.WriteString(" ")
	sb.WriteString(colorize(deltaStr, dCol))

	sb.WriteString(colorize("  |  ", ansiDim))
	sb.WriteString(f.positionText(status))

	switch {
	case status.Degraded:
		sb.WriteString(" " + colorize("DATA-ONLY", ansiRed))
	case status.AutoOpen:
		sb.WriteString(" " + colorize("auto:ON", ansiGreen))
	default:
		sb.WriteString(" " + colorize("auto:OFF", ansiDim))
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

func (f *Formatter) positionText(status arbitrage.Status) string {
	pos := status.Position
	switch {
	case pos.Active():
		return fmt.Sprintf("%s %s %g@%g tp=%g sl=%g", pos.Status, pos.Side, pos.Quantity, pos.EntryPrice,
			pos.TakeProfitPrice, pos.StopLossPrice)
	case status.OpenPending:
		return "OPENING"
	default:
		return "NONE"
	}
}
