package monitor

import (
	"strconv"
	"sync"

	"markarb/internal/domain/model"
)

type Dir int

const (
	DirSame Dir = 0
	DirUp   Dir = +1
	DirDown Dir = -1
)

type pxState struct {
	str string
	num float64
	has bool
	dir Dir
}

// State 记录每个交易所最近一次展示的价格和涨跌方向
type State struct {
	mu sync.Mutex

	order []model.Exchange
	px    map[model.Exchange]*pxState
}

func NewState(exchanges ...model.Exchange) *State {
	px := make(map[model.Exchange]*pxState, len(exchanges))
	for _, ex := range exchanges {
		px[ex] = &pxState{}
	}
	return &State{order: exchanges, px: px}
}

func (s *State) Exchanges() []model.Exchange {
	return s.order
}

// Apply 应用一个价格更新，返回展示是否变化（相对于前一个价格）
func (s *State) Apply(ex model.Exchange, price float64) bool {
	if price <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.px[ex]
	if ps == nil {
		return false
	}

	str := strconv.FormatFloat(price, 'f', -1, 64)
	if ps.str == str {
		return false
	}
	ps.str = str

	if !ps.has {
		ps.has = true
		ps.num = price
		ps.dir = DirSame
		return true
	}

	switch {
	case price > ps.num:
		ps.dir = DirUp
	case price < ps.num:
		ps.dir = DirDown
	default:
		ps.dir = DirSame
	}
	ps.num = price
	return true
}

func (s *State) Snapshot() map[model.Exchange]pxState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.Exchange]pxState, len(s.px))
	for k, v := range s.px {
		out[k] = *v
	}
	return out
}
