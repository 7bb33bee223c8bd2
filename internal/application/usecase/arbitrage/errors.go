package arbitrage

import "errors"

// ErrPositionBusy 已有持仓或开仓进行中
var ErrPositionBusy = errors.New("position slot busy")

// ErrNotReserved 开仓前未预占持仓槽位
var ErrNotReserved = errors.New("open slot not reserved")

// ErrNoPosition 没有可平的持仓
var ErrNoPosition = errors.New("no active position")

// ErrCloseInFlight 平仓请求进行中
var ErrCloseInFlight = errors.New("close already in flight")

// ErrDegraded 凭证校验失败，仅行情模式
var ErrDegraded = errors.New("trading disabled: credentials not verified")

// ErrAlreadyRunning Start 重复调用
var ErrAlreadyRunning = errors.New("bot already running")
