package service

import (
	"fmt"
	"sync"
	"time"
)

// Cooldown 交易冷却 - 两次交易决策之间的最小间隔
// 在决定交易的那一刻记录，与下单成功与否无关
type Cooldown struct {
	mu sync.RWMutex

	window      time.Duration
	lastTradeAt time.Time
	now         func() time.Time
}

// NewCooldown 创建冷却器；now 为 nil 时使用 time.Now
func NewCooldown(window time.Duration, now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{window: window, now: now}
}

// Ready 检查冷却期是否已过
func (c *Cooldown) Ready() (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastTradeAt.IsZero() {
		return true, ""
	}
	elapsed := c.now().Sub(c.lastTradeAt)
	if elapsed < c.window {
		return false, fmt.Sprintf("cooldown period not met (%.1fs remaining)", (c.window - elapsed).Seconds())
	}
	return true, ""
}

// Mark 记录一次交易决策
func (c *Cooldown) Mark() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTradeAt = c.now()
	return c.lastTradeAt
}

// LastTradeAt 最近一次交易决策时间
func (c *Cooldown) LastTradeAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTradeAt
}
