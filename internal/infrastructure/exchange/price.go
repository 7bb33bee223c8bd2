package exchange

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParsePrice 解析交易所的十进制价格字符串，拒绝非正数与 NaN/Inf
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	px, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if math.IsNaN(px) || math.IsInf(px, 0) || px <= 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return px, nil
}
