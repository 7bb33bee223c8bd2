package exchange

import (
	"strings"
)

// SymbolConverter 符号转换接口
// 各交易所可以实现此接口来提供符号转换功能
type SymbolConverter interface {
	// Symbol2Coin 将交易对转换为币种
	// 例: RAREUSDT -> RARE, RARE-USDT -> RARE
	Symbol2Coin(symbol string) string

	// Coin2Symbol 将币种转换为交易对
	// 例: RARE -> RAREUSDT
	Coin2Symbol(coin string) string
}

// CommonSymbolConverter 无分隔符格式 (Binance: RAREUSDT)
type CommonSymbolConverter struct {
	quote string
}

// NewCommonSymbolConverter 创建通用符号转换器
func NewCommonSymbolConverter(quote string) *CommonSymbolConverter {
	return &CommonSymbolConverter{quote: normalize(quote)}
}

// Symbol2Coin 例: RAREUSDT -> RARE
func (c *CommonSymbolConverter) Symbol2Coin(symbol string) string {
	sym := normalize(symbol)
	if sym == "" {
		return ""
	}
	return strings.TrimSuffix(sym, c.quote)
}

// Coin2Symbol 例: RARE -> RAREUSDT, RAREUSDT -> RAREUSDT
func (c *CommonSymbolConverter) Coin2Symbol(coin string) string {
	coin = normalize(coin)
	if coin == "" {
		return ""
	}
	if strings.HasSuffix(coin, c.quote) && coin != c.quote {
		return coin
	}
	return coin + c.quote
}

// DashSymbolConverter 短横线分隔格式 (BingX: RARE-USDT)
type DashSymbolConverter struct {
	quote string
}

// NewDashSymbolConverter 创建短横线格式转换器
func NewDashSymbolConverter(quote string) *DashSymbolConverter {
	return &DashSymbolConverter{quote: normalize(quote)}
}

// Symbol2Coin 例: RARE-USDT -> RARE
func (c *DashSymbolConverter) Symbol2Coin(symbol string) string {
	sym := normalize(symbol)
	if sym == "" {
		return ""
	}
	return strings.TrimSuffix(sym, "-"+c.quote)
}

// Coin2Symbol 例: RARE -> RARE-USDT, RARE-USDT -> RARE-USDT
func (c *DashSymbolConverter) Coin2Symbol(coin string) string {
	coin = normalize(coin)
	if coin == "" {
		return ""
	}
	if strings.HasSuffix(coin, "-"+c.quote) {
		return coin
	}
	return coin + "-" + c.quote
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
