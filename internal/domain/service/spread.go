package service

import (
	"math"

	"github.com/shopspring/decimal"

	"markarb/internal/domain/model"
)

var hundred = decimal.NewFromInt(100)

// Divergence 计算 B 相对 A 的百分比价差: (B - A) / A * 100
func Divergence(priceA, priceB float64) float64 {
	if priceA == 0 {
		return 0
	}
	return (priceB - priceA) / priceA * 100
}

// Direction 根据价差决定方向 (pure decision)
// A > B -> LONG (B 偏低)，A < B -> SHORT (B 偏高)，相等不交易
func Direction(priceA, priceB, diffPercent, threshold float64) (model.Side, bool) {
	if math.Abs(diffPercent) < threshold {
		return "", false
	}
	switch {
	case priceA > priceB:
		return model.SideLong, true
	case priceA < priceB:
		return model.SideShort, true
	default:
		return "", false
	}
}

// Targets 计算止盈止损价格
// LONG: TP = p*(1+tp%), SL = p*(1-sl%)；SHORT 反之
func Targets(side model.Side, entry, tpPercent, slPercent float64) (tp, sl float64) {
	p := decimal.NewFromFloat(entry)
	tpRatio := decimal.NewFromFloat(tpPercent).Div(hundred)
	slRatio := decimal.NewFromFloat(slPercent).Div(hundred)
	one := decimal.NewFromInt(1)

	if side == model.SideShort {
		tp, _ = p.Mul(one.Sub(tpRatio)).Float64()
		sl, _ = p.Mul(one.Add(slRatio)).Float64()
		return tp, sl
	}
	tp, _ = p.Mul(one.Add(tpRatio)).Float64()
	sl, _ = p.Mul(one.Sub(slRatio)).Float64()
	return tp, sl
}

// ShouldClose 判断当前价格是否触达止盈或止损（边界包含）
// 返回触发原因 "TP" / "SL"
func ShouldClose(pos model.Position, price float64) (string, bool) {
	if price <= 0 {
		return "", false
	}
	switch pos.Side {
	case model.SideLong:
		if price >= pos.TakeProfitPrice {
			return "TP", true
		}
		if price <= pos.StopLossPrice {
			return "SL", true
		}
	case model.SideShort:
		if price <= pos.TakeProfitPrice {
			return "TP", true
		}
		if price >= pos.StopLossPrice {
			return "SL", true
		}
	}
	return "", false
}

// RoundQuantity 按步长向下取整下单数量
func RoundQuantity(qty float64, step float64) float64 {
	if step <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	f, _ := q.Div(s).Floor().Mul(s).Float64()
	return f
}
