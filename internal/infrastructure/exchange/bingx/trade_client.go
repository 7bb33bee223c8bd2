package bingx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

const (
	pathOrder     = "/openApi/swap/v2/trade/order"
	pathTestOrder = "/openApi/swap/v2/trade/order/test"
	pathPositions = "/openApi/swap/v2/user/positions"
	pathBalance   = "/openApi/swap/v3/user/balance"
)

// TradeClient BingX 永续合约下单客户端
type TradeClient struct {
	client *APIClient
}

// NewTradeClient 创建下单客户端
func NewTradeClient(client *APIClient) *TradeClient {
	return &TradeClient{client: client}
}

type orderResp struct {
	Order struct {
		OrderID       json.Number `json:"orderId"`
		ClientOrderID string      `json:"clientOrderID"`
		Symbol        string      `json:"symbol"`
		AvgPrice      string      `json:"avgPrice"`
		Status        string      `json:"status"`
	} `json:"order"`
}

func orderParams(symbol, side, positionSide string, qty float64, clientOrderID string) url.Values {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("positionSide", positionSide)
	params.Set("type", "MARKET")
	params.Set("quantity", formatQty(qty))
	if clientOrderID != "" {
		params.Set("clientOrderID", clientOrderID)
	}
	return params
}

// PlaceMarketOrder 市价开仓：LONG -> BUY/LONG，SHORT -> SELL/SHORT
func (c *TradeClient) PlaceMarketOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %v", req.Quantity)
	}
	params := orderParams(req.Symbol, req.Side.OrderSide(), string(req.Side), req.Quantity, req.ClientOrderID)

	data, err := c.client.signedRequest(ctx, http.MethodPost, pathOrder, params)
	if err != nil {
		return nil, err
	}

	var resp orderResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if resp.Order.OrderID.String() == "" {
		return nil, errors.New("order response missing orderId")
	}

	log.Info().
		Str("exchange", string(model.ExchangeBingX)).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", req.Quantity).
		Str("order_id", resp.Order.OrderID.String()).
		Msg("order placed")

	return &model.OrderResult{
		OrderID:       resp.Order.OrderID.String(),
		ClientOrderID: resp.Order.ClientOrderID,
		AvgPrice:      parseFloat(resp.Order.AvgPrice),
	}, nil
}

// ClosePosition 以反向市价单平仓，positionSide 保持与持仓一致
func (c *TradeClient) ClosePosition(ctx context.Context, req model.CloseRequest) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %v", req.Quantity)
	}
	params := orderParams(req.Symbol, req.Side.CloseSide(), string(req.Side), req.Quantity, "")

	data, err := c.client.signedRequest(ctx, http.MethodPost, pathOrder, params)
	if err != nil {
		return err
	}

	var resp orderResp
	if err := json.Unmarshal(data, &resp); err != nil {
		// 平仓已被接受，回包格式异常只影响日志里的 close_order_id
		log.Debug().Err(err).Str("symbol", req.Symbol).Msg("decode close order response")
	}
	log.Info().
		Str("exchange", string(model.ExchangeBingX)).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("open_order_id", req.OrderID).
		Str("close_order_id", resp.Order.OrderID.String()).
		Msg("position closed")
	return nil
}

type positionItem struct {
	Symbol       string      `json:"symbol"`
	PositionID   json.Number `json:"positionId"`
	PositionSide string      `json:"positionSide"`
	PositionAmt  string      `json:"positionAmt"`
	AvgPrice     string      `json:"avgPrice"`
}

// GetPositions 查询持仓，过滤数量为 0 的记录
func (c *TradeClient) GetPositions(ctx context.Context, symbol string) ([]model.PositionSnapshot, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	data, err := c.client.signedRequest(ctx, http.MethodGet, pathPositions, params)
	if err != nil {
		return nil, err
	}

	var items []positionItem
	if len(bytes.TrimSpace(data)) > 0 && string(bytes.TrimSpace(data)) != "null" {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode positions: %w", err)
		}
	}

	out := make([]model.PositionSnapshot, 0, len(items))
	for _, p := range items {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		side := model.SideLong
		if strings.EqualFold(p.PositionSide, "SHORT") || amt < 0 {
			side = model.SideShort
		}
		out = append(out, model.PositionSnapshot{
			Symbol:     p.Symbol,
			PositionID: p.PositionID.String(),
			Side:       side,
			Quantity:   math.Abs(amt),
			AvgPrice:   parseFloat(p.AvgPrice),
		})
	}
	return out, nil
}

type balanceItem struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableMargin  string `json:"availableMargin"`
	UnrealizedProfit string `json:"unrealizedProfit"`
}

// GetBalance 查询合约账户余额，兼容 v3 数组与 v2 {"balance":{}} 两种返回
func (c *TradeClient) GetBalance(ctx context.Context) (*model.BalanceSnapshot, error) {
	data, err := c.client.signedRequest(ctx, http.MethodGet, pathBalance, nil)
	if err != nil {
		return nil, err
	}

	var items []balanceItem
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapped struct {
			Balance balanceItem `json:"balance"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode balance: %w", err)
		}
		items = []balanceItem{wrapped.Balance}
	}
	if len(items) == 0 {
		return nil, errors.New("empty balance response")
	}

	pick := items[0]
	for _, it := range items {
		if strings.EqualFold(it.Asset, "USDT") {
			pick = it
			break
		}
	}
	return &model.BalanceSnapshot{
		Asset:            pick.Asset,
		Balance:          parseFloat(pick.Balance),
		AvailableMargin:  parseFloat(pick.AvailableMargin),
		UnrealizedProfit: parseFloat(pick.UnrealizedProfit),
	}, nil
}

// TestOrder 调用测试下单接口，校验参数与权限，不会真实成交
func (c *TradeClient) TestOrder(ctx context.Context, req model.OrderRequest) error {
	params := orderParams(req.Symbol, req.Side.OrderSide(), string(req.Side), req.Quantity, req.ClientOrderID)
	_, err := c.client.signedRequest(ctx, http.MethodPost, pathTestOrder, params)
	return err
}

var _ port.TradingClient = (*TradeClient)(nil)
