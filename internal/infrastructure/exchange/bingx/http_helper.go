package bingx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoCredentials 未配置 API Key / Secret
var ErrNoCredentials = errors.New("bingx credentials not configured")

// APIError 交易所返回 code != 0
type APIError struct {
	Path string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bingx %s: code=%d msg=%s", e.Path, e.Code, e.Msg)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// signedRequest is shared helper for signed REST calls.
// 参数按 key 排序后签名，返回 data 字段原文
func (c *APIClient) signedRequest(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	if c.credentials.Empty() {
		return nil, ErrNoCredentials
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if params.Get("recvWindow") == "" {
		params.Set("recvWindow", c.recvWindow)
	}

	query := params.Encode()
	signature := c.credentials.Sign(query)
	endpoint := fmt.Sprintf("%s%s?%s&signature=%s", c.baseURL, path, query, signature)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-BX-APIKEY", c.credentials.APIKey())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bingx %s http %d: %s", path, resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("bingx %s decode: %w", path, err)
	}
	if env.Code != 0 {
		return nil, &APIError{Path: path, Code: env.Code, Msg: env.Msg}
	}
	return env.Data, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
