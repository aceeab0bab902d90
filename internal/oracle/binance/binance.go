package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Client reads spot prices from the public ticker endpoint.
type Client struct {
	client *resty.Client
	logger *logger.Logger
}

func New(baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		logger: logger,
	}
}

func (c *Client) Name() string {
	return "binance"
}

func (c *Client) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", pair).
		Get("/api/v3/ticker/price")
	if err != nil {
		c.logger.Error("[Binance][Price][Get]", map[string]string{
			"pair":  pair,
			"error": err.Error(),
		})
		return decimal.Zero, errors.Wrap(err, "request ticker price")
	}

	if resp.StatusCode() != 200 {
		var apiErr apiError
		_ = json.Unmarshal(resp.Body(), &apiErr)
		c.logger.Error("[Binance][Price] unexpected status", map[string]string{
			"pair":       pair,
			"statusCode": strconv.Itoa(resp.StatusCode()),
			"msg":        apiErr.Msg,
		})
		return decimal.Zero, fmt.Errorf("status code: %d, ticker price for %s: %s", resp.StatusCode(), pair, apiErr.Msg)
	}

	var ticker tickerPrice
	if err := json.Unmarshal(resp.Body(), &ticker); err != nil {
		return decimal.Zero, errors.Wrap(err, "decode ticker price")
	}
	if ticker.Symbol != "" && ticker.Symbol != pair {
		return decimal.Zero, errors.Errorf("ticker returned symbol %s, want %s", ticker.Symbol, pair)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse price %q", ticker.Price)
	}

	return price, nil
}
