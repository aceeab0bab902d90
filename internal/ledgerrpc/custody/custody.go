// Package custody talks to the custodial signing service that holds the
// payout hot wallet. The service signs and broadcasts transfers; this
// package never sees key material.
package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

type Config struct {
	BaseURL string
	APIKey  string
	// SourceWallet is the hot wallet payouts are sent from.
	SourceWallet string
	Timeout      time.Duration
}

type payoutBody struct {
	SourceWallet string `json:"source_wallet,omitempty"`
	Destination  string `json:"destination"`
	Currency     string `json:"currency"`
	Mint         string `json:"mint,omitempty"`
	Amount       string `json:"amount"`
	Decimals     int    `json:"decimals"`
}

type payoutResponse struct {
	TxID   string `json:"tx_id"`
	Status string `json:"status"`
}

type balanceResponse struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type custody struct {
	cfg    Config
	client *resty.Client
	logger *logger.Logger
}

func New(cfg Config, logger *logger.Logger) ledgerrpc.IPayoutSigner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &custody{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetAuthToken(cfg.APIKey).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
}

// SubmitPayout asks the signer to send the transfer. The signer deduplicates
// on the idempotency key: a repeated key answers 409 with the original
// transaction id, which is treated as success.
func (c *custody) SubmitPayout(ctx context.Context, req ledgerrpc.PayoutRequest) (string, error) {
	if req.IdempotencyKey == "" {
		return "", errors.New("payout without idempotency key")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(payoutBody{
			SourceWallet: c.cfg.SourceWallet,
			Destination:  req.Destination,
			Currency:     req.Currency,
			Mint:         req.Mint,
			Amount:       req.Amount.Value,
			Decimals:     req.Amount.Decimal,
		}).
		Post("/v1/payouts")
	if err != nil {
		c.logger.Error("[Custody][SubmitPayout][Post]", map[string]string{
			"reference": req.IdempotencyKey,
			"error":     err.Error(),
		})
		return "", errors.Wrap(err, "submit payout")
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusConflict:
		var out payoutResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return "", errors.Wrap(err, "decode payout response")
		}
		if out.TxID == "" {
			return "", fmt.Errorf("status code: %d, payout response without tx id", resp.StatusCode())
		}
		return out.TxID, nil
	default:
		return "", c.statusError("SubmitPayout", resp)
	}
}

func (c *custody) Balance(ctx context.Context, currency string) (model.TokenAmount, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("currency", currency).
		SetQueryParam("wallet", c.cfg.SourceWallet).
		Get("/v1/balances/{currency}")
	if err != nil {
		c.logger.Error("[Custody][Balance][Get]", map[string]string{
			"currency": currency,
			"error":    err.Error(),
		})
		return model.TokenAmount{}, errors.Wrap(err, "get balance")
	}
	if resp.StatusCode() != http.StatusOK {
		return model.TokenAmount{}, c.statusError("Balance", resp)
	}

	var out balanceResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return model.TokenAmount{}, errors.Wrap(err, "decode balance response")
	}

	return model.ParseTokenAmount(out.Amount, out.Decimals)
}

func (c *custody) Ping(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/v1/health")
	if err != nil {
		return errors.Wrap(err, "custody health")
	}
	if resp.StatusCode() != http.StatusOK {
		return c.statusError("Ping", resp)
	}
	return nil
}

func (c *custody) statusError(op string, resp *resty.Response) error {
	var body errorResponse
	_ = json.Unmarshal(resp.Body(), &body)
	c.logger.Error("[Custody]["+op+"] unexpected status", map[string]string{
		"statusCode": strconv.Itoa(resp.StatusCode()),
		"error":      body.Error,
	})
	return fmt.Errorf("status code: %d, %s: %s", resp.StatusCode(), op, body.Error)
}
