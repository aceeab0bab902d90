package webhook

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

const (
	EventPayoutFailed     = "payout_failed"
	EventSettlementFailed = "settlement_failed"
	EventSettlementStale  = "settlement_stale"
)

// Alert is posted to the operator webhook when a settlement needs a human.
type Alert struct {
	Event            string    `json:"event"`
	DepositReference string    `json:"deposit_reference"`
	RequestingWallet string    `json:"requesting_wallet,omitempty"`
	PayoutCurrency   string    `json:"payout_currency,omitempty"`
	PayoutAmount     string    `json:"payout_amount,omitempty"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	Message          string    `json:"message,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// INotifier delivers operator alerts. Delivery is best effort: failures are
// logged and never surface to the caller.
type INotifier interface {
	NotifyOperator(ctx context.Context, alert Alert)
	CallUptimeWebhook(ctx context.Context, webhookURL string)
}

// Client is a simple HTTP client for making webhook calls
type Client struct {
	client      *resty.Client
	operatorURL string
	logger      *logger.Logger
}

// New creates a new webhook client with timeout. An empty operatorURL
// disables operator alerts.
func New(operatorURL string, logger *logger.Logger) *Client {
	return &Client{
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
		operatorURL: operatorURL,
		logger:      logger,
	}
}

func (c *Client) NotifyOperator(ctx context.Context, alert Alert) {
	if c.operatorURL == "" {
		return
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(alert).
		Post(c.operatorURL)
	if err != nil {
		c.logger.Error("[Webhook][NotifyOperator][Post]", map[string]string{
			"event":     alert.Event,
			"reference": alert.DepositReference,
			"error":     err.Error(),
		})
		return
	}
	if resp.IsError() {
		c.logger.Error("[Webhook][NotifyOperator] unexpected status", map[string]string{
			"event":      alert.Event,
			"reference":  alert.DepositReference,
			"statusCode": strconv.Itoa(resp.StatusCode()),
		})
		return
	}

	c.logger.Info("[Webhook][NotifyOperator] alert delivered", map[string]string{
		"event":     alert.Event,
		"reference": alert.DepositReference,
	})
}

// CallUptimeWebhook makes a simple GET request to the webhook URL
func (c *Client) CallUptimeWebhook(ctx context.Context, webhookURL string) {
	if webhookURL == "" {
		return
	}

	resp, err := c.client.R().SetContext(ctx).Get(webhookURL)
	if err != nil {
		c.logger.Error("[Webhook][CallUptimeWebhook][Get]", map[string]string{
			"url":   webhookURL,
			"error": err.Error(),
		})
		return
	}

	c.logger.Debug("[Webhook][CallUptimeWebhook] called uptime webhook", map[string]string{
		"url":         webhookURL,
		"status_code": resp.Status(),
	})
}
