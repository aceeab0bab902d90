package ledgerrpc

import (
	"context"

	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

type client struct {
	chain   IChainReader
	payouts IPayoutSigner
	logger  *logger.Logger
}

// New joins the chain reader and the payout signer behind one client.
func New(chain IChainReader, payouts IPayoutSigner, logger *logger.Logger) ILedgerClient {
	return &client{
		chain:   chain,
		payouts: payouts,
		logger:  logger,
	}
}

func (c *client) GetTransaction(ctx context.Context, reference string) (*TransactionView, error) {
	view, err := c.chain.GetTransaction(ctx, reference)
	if err != nil {
		c.logger.Error("[LedgerClient][GetTransaction]", map[string]string{
			"reference": reference,
			"error":     err.Error(),
		})
		return nil, err
	}
	return view, nil
}

func (c *client) SubmitPayout(ctx context.Context, req PayoutRequest) (string, error) {
	txID, err := c.payouts.SubmitPayout(ctx, req)
	if err != nil {
		c.logger.Error("[LedgerClient][SubmitPayout]", map[string]string{
			"reference":   req.IdempotencyKey,
			"destination": req.Destination,
			"amount":      req.Amount.Value,
			"currency":    req.Currency,
			"error":       err.Error(),
		})
		return "", err
	}

	c.logger.Info("[LedgerClient][SubmitPayout] payout sent", map[string]string{
		"reference": req.IdempotencyKey,
		"txID":      txID,
	})
	return txID, nil
}

func (c *client) PayoutBalance(ctx context.Context, currency string) (model.TokenAmount, error) {
	return c.payouts.Balance(ctx, currency)
}
