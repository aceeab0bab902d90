package ledgerrpc

import (
	"context"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

// ILedgerClient reads deposits from the chain and issues payouts.
type ILedgerClient interface {
	// GetTransaction returns nil, nil when the ledger does not know reference.
	GetTransaction(ctx context.Context, reference string) (*TransactionView, error)
	SubmitPayout(ctx context.Context, req PayoutRequest) (txID string, err error)
	PayoutBalance(ctx context.Context, currency string) (model.TokenAmount, error)
}

type IChainReader interface {
	GetTransaction(ctx context.Context, reference string) (*TransactionView, error)
	Ping(ctx context.Context) error
}

type IPayoutSigner interface {
	SubmitPayout(ctx context.Context, req PayoutRequest) (txID string, err error)
	Balance(ctx context.Context, currency string) (model.TokenAmount, error)
	Ping(ctx context.Context) error
}
