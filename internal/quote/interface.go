package quote

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type IEngine interface {
	// Convert prices amount of source in payout, rounded half to even at the
	// payout currency's decimals. Identical currencies convert 1:1 without
	// consulting the oracle.
	Convert(ctx context.Context, amount model.TokenAmount, source, payout string) (model.TokenAmount, error)
	// USDPrice is the USD value of one whole token of code.
	USDPrice(ctx context.Context, code string) (decimal.Decimal, error)
	Currency(code string) (model.Currency, error)
	Currencies() []model.Currency
}
