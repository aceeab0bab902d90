package quote

import (
	"context"
	"math/big"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/oracle"
)

type engine struct {
	oracle     oracle.IOracle
	currencies map[string]model.Currency
	ratios     map[string]decimal.Decimal
}

func New(o oracle.IOracle, currencies []model.Currency) (IEngine, error) {
	e := &engine{
		oracle:     o,
		currencies: make(map[string]model.Currency, len(currencies)),
		ratios:     make(map[string]decimal.Decimal, len(currencies)),
	}
	for _, c := range currencies {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		code := normalizeCode(c.Code)
		if _, dup := e.currencies[code]; dup {
			return nil, errors.Errorf("duplicate currency %s", code)
		}
		ratio, err := c.Ratio()
		if err != nil {
			return nil, err
		}
		c.Code = code
		e.currencies[code] = c
		e.ratios[code] = ratio
	}

	return e, nil
}

func (e *engine) Currency(code string) (model.Currency, error) {
	c, ok := e.currencies[normalizeCode(code)]
	if !ok {
		return model.Currency{}, apperror.Newf(apperror.KindUnsupportedCurrency, "unsupported currency %q", code)
	}
	return c, nil
}

func (e *engine) Currencies() []model.Currency {
	out := make([]model.Currency, 0, len(e.currencies))
	for _, c := range e.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (e *engine) USDPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	c, err := e.Currency(code)
	if err != nil {
		return decimal.Zero, err
	}

	ratio := e.ratios[c.Code]
	if c.PricePair == "" {
		return ratio, nil
	}

	price, err := e.oracle.Quote(ctx, c.PricePair)
	if err != nil {
		return decimal.Zero, err
	}

	return price.Mul(ratio), nil
}

func (e *engine) Convert(ctx context.Context, amount model.TokenAmount, source, payout string) (model.TokenAmount, error) {
	src, err := e.Currency(source)
	if err != nil {
		return model.TokenAmount{}, err
	}
	dst, err := e.Currency(payout)
	if err != nil {
		return model.TokenAmount{}, err
	}
	if _, ok := new(big.Int).SetString(amount.Value, 10); !ok || amount.Sign() < 0 {
		return model.TokenAmount{}, apperror.Newf(apperror.KindInvalidRequest, "invalid amount %q", amount.Value)
	}

	whole := amount.ToDecimal().Rat()

	if src.Code == dst.Code {
		return scaleHalfEven(whole, dst.Decimals), nil
	}

	srcUSD, err := e.USDPrice(ctx, src.Code)
	if err != nil {
		return model.TokenAmount{}, err
	}
	dstUSD, err := e.USDPrice(ctx, dst.Code)
	if err != nil {
		return model.TokenAmount{}, err
	}
	if !dstUSD.IsPositive() {
		return model.TokenAmount{}, apperror.Newf(apperror.KindOracleUnavailable, "no usable price for %s", dst.Code)
	}

	value := new(big.Rat).Mul(whole, srcUSD.Rat())
	value.Quo(value, dstUSD.Rat())

	return scaleHalfEven(value, dst.Decimals), nil
}

// scaleHalfEven expresses v in minor units of a currency with the given
// decimals, rounding half to even. The arithmetic is exact up to that single
// rounding step.
func scaleHalfEven(v *big.Rat, decimals int) model.TokenAmount {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(v, new(big.Rat).SetInt(scale))

	num := scaled.Num()
	den := scaled.Denom()
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))

	// amounts are non-negative here, so r >= 0
	twice := new(big.Int).Lsh(r, 1)
	switch twice.Cmp(den) {
	case 1:
		q.Add(q, big.NewInt(1))
	case 0:
		if q.Bit(0) == 1 {
			q.Add(q, big.NewInt(1))
		}
	}

	return model.NewTokenAmount(q, decimals)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
