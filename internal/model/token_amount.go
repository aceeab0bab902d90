package model

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TokenAmount is an amount in the smallest unit of a token together with the
// number of decimals that unit carries, so 1.5 USDT is {"1500000", 6}.
type TokenAmount struct {
	Value   string `json:"value"`
	Decimal int    `json:"decimal"`
}

func NewTokenAmount(minor *big.Int, decimals int) TokenAmount {
	return TokenAmount{Value: minor.String(), Decimal: decimals}
}

// ParseTokenAmount accepts a base-10 integer in minor units.
func ParseTokenAmount(value string, decimals int) (TokenAmount, error) {
	if _, ok := new(big.Int).SetString(value, 10); !ok {
		return TokenAmount{}, errors.Errorf("invalid amount %q", value)
	}
	if decimals < 0 {
		return TokenAmount{}, errors.Errorf("invalid decimals %d", decimals)
	}
	return TokenAmount{Value: value, Decimal: decimals}, nil
}

// BigInt returns the minor-unit value. Malformed values read as zero.
func (w TokenAmount) BigInt() *big.Int {
	amt, ok := new(big.Int).SetString(w.Value, 10)
	if !ok {
		return new(big.Int)
	}
	return amt
}

// ToDecimal returns the amount in whole tokens.
func (w TokenAmount) ToDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(w.BigInt(), int32(-w.Decimal))
}

func (w TokenAmount) Sign() int {
	return w.BigInt().Sign()
}

// Cmp compares two amounts by value, accounting for differing decimals.
func (w TokenAmount) Cmp(other TokenAmount) int {
	return w.ToDecimal().Cmp(other.ToDecimal())
}

func (w TokenAmount) String() string {
	return w.ToDecimal().String()
}

// Sub returns w - number in w's decimals. Digits of number finer than w's
// decimals are dropped.
func (w TokenAmount) Sub(number TokenAmount) TokenAmount {
	diff := w.ToDecimal().Sub(number.ToDecimal()).Shift(int32(w.Decimal)).Truncate(0)

	return TokenAmount{
		Value:   diff.String(),
		Decimal: w.Decimal,
	}
}
