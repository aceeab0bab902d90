package model

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type CurrencyKind string

const (
	CurrencyKindNative CurrencyKind = "native"
	CurrencyKindStable CurrencyKind = "stable"
)

// Currency describes one token the service accepts or pays out.
// Every currency is an SPL token and deposits are only accepted in its Mint.
// PricePair is the oracle symbol quoted in USD (e.g. SOLUSDT); TokenRatio scales
// that quote into the USD value of one whole token.
type Currency struct {
	Code       string       `yaml:"code" json:"code"`
	Kind       CurrencyKind `yaml:"kind" json:"kind"`
	Decimals   int          `yaml:"decimals" json:"decimals"`
	Mint       string       `yaml:"mint" json:"mint"`
	PricePair  string       `yaml:"price_pair" json:"price_pair,omitempty"`
	TokenRatio string       `yaml:"token_ratio" json:"token_ratio,omitempty"`
}

func (c Currency) Ratio() (decimal.Decimal, error) {
	if strings.TrimSpace(c.TokenRatio) == "" {
		return decimal.NewFromInt(1), nil
	}
	r, err := decimal.NewFromString(c.TokenRatio)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "currency %s: invalid token ratio", c.Code)
	}
	if !r.IsPositive() {
		return decimal.Zero, errors.Errorf("currency %s: token ratio must be positive", c.Code)
	}
	return r, nil
}

func (c Currency) Validate() error {
	if c.Code == "" {
		return errors.New("currency code is required")
	}
	if c.Kind != CurrencyKindNative && c.Kind != CurrencyKindStable {
		return errors.Errorf("currency %s: unknown kind %q", c.Code, c.Kind)
	}
	if strings.TrimSpace(c.Mint) == "" {
		return errors.Errorf("currency %s: mint is required", c.Code)
	}
	if c.Decimals < 0 || c.Decimals > 18 {
		return errors.Errorf("currency %s: decimals out of range", c.Code)
	}
	if c.Kind == CurrencyKindNative && c.PricePair == "" {
		return errors.Errorf("currency %s: native currency needs a price pair", c.Code)
	}
	_, err := c.Ratio()
	return err
}
