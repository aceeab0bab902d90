package model

import "time"

// Deposit is a transfer into the receiving wallet that the ledger confirmed.
// Rows are written once, after verification, and never updated.
type Deposit struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	Reference         string    `gorm:"column:reference;type:varchar(128);not null;uniqueIndex" json:"reference"`
	SourceWallet      string    `gorm:"column:source_wallet;type:varchar(64);not null" json:"source_wallet"`
	DestinationWallet string    `gorm:"column:destination_wallet;type:varchar(64);not null" json:"destination_wallet"`
	Currency          string    `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	Mint              string    `gorm:"column:mint;type:varchar(64)" json:"mint,omitempty"`
	Amount            string    `gorm:"column:amount;type:varchar(78);not null" json:"amount"`
	Decimals          int       `gorm:"column:decimals;not null" json:"decimals"`
	ConfirmedAt       time.Time `gorm:"column:confirmed_at;not null" json:"confirmed_at"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Deposit) TableName() string {
	return "deposits"
}

func (d *Deposit) TokenAmount() TokenAmount {
	return TokenAmount{Value: d.Amount, Decimal: d.Decimals}
}
