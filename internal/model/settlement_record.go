package model

import "time"

type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusConfirmed SettlementStatus = "CONFIRMED"
	SettlementStatusQuoted    SettlementStatus = "QUOTED"
	SettlementStatusPaid      SettlementStatus = "PAID"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementStatusPending:   {SettlementStatusConfirmed, SettlementStatusFailed},
	SettlementStatusConfirmed: {SettlementStatusQuoted, SettlementStatusFailed},
	SettlementStatusQuoted:    {SettlementStatusPaid, SettlementStatusFailed},
}

// CanTransition reports whether a record may move from one status to another.
// PAID and FAILED have no outgoing edges.
func CanTransition(from, to SettlementStatus) bool {
	for _, next := range settlementTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementStatusPaid || s == SettlementStatusFailed
}

func (s SettlementStatus) IsValid() bool {
	switch s {
	case SettlementStatusPending, SettlementStatusConfirmed, SettlementStatusQuoted,
		SettlementStatusPaid, SettlementStatusFailed:
		return true
	}
	return false
}

// InFlightSettlementStatuses are the statuses a stuck record can be swept from.
func InFlightSettlementStatuses() []SettlementStatus {
	return []SettlementStatus{SettlementStatusPending, SettlementStatusConfirmed, SettlementStatusQuoted}
}

// SettlementRecord tracks one deposit reference through the payout pipeline.
// DepositReference is unique, which is what makes at most one payout per
// deposit hold across processes.
type SettlementRecord struct {
	ID               uint             `gorm:"primaryKey" json:"-"`
	DepositReference string           `gorm:"column:deposit_reference;type:varchar(128);not null;uniqueIndex" json:"deposit_reference"`
	Status           SettlementStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	RequestingWallet string           `gorm:"column:requesting_wallet;type:varchar(64);not null;index" json:"requesting_wallet"`
	SourceCurrency   string           `gorm:"column:source_currency;type:varchar(16);not null" json:"source_currency"`
	ClaimedAmount    string           `gorm:"column:claimed_amount;type:varchar(78);not null" json:"claimed_amount"`
	DepositAmount    string           `gorm:"column:deposit_amount;type:varchar(78)" json:"deposit_amount,omitempty"`
	DepositDecimals  int              `gorm:"column:deposit_decimals" json:"deposit_decimals,omitempty"`
	PayoutCurrency   string           `gorm:"column:payout_currency;type:varchar(16);not null" json:"payout_currency"`
	PayoutAmount     string           `gorm:"column:payout_amount;type:varchar(78)" json:"payout_amount,omitempty"`
	PayoutDecimals   int              `gorm:"column:payout_decimals" json:"payout_decimals,omitempty"`
	PayoutTxID       *string          `gorm:"column:payout_tx_id;type:varchar(128)" json:"payout_tx_id,omitempty"`
	ErrorKind        string           `gorm:"column:error_kind;type:varchar(32)" json:"error_kind,omitempty"`
	ErrorMessage     string           `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time        `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;index" json:"updated_at"`
}

func (SettlementRecord) TableName() string {
	return "settlement_records"
}

func (r *SettlementRecord) PayoutTokenAmount() TokenAmount {
	return TokenAmount{Value: r.PayoutAmount, Decimal: r.PayoutDecimals}
}

type SettlementListFilter struct {
	Status SettlementStatus
	Wallet string
	Limit  int
	Offset int
}
