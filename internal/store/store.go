package store

import (
	"github.com/dwarvesf/settlement-backend/internal/store/deposit"
	"github.com/dwarvesf/settlement-backend/internal/store/settlementrecord"
)

type Store struct {
	Deposit          deposit.IStore
	SettlementRecord settlementrecord.IStore
}

func New() *Store {
	return &Store{
		Deposit:          deposit.New(),
		SettlementRecord: settlementrecord.New(),
	}
}
