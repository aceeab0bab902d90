package controller

import (
	"context"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type IController interface {
	// Settle verifies the deposit behind req and pays it out at most once.
	// Repeating a request returns the stored outcome without paying again.
	Settle(ctx context.Context, req SettleRequest) (*SettleResult, error)

	// GetSettlement returns the record for reference, or a NotFound error.
	GetSettlement(ctx context.Context, reference string) (*model.SettlementRecord, error)

	ListSettlements(ctx context.Context, filter model.SettlementListFilter) ([]*model.SettlementRecord, int64, error)
}
