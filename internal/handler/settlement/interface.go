package settlement

import (
	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type IHandler interface {
	CreateSettlement(c *gin.Context)
	GetSettlement(c *gin.Context)
	// ListSettlements pages through settlement records with optional filtering
	ListSettlements(c *gin.Context)
}

type CreateSettlementRequest struct {
	Wallet           string `json:"wallet" binding:"required" validate:"min=32,max=44"`
	DepositReference string `json:"deposit_reference" binding:"required" validate:"max=128"`
	ClaimedCurrency  string `json:"claimed_currency" binding:"required" validate:"alphanum,max=16"`
	// ClaimedAmount is in minor units of the claimed currency.
	ClaimedAmount  string `json:"claimed_amount" binding:"required" validate:"numeric,max=78"`
	PayoutCurrency string `json:"payout_currency" binding:"required" validate:"alphanum,max=16"`
}

type SettlementResponse struct {
	DepositReference string                 `json:"deposit_reference"`
	Status           model.SettlementStatus `json:"status"`
	PayoutCurrency   string                 `json:"payout_currency,omitempty"`
	PayoutAmount     string                 `json:"payout_amount,omitempty"`
	PayoutDecimals   int                    `json:"payout_decimals,omitempty"`
	PayoutTxID       string                 `json:"payout_tx_id,omitempty"`
	Replayed         bool                   `json:"replayed,omitempty"`
}

type ListSettlementsRequest struct {
	Limit  int    `form:"limit" json:"limit"`
	Offset int    `form:"offset" json:"offset"`
	Status string `form:"status" json:"status"`
	Wallet string `form:"wallet" json:"wallet"`
}
